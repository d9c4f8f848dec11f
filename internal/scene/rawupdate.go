package scene

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// RawKind identifies the wire format of an inbound scene-graph payload.
// The simulator publishes JSON; older tooling publishes the legacy
// "Nodes: ... / Edges: ..." text form. The kind is decided by a
// structural probe, never by configuration.
type RawKind int

const (
	RawUnknown RawKind = iota
	RawJSON
	RawLegacyText
)

func (k RawKind) String() string {
	switch k {
	case RawJSON:
		return "json"
	case RawLegacyText:
		return "legacy_text"
	default:
		return "unknown"
	}
}

var (
	legacyNodesRe = regexp.MustCompile(`Nodes:\s*([0-9,\s]+)`)
	legacyEdgesRe = regexp.MustCompile(`Edges:\s*(.+)`)
)

// ProbeKind inspects a raw payload and reports its wire format.
func ProbeKind(raw []byte) RawKind {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return RawUnknown
	}
	if json.Valid([]byte(trimmed)) {
		return RawJSON
	}
	if strings.Contains(trimmed, "Nodes:") && strings.Contains(trimmed, "Edges:") {
		return RawLegacyText
	}
	return RawUnknown
}

// Decode parses a raw payload into a Graph, selecting the parser by
// structural probe.
func Decode(raw []byte) (*Graph, error) {
	switch ProbeKind(raw) {
	case RawJSON:
		return decodeJSON(raw)
	case RawLegacyText:
		return decodeLegacyText(string(raw))
	default:
		return nil, fmt.Errorf("unrecognized scene graph payload: %q", truncate(string(raw), 80))
	}
}

func decodeJSON(raw []byte) (*Graph, error) {
	// Node entries may be strings or bare numbers depending on the
	// publisher generation, so decode loosely and normalize.
	var loose struct {
		Timestamp int64             `json:"timestamp"`
		Nodes     []json.RawMessage `json:"nodes"`
		Edges     []string          `json:"edges"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("decode scene graph json: %w", err)
	}

	g := &Graph{Timestamp: loose.Timestamp, Edges: loose.Edges}
	for _, n := range loose.Nodes {
		var s string
		if err := json.Unmarshal(n, &s); err == nil {
			g.Nodes = append(g.Nodes, s)
			continue
		}
		var num json.Number
		if err := json.Unmarshal(n, &num); err == nil {
			g.Nodes = append(g.Nodes, num.String())
			continue
		}
		return nil, fmt.Errorf("decode scene graph node %s: unsupported type", string(n))
	}
	return g, nil
}

func decodeLegacyText(text string) (*Graph, error) {
	m := legacyNodesRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("legacy scene graph text missing node list")
	}

	g := &Graph{}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			g.Nodes = append(g.Nodes, part)
		}
	}

	if em := legacyEdgesRe.FindStringSubmatch(text); em != nil {
		for _, part := range strings.Split(em[1], ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				g.Edges = append(g.Edges, part)
			}
		}
	}
	return g, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
