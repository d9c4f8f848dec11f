package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeKind(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want RawKind
	}{
		{"json object", `{"nodes":["red_cube"],"edges":[]}`, RawJSON},
		{"json with timestamp", `{"timestamp":123,"nodes":[],"edges":[]}`, RawJSON},
		{"legacy text", "Graph:\nNodes: 0, 1, 3\nEdges: 0>3, 0=F", RawLegacyText},
		{"empty", "", RawUnknown},
		{"garbage", "hello world", RawUnknown},
		{"nodes only", "Nodes: 0, 1", RawUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProbeKind([]byte(tt.raw)))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	raw := `{"timestamp": 42, "nodes": ["red_cube1", "lid_box(closed)", "table"], "edges": ["red_cube1(in)lid_box", "0=T"]}`
	g, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, int64(42), g.Timestamp)
	assert.Equal(t, []string{"red_cube1", "lid_box(closed)", "table"}, g.Nodes)
	assert.Equal(t, []string{"red_cube1(in)lid_box", "0=T"}, g.Edges)
}

func TestDecodeJSON_NumericNodes(t *testing.T) {
	g, err := Decode([]byte(`{"nodes": [0, 1, 3], "edges": ["0>3"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "3"}, g.Nodes)
}

func TestDecodeLegacyText(t *testing.T) {
	raw := "Graph:\nNodes: 0, 1, 3, 4\nEdges: 0>3, 0>5, 0=F"
	g, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "3", "4"}, g.Nodes)
	assert.Equal(t, []string{"0>3", "0>5", "0=F"}, g.Edges)
}

func TestDecode_Unrecognized(t *testing.T) {
	_, err := Decode([]byte("not a scene graph"))
	assert.Error(t, err)
}
