package mqtt

import (
	"fmt"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kewei-lab/tableplan/internal/events"
)

// Topics is the fixed topic set shared with the simulator.
type Topics struct {
	SceneGraph     string `yaml:"scene_graph"`
	Instruction    string `yaml:"instruction"`
	SceneGraphInit string `yaml:"scene_graph_init"`
	AgentTrigger   string `yaml:"agent_trigger"`
	TaskCmd        string `yaml:"task_cmd"`
	AgentOver      string `yaml:"agent_over"`
}

// DefaultTopics returns the simulator's default topic names.
func DefaultTopics() Topics {
	return Topics{
		SceneGraph:     "tabletop/scene_graph",
		Instruction:    "tabletop/instruction",
		SceneGraphInit: "tabletop/scene_graph_init",
		AgentTrigger:   "tabletop/agent_trigger",
		TaskCmd:        "tabletop/task_cmd",
		AgentOver:      "tabletop/agent_over",
	}
}

// busClient is the slice of Client the bus needs; tests provide doubles.
type busClient interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

const maxQueuedPayloads = 64

// Bus bridges the paho handler goroutines and the agent's control
// goroutine. Handlers only enqueue; Pump drains the queues on the
// caller's goroutine, so the scene store has exactly one writer.
type Bus struct {
	client busClient
	topics Topics
	sink   func(raw []byte) error

	mu         sync.Mutex
	sceneQueue [][]byte
	taskQueue  []string
	trigger    bool
	dropped    int
}

// NewBus creates a Bus. sink receives every scene-graph payload during
// Pump; it is never called from a paho goroutine.
func NewBus(client busClient, topics Topics, sink func(raw []byte) error) *Bus {
	return &Bus{
		client: client,
		topics: topics,
		sink:   sink,
	}
}

// Topics returns the configured topic set.
func (b *Bus) Topics() Topics {
	return b.topics
}

// Start subscribes the inbound topics. The client must be connected.
func (b *Bus) Start() error {
	subs := []struct {
		topic   string
		handler paho.MessageHandler
	}{
		{b.topics.SceneGraph, b.onSceneGraph},
		{b.topics.AgentTrigger, b.onTrigger},
		{b.topics.TaskCmd, b.onTaskCmd},
	}
	for _, s := range subs {
		if err := b.client.Subscribe(s.topic, s.handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
	}
	events.Emit("info", "bus.connected", "subscribed to simulator topics", map[string]interface{}{
		"scene_graph":   b.topics.SceneGraph,
		"agent_trigger": b.topics.AgentTrigger,
		"task_cmd":      b.topics.TaskCmd,
	})
	return nil
}

func (b *Bus) onSceneGraph(_ paho.Client, msg paho.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sceneQueue) >= maxQueuedPayloads {
		// Keep the newest frames; stale scene graphs are worthless.
		b.sceneQueue = b.sceneQueue[1:]
		b.dropped++
	}
	b.sceneQueue = append(b.sceneQueue, append([]byte{}, msg.Payload()...))
}

func (b *Bus) onTrigger(_ paho.Client, msg paho.Message) {
	val := strings.TrimSpace(strings.ToLower(string(msg.Payload())))
	if val != "true" && val != "1" {
		return
	}
	b.mu.Lock()
	b.trigger = true
	b.mu.Unlock()
}

func (b *Bus) onTaskCmd(_ paho.Client, msg paho.Message) {
	content, ok := ExtractTaskContent(string(msg.Payload()))
	if !ok {
		return
	}
	b.mu.Lock()
	b.taskQueue = append(b.taskQueue, content)
	b.mu.Unlock()
	events.Emit("info", "task.received", content, nil)
}

// ExtractTaskContent pulls the task text out of a "task: <text>" bus
// payload. Payloads without the prefix are not tasks.
func ExtractTaskContent(payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	if rest, ok := strings.CutPrefix(payload, "task:"); ok {
		return strings.TrimSpace(rest), true
	}
	return "", false
}

// Pump drains queued scene-graph payloads into the sink. Call it only
// from the control goroutine.
func (b *Bus) Pump() {
	b.mu.Lock()
	queue := b.sceneQueue
	b.sceneQueue = nil
	dropped := b.dropped
	b.dropped = 0
	b.mu.Unlock()

	if dropped > 0 {
		events.Emit("warn", "bus.dropped", "scene graph frames dropped", map[string]interface{}{
			"count": dropped,
		})
	}
	applied := 0
	for _, raw := range queue {
		if err := b.sink(raw); err != nil {
			events.Emit("error", "scene.parse_error", err.Error(), nil)
			continue
		}
		applied++
	}
	if applied > 0 {
		events.Emit("info", "scene.updated", "", map[string]interface{}{
			"frames": applied,
		})
	}
}

// TriggerSeen reports whether a completion signal arrived since the
// last ResetTrigger.
func (b *Bus) TriggerSeen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trigger
}

// ResetTrigger clears the completion-signal latch.
func (b *Bus) ResetTrigger() {
	b.mu.Lock()
	b.trigger = false
	b.mu.Unlock()
}

// NextTask pops the oldest queued task, if any.
func (b *Bus) NextTask() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.taskQueue) == 0 {
		return "", false
	}
	task := b.taskQueue[0]
	b.taskQueue = b.taskQueue[1:]
	return task, true
}

// PublishInstruction sends a command to the simulator.
func (b *Bus) PublishInstruction(cmd string) error {
	if err := b.client.Publish(b.topics.Instruction, []byte(cmd)); err != nil {
		events.Emit("error", "bus.publish_error", err.Error(), map[string]interface{}{
			"topic": b.topics.Instruction,
		})
		return err
	}
	events.Emit("info", "action.published", cmd, nil)
	return nil
}

// PublishInitialScene republishes the pre-action snapshot so the
// simulator can diff against it.
func (b *Bus) PublishInitialScene(raw []byte) error {
	if err := b.client.Publish(b.topics.SceneGraphInit, raw); err != nil {
		events.Emit("error", "bus.publish_error", err.Error(), map[string]interface{}{
			"topic": b.topics.SceneGraphInit,
		})
		return err
	}
	return nil
}

// PublishCompletion announces the end of a task with the final
// response and the current scene rendering.
func (b *Bus) PublishCompletion(response, sceneRendering string) error {
	payload := response + "\n\nCurrent Scene Graph: " + sceneRendering
	if err := b.client.Publish(b.topics.AgentOver, []byte(payload)); err != nil {
		events.Emit("error", "bus.publish_error", err.Error(), map[string]interface{}{
			"topic": b.topics.AgentOver,
		})
		return err
	}
	return nil
}
