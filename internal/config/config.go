package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kewei-lab/tableplan/internal/mqtt"
)

// AgentConfig is the agent.yaml schema.
type AgentConfig struct {
	Version int `yaml:"version"`

	Agent struct {
		ID                        string `yaml:"id"`
		MaxIterations             int    `yaml:"max_iterations"`
		MaxConsecutiveFailures    int    `yaml:"max_consecutive_failures"`
		RepeatLimit               int    `yaml:"repeat_limit"`
		ReplanOnValidationFailure bool   `yaml:"replan_on_validation_failure"`
		ReportDir                 string `yaml:"report_dir"`
	} `yaml:"agent"`

	Planner struct {
		Model          string  `yaml:"model"`
		BaseURL        string  `yaml:"base_url"`
		Temperature    float64 `yaml:"temperature"`
		TopP           float64 `yaml:"top_p"`
		MaxTokens      int     `yaml:"max_tokens"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"planner"`

	Retry struct {
		MaxRetries     int     `yaml:"max_retries"`
		BaseDelaySec   int     `yaml:"base_delay_seconds"`
		MaxDelaySec    int     `yaml:"max_delay_seconds"`
		BackoffFactor  float64 `yaml:"backoff_factor"`
		RetryOn429     *bool   `yaml:"retry_on_429"`
		RetryOn500     *bool   `yaml:"retry_on_500"`
		RetryOnTimeout *bool   `yaml:"retry_on_timeout"`
	} `yaml:"retry"`

	Bus struct {
		ClientID string      `yaml:"client_id"`
		Topics   mqtt.Topics `yaml:"topics"`
	} `yaml:"bus"`

	Stability struct {
		MaxWaitSeconds       int `yaml:"max_wait_seconds"`
		StableFrameThreshold int `yaml:"stable_frame_threshold"`
		SettleDelayMS        int `yaml:"settle_delay_ms"`
		CheckIntervalMS      int `yaml:"check_interval_ms"`
	} `yaml:"stability"`

	Validator struct {
		CubeCapacity int `yaml:"cube_capacity"`
	} `yaml:"validator"`

	Network struct {
		APIPort int `yaml:"api_port"`
	} `yaml:"network"`
}

// LoadAgentConfig reads and validates agent.yaml.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported agent.yaml version: %d", cfg.Version)
	}

	return &cfg, nil
}

// AgentID returns the configured agent id, defaulting to "tableplan".
func (c *AgentConfig) AgentID() string {
	if c.Agent.ID == "" {
		return "tableplan"
	}
	return c.Agent.ID
}

// MaxIterations returns the planning loop ceiling, defaulting to 30.
func (c *AgentConfig) MaxIterations() int {
	if c.Agent.MaxIterations == 0 {
		return 30
	}
	return c.Agent.MaxIterations
}

// MaxConsecutiveFailures returns the validation-failure ceiling, defaulting to 5.
func (c *AgentConfig) MaxConsecutiveFailures() int {
	if c.Agent.MaxConsecutiveFailures == 0 {
		return 5
	}
	return c.Agent.MaxConsecutiveFailures
}

// RepeatLimit returns the identical-command streak limit, defaulting to 5.
func (c *AgentConfig) RepeatLimit() int {
	if c.Agent.RepeatLimit == 0 {
		return 5
	}
	return c.Agent.RepeatLimit
}

// ReportDir returns the report output directory, defaulting to "reports".
func (c *AgentConfig) ReportDir() string {
	if c.Agent.ReportDir == "" {
		return "reports"
	}
	return c.Agent.ReportDir
}

// PlannerTimeout returns the chat request timeout, defaulting to 120s.
func (c *AgentConfig) PlannerTimeout() time.Duration {
	if c.Planner.TimeoutSeconds == 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Planner.TimeoutSeconds) * time.Second
}

// Topics returns the bus topic set with defaults applied per field.
func (c *AgentConfig) Topics() mqtt.Topics {
	t := c.Bus.Topics
	def := mqtt.DefaultTopics()
	if t.SceneGraph == "" {
		t.SceneGraph = def.SceneGraph
	}
	if t.Instruction == "" {
		t.Instruction = def.Instruction
	}
	if t.SceneGraphInit == "" {
		t.SceneGraphInit = def.SceneGraphInit
	}
	if t.AgentTrigger == "" {
		t.AgentTrigger = def.AgentTrigger
	}
	if t.TaskCmd == "" {
		t.TaskCmd = def.TaskCmd
	}
	if t.AgentOver == "" {
		t.AgentOver = def.AgentOver
	}
	return t
}

// MaxWait returns the execution wait ceiling, defaulting to 120s.
func (c *AgentConfig) MaxWait() time.Duration {
	if c.Stability.MaxWaitSeconds == 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Stability.MaxWaitSeconds) * time.Second
}

// SettleDelay returns the post-signal settle delay, defaulting to 1s.
func (c *AgentConfig) SettleDelay() time.Duration {
	if c.Stability.SettleDelayMS == 0 {
		return time.Second
	}
	return time.Duration(c.Stability.SettleDelayMS) * time.Millisecond
}

// CheckInterval returns the wait-loop poll interval, defaulting to 50ms.
func (c *AgentConfig) CheckInterval() time.Duration {
	if c.Stability.CheckIntervalMS == 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.Stability.CheckIntervalMS) * time.Millisecond
}

// StableFrameThreshold returns the identical-frame count that marks the
// scene stable, defaulting to 5.
func (c *AgentConfig) StableFrameThreshold() int {
	if c.Stability.StableFrameThreshold == 0 {
		return 5
	}
	return c.Stability.StableFrameThreshold
}

// CubeCapacity returns the per-container cube limit, defaulting to 3.
func (c *AgentConfig) CubeCapacity() int {
	if c.Validator.CubeCapacity == 0 {
		return 3
	}
	return c.Validator.CubeCapacity
}

// APIPort returns the HTTP API port, defaulting to 8080.
func (c *AgentConfig) APIPort() int {
	if c.Network.APIPort == 0 {
		return 8080
	}
	return c.Network.APIPort
}

// RetryPolicy returns the planner retry settings with defaults applied.
func (c *AgentConfig) RetryPolicy() RetrySettings {
	s := RetrySettings{
		MaxRetries:     c.Retry.MaxRetries,
		BaseDelaySec:   c.Retry.BaseDelaySec,
		MaxDelaySec:    c.Retry.MaxDelaySec,
		BackoffFactor:  c.Retry.BackoffFactor,
		RetryOn429:     c.Retry.RetryOn429 == nil || *c.Retry.RetryOn429,
		RetryOn500:     c.Retry.RetryOn500 == nil || *c.Retry.RetryOn500,
		RetryOnTimeout: c.Retry.RetryOnTimeout == nil || *c.Retry.RetryOnTimeout,
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.BaseDelaySec == 0 {
		s.BaseDelaySec = 15
	}
	if s.MaxDelaySec == 0 {
		s.MaxDelaySec = 120
	}
	if s.BackoffFactor == 0 {
		s.BackoffFactor = 2
	}
	return s
}

// RetrySettings are the planner retry knobs after defaulting.
type RetrySettings struct {
	MaxRetries     int
	BaseDelaySec   int
	MaxDelaySec    int
	BackoffFactor  float64
	RetryOn429     bool
	RetryOn500     bool
	RetryOnTimeout bool
}
