package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kewei-lab/tableplan/internal/action"
	"github.com/kewei-lab/tableplan/internal/agent"
	"github.com/kewei-lab/tableplan/internal/api"
	"github.com/kewei-lab/tableplan/internal/config"
	"github.com/kewei-lab/tableplan/internal/events"
	"github.com/kewei-lab/tableplan/internal/exec"
	"github.com/kewei-lab/tableplan/internal/mqtt"
	"github.com/kewei-lab/tableplan/internal/planner"
	"github.com/kewei-lab/tableplan/internal/report"
	"github.com/kewei-lab/tableplan/internal/scene"
	"github.com/kewei-lab/tableplan/internal/storage/postgres"
	"github.com/kewei-lab/tableplan/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tableplan",
	Short: "Language-driven tabletop manipulation agent",
	Long: `tableplan plans and executes tabletop manipulation tasks.

It listens for natural-language tasks on the message bus (or stdin),
asks a chat-completion planner for one action at a time, validates each
action against the live scene graph, and drives the simulator until the
task is done.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tableplan version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agent.yaml", "path to agent.yaml")
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() *config.AgentConfig {
	cfg, err := config.LoadAgentConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("no %s, using defaults", configPath)
			return &config.AgentConfig{Version: 1}
		}
		log.Fatalf("failed to load %s: %v", configPath, err)
	}
	return cfg
}

func run() error {
	cfg := loadConfig()

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "tableplan starting", map[string]interface{}{
		"service":  "tableplan",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	// Postgres is optional; without it events stay in the ring buffer.
	if pg, err := postgres.New(cfg.AgentID()); err != nil {
		log.Printf("postgres unavailable, events stay in memory: %v", err)
	} else {
		events.SetPostgresClient(pg)
		defer pg.Close()
	}

	apiKey := config.MustResolveSecret("OPENAI_API_KEY")
	plannerCfg := planner.DefaultConfig(apiKey)
	if cfg.Planner.Model != "" {
		plannerCfg.Model = cfg.Planner.Model
	}
	if cfg.Planner.BaseURL != "" {
		plannerCfg.BaseURL = cfg.Planner.BaseURL
	}
	if cfg.Planner.Temperature != 0 {
		plannerCfg.Temperature = cfg.Planner.Temperature
	}
	if cfg.Planner.TopP != 0 {
		plannerCfg.TopP = cfg.Planner.TopP
	}
	if cfg.Planner.MaxTokens != 0 {
		plannerCfg.MaxTokens = cfg.Planner.MaxTokens
	}
	plannerCfg.Timeout = cfg.PlannerTimeout()
	plannerClient := planner.NewClient(plannerCfg)

	clientID := cfg.Bus.ClientID
	if clientID == "" {
		clientID = cfg.AgentID()
	}
	client := mqtt.NewClient(clientID)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer client.Disconnect()

	store := scene.NewStore(cfg.StableFrameThreshold())
	bus := mqtt.NewBus(client, cfg.Topics(), store.Update)
	if err := bus.Start(); err != nil {
		return fmt.Errorf("bus start: %w", err)
	}

	records := exec.NewRecordLog()
	coordinator := exec.NewCoordinator(bus, store, records,
		cfg.MaxWait(), cfg.SettleDelay(), cfg.CheckInterval())

	retry := cfg.RetryPolicy()
	ag := agent.New(agent.Deps{
		Planner:   plannerClient,
		Store:     store,
		Bus:       bus,
		Validator: action.NewValidator(cfg.CubeCapacity()),
		Executor:  coordinator,
		Reports:   report.NewWriter(cfg.ReportDir()),
		Records:   records,
	}, agent.Options{
		MaxIterations:             cfg.MaxIterations(),
		MaxConsecutiveFailures:    cfg.MaxConsecutiveFailures(),
		RepeatLimit:               cfg.RepeatLimit(),
		ReplanOnValidationFailure: cfg.Agent.ReplanOnValidationFailure,
		Model:                     plannerCfg.Model,
		Retry: planner.RetryPolicy{
			MaxRetries:     retry.MaxRetries,
			BaseDelaySec:   retry.BaseDelaySec,
			MaxDelaySec:    retry.MaxDelaySec,
			BackoffFactor:  retry.BackoffFactor,
			RetryOn429:     retry.RetryOn429,
			RetryOn500:     retry.RetryOn500,
			RetryOnTimeout: retry.RetryOnTimeout,
		},
	})

	api.SetStatusSource(ag)
	api.Start(cfg.APIPort())

	return loop(ag, bus)
}

// loop serves tasks from the bus and from stdin until "exit" or a
// termination signal.
func loop(ag *agent.Agent, bus *mqtt.Bus) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stdin := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			stdin <- scanner.Text()
		}
		close(stdin)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	log.Println("ready; waiting for tasks (type a task, 'goon' to retry, 'exit' to quit)")

	for {
		select {
		case <-sigCh:
			shutdown()
			return nil

		case line, ok := <-stdin:
			if !ok {
				stdin = nil
				continue
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.EqualFold(line, "exit") {
				shutdown()
				return nil
			}
			serve(ctx, ag, line)

		case <-ticker.C:
			bus.Pump()
			if task, ok := bus.NextTask(); ok {
				serve(ctx, ag, task)
			}
		}
	}
}

func serve(ctx context.Context, ag *agent.Agent, task string) {
	response, err := ag.ProcessInput(ctx, task)
	if err != nil {
		log.Printf("task error: %v", err)
		return
	}
	log.Printf("task finished:\n%s", response)
}

func shutdown() {
	events.Emit("info", "bus.disconnected", "", nil)
	events.Emit("info", "system.shutdown", "tableplan stopping", nil)
	events.CloseAllSubscribers()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
