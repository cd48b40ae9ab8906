// Command robit-engine runs the conversational action engine against a
// stdin/stdout adapter, wiring the default action registry, the rule
// planner, an optional OpenAI-compatible LLM planner, and the filesystem
// safety policy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/adapter"
	"github.com/bdobrica/robit/common/environment"
	"github.com/bdobrica/robit/common/version"
	"github.com/bdobrica/robit/engine"
	"github.com/bdobrica/robit/examples/handlers"
	"github.com/bdobrica/robit/llmplanner"
	"github.com/bdobrica/robit/protocol"
	"github.com/bdobrica/robit/riskpolicy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "robit-engine:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := defaultRegistry()

	policy, err := riskpolicy.DefaultWithHome()
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	eng, err := engine.New(registry, policy)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	eng.SetDryRunDefault(environment.BoolOr("ROBIT_DRY_RUN", true))

	if err := loadRoomConfig(eng); err != nil {
		return fmt.Errorf("room config: %w", err)
	}

	if apiKey, ok := environment.String("OPENAI_API_KEY"); ok && apiKey != "" {
		cfg := llmplanner.DefaultHTTPConfig()
		cfg.APIKey = apiKey
		cfg.Model = environment.StringOr("ROBIT_AI_MODEL", cfg.Model)
		cfg.BaseURL = environment.StringOr("ROBIT_AI_BASE_URL", cfg.BaseURL)
		client := llmplanner.NewHTTPClient(cfg)
		eng.SetAIBackend(client, client.ModelName())
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		persistPath := filepath.Join(home, ".robit", "contexts", "stdin.json")
		if err := eng.EnableConversationPersistence(persistPath); err != nil {
			fmt.Fprintln(os.Stderr, "robit-engine: conversation history:", err)
		}
	}

	if environment.BoolOr("ROBIT_PROTOCOL", false) {
		fmt.Fprintf(os.Stderr, "robit-engine %s — protocol mode (robit.v1 events, one per line)\n", version.Info())
		return runProtocolMode(ctx, eng, os.Stdin, os.Stdout)
	}

	fmt.Printf("robit-engine %s — type \"help\" for commands, \"exit\" to quit\n", version.Info())

	stdinAdapter := adapter.NewStdinAdapter(os.Stdin, os.Stdout, "robit> ")
	return adapter.Run(ctx, eng, stdinAdapter)
}

// defaultRegistry registers the illustrative example handlers that ship
// with the engine. A production deployment would register its own
// action.Handler implementations here instead.
func defaultRegistry() *action.Registry {
	registry := action.NewRegistry()
	registry.Register(handlers.NewOrganizeDirectoryAction())
	registry.Register(handlers.NewContainerRunAction())
	return registry
}

// roomConfigFile is the on-disk shape of the optional room-config seed file,
// applied once at startup at global scope.
type roomConfigFile struct {
	RiskPolicy *struct {
		LowAutoExecute *bool    `yaml:"low_auto_execute"`
		ApprovalFor    []string `yaml:"approval_for"`
	} `yaml:"risk_policy"`
	ActionAllowlist []string `yaml:"action_allowlist"`
	ActionDenylist  []string `yaml:"action_denylist"`
	DryRunDefault   *bool    `yaml:"dry_run_default"`
}

// loadRoomConfig reads $ROBIT_CONFIG (default "$HOME/.robit/config.yaml") if
// present and applies it to eng's global room config.
func loadRoomConfig(eng *engine.Engine) error {
	path := environment.StringOr("ROBIT_CONFIG", "")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return nil
		}
		path = filepath.Join(home, ".robit", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var file roomConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	payload := protocol.ConfigUpdatePayload{
		ActionAllowlist: file.ActionAllowlist,
		ActionDenylist:  file.ActionDenylist,
		DryRunDefault:   file.DryRunDefault,
	}
	if file.RiskPolicy != nil {
		levels := make([]action.RiskLevel, 0, len(file.RiskPolicy.ApprovalFor))
		for _, lvl := range file.RiskPolicy.ApprovalFor {
			levels = append(levels, action.RiskLevel(lvl))
		}
		payload.RiskPolicy = &protocol.RiskPolicy{
			LowAutoExecute: file.RiskPolicy.LowAutoExecute,
			ApprovalFor:    levels,
		}
	}
	eng.ConfigStore().Apply(payload)
	return nil
}
