package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/healerd/internal/ansible"
	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/config"
	"github.com/fyrsmithlabs/healerd/internal/executor"
	"github.com/fyrsmithlabs/healerd/internal/healer"
	"github.com/fyrsmithlabs/healerd/internal/planner"
	"github.com/fyrsmithlabs/healerd/internal/safety"
)

var (
	ansibleInventory  string
	ansibleExtraVars  []string
	ansibleTags       []string
	ansibleMaxRetries int
	ansibleConfigPath string
)

// ansibleCmd groups playbook operations
var ansibleCmd = &cobra.Command{
	Use:   "ansible",
	Short: "Run playbooks through the heal-and-retry loop",
}

// ansibleRunCmd runs one playbook with inline healing
var ansibleRunCmd = &cobra.Command{
	Use:   "run <playbook>",
	Short: "Run a playbook, healing and retrying on failure",
	Long: `Run an Ansible playbook locally. When the playbook fails, the first
extracted task failure is classified and healed; if the healing verifies,
the playbook runs again, up to the retry budget.

The reasoner is configured from the healerd config file and environment
(REASONER_PROVIDER, REASONER_API_KEY, ...).

Examples:
  # Run with healing against the default inventory
  healctl ansible run site.yml

  # Run with an inventory and variables
  healctl ansible run deploy.yml --inventory hosts.ini --extra-var env=staging

  # Allow more retries
  healctl ansible run site.yml --max-retries 5`,
	Args: cobra.ExactArgs(1),
	RunE: runAnsible,
}

func init() {
	ansibleCmd.AddCommand(ansibleRunCmd)
	ansibleRunCmd.Flags().StringVarP(&ansibleInventory, "inventory", "i", "", "inventory file")
	ansibleRunCmd.Flags().StringArrayVarP(&ansibleExtraVars, "extra-var", "e", nil, "extra variable (k=v, repeatable)")
	ansibleRunCmd.Flags().StringSliceVar(&ansibleTags, "tags", nil, "only run plays and tasks tagged with these values")
	ansibleRunCmd.Flags().IntVar(&ansibleMaxRetries, "max-retries", 0, "maximum playbook invocations (default from config)")
	ansibleRunCmd.Flags().StringVar(&ansibleConfigPath, "config", "", "path to healerd config file")
}

// runAnsible handles the ansible run command
func runAnsible(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(ansibleConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		return err
	}

	extraVars, err := parseExtraVars(ansibleExtraVars)
	if err != nil {
		return err
	}

	maxRetries := ansibleMaxRetries
	if maxRetries <= 0 {
		maxRetries = cfg.Ansible.MaxRetries
	}

	result, err := adapter.Run(cmd.Context(), ansible.RunRequest{
		Playbook:   args[0],
		Inventory:  ansibleInventory,
		ExtraVars:  extraVars,
		Tags:       ansibleTags,
		MaxRetries: maxRetries,
	})
	if err != nil {
		return fmt.Errorf("playbook run failed: %w", err)
	}

	fmt.Printf("Playbook:  %s\n", args[0])
	fmt.Printf("Success:   %v\n", result.Success)
	fmt.Printf("Attempts:  %d\n", result.Attempts)
	fmt.Printf("Healings:  %d\n", len(result.Sessions))
	for _, session := range result.Sessions {
		fmt.Printf("  %s\n", session.SummaryLine())
	}

	if !result.Success {
		fmt.Fprintln(os.Stderr, "\nFinal playbook output:")
		fmt.Fprintln(os.Stderr, result.FinalStdout)
		return fmt.Errorf("playbook did not complete successfully")
	}
	return nil
}

// buildAdapter wires a local healing pipeline for the CLI.
func buildAdapter(cfg *config.Config, logger *zap.Logger) (*ansible.Adapter, error) {
	cls := classifier.New(&classifier.Config{MaxHistory: cfg.History.MaxErrors}, logger)

	reasoner, err := planner.NewReasoner(planner.ClientConfig{
		Provider:   cfg.Reasoner.Provider,
		Model:      cfg.Reasoner.Model,
		APIKey:     cfg.Reasoner.APIKey.Value(),
		BaseURL:    cfg.Reasoner.BaseURL,
		Timeout:    cfg.Reasoner.Timeout.Duration(),
		MaxRetries: cfg.Reasoner.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoner: %w", err)
	}

	generator, err := planner.NewGenerator(reasoner, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan generator: %w", err)
	}

	gate := safety.NewGate()
	gate.BlockOnConfirmation = cfg.Safety.BlockOnConfirmation

	var channel executor.Channel
	switch cfg.Executor.Channel {
	case "ssh":
		channel = &executor.SSHChannel{User: cfg.Executor.SSHUser}
	default:
		channel = &executor.LocalChannel{Timeout: cfg.Executor.CommandTimeout.Duration()}
	}

	coordinator, err := executor.NewCoordinator(channel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	h, err := healer.New(cls, generator, gate, coordinator,
		healer.NewStore(cfg.History.MaxSessions), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create healer: %w", err)
	}

	runner := ansible.NewPlaybookRunner(cfg.Ansible.PlaybookTimeout.Duration(), logger)
	return ansible.NewAdapter(runner, cls, h, logger)
}

// parseExtraVars splits repeated k=v flags into a map.
func parseExtraVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid extra-var %q (expected k=v)", pair)
		}
		vars[k] = v
	}
	return vars, nil
}
