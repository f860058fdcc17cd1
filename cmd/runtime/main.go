package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Import built-in handler modules to register them
	_ "github.com/goran-ethernal/ChainRuntime/examples/handlers/erc20"
	_ "github.com/goran-ethernal/ChainRuntime/examples/handlers/uniswap"
	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/config"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/orchestrator"
	pkgconfig "github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/goran-ethernal/ChainRuntime/pkg/handler"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║          ChainRuntime v%s              ║
║   Deterministic Event Handler Runtime     ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "runtime",
	Short: "ChainRuntime - deterministic blockchain event handler runtime",
	Long: `ChainRuntime feeds blockchain logs and block ticks through user handlers in a
strict per-chain order, keeping entity state in copy-on-write snapshots that can be
checkpointed to SQLite and queried over HTTP.`,
	Version: version,
	RunE:    runRuntime,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available handler modules",
	Long:  `List all registered handler modules that can be enabled in the configuration file.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Available handler modules:")
		modules := handler.ListModules()
		if len(modules) == 0 {
			fmt.Println("  (no handler modules registered)")
			return
		}
		for _, m := range modules {
			fmt.Printf("  - %s\n", m)
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file, apply defaults and check it, including that every
configured handler module exists and every block job has a handler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Persistence is not opened during validation.
		cfg.Persistence = nil

		if _, err := orchestrator.New(cfg, orchestrator.WithLogger(logger.NewNopLogger())); err != nil {
			return err
		}

		fmt.Printf("Configuration %s is valid: %d chain(s), %d handler module(s)\n",
			configPath, len(cfg.Chains), len(cfg.Handlers))
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := &jsonschema.Reflector{FieldNameTag: "yaml", RequiredFromJSONSchemaTags: true}
		schema := r.Reflect(&pkgconfig.Config{})

		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(listCmd, validateCmd, schemaCmd)
}

func runRuntime(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		fmt.Println("\n\nShutting down gracefully...")
	}()

	log := logger.GetDefaultLogger().WithComponent(common.ComponentOrchestrator)
	if cfg.Logging != nil {
		if log, err = logger.NewComponentLoggerFromConfig(common.ComponentOrchestrator, cfg.Logging); err != nil {
			return err
		}
	}

	log.Infof("Installing %d handler module(s)...", len(cfg.Handlers))
	if len(cfg.Handlers) == 0 {
		log.Warn("No handler modules configured. Exiting.")
		return nil
	}

	rt, err := orchestrator.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warnf("Failed to close checkpoint: %v", err)
		}
	}()

	log.Info("Starting ChainRuntime...")

	if err := rt.Run(ctx); err != nil {
		return fmt.Errorf("runtime failed: %w", err)
	}

	log.Info("ChainRuntime stopped successfully")
	return nil
}
