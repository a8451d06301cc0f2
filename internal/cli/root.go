package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"notes-tracker/internal/config"
	"notes-tracker/internal/engine"
	"notes-tracker/internal/extract"
	"notes-tracker/internal/logging"
	"notes-tracker/internal/marketdata"
	"notes-tracker/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-08-28"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.NoteStore
	Engine    *engine.Engine
	Fetcher   *marketdata.Fetcher
	Extractor *extract.Extractor
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize SQLite store
	dataStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Database.Path).Msg("SQLite store initialized")
	}

	// Initialize evaluation engine
	app.Engine = engine.New(logger)
	app.Engine.Workers = cfg.Engine.Workers
	if cfg.Engine.DeferredPolicy == "pay_at_ko" {
		app.Engine.DeferredPolicy = engine.DeferredPayAtKnockOut
	}

	// Initialize price fetcher
	source := marketdata.NewYahooSource(logger)
	app.Fetcher = marketdata.NewFetcher(source, time.Duration(cfg.Prices.DelayMillis)*time.Millisecond, logger)

	// Initialize termsheet extractor if OpenAI API key is available
	if cfg.Credentials.OpenAI.APIKey != "" {
		llm := extract.NewOpenAIClient(cfg.Credentials.OpenAI.APIKey, cfg.Credentials.OpenAI.Model)
		app.Extractor = extract.NewExtractor(llm, logger)
		logger.Debug().Str("model", cfg.Credentials.OpenAI.Model).Msg("Termsheet extractor initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "notes",
		Short: "Structured notes tracker - barrier monitoring and coupon accrual CLI",
		Long: `Notes Tracker monitors structured note positions: knock-out and
knock-in barriers, lifecycle status, and coupon accrual with memory
and step-down features.

Use 'notes help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/notes-tracker)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addNoteCommands(rootCmd, app)
	addCheckCommands(rootCmd, app)
	addCouponCommands(rootCmd, app)
	addScheduleCommands(rootCmd, app)
	addPriceCommands(rootCmd, app)
	addExtractCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Notes Tracker v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Database")
	output.Printf("  Path:            %s\n", cfg.Database.Path)
	output.Println()

	output.Bold("Prices")
	output.Printf("  Delay:           %d ms\n", cfg.Prices.DelayMillis)
	output.Printf("  Lookback:        %d days\n", cfg.Prices.LookbackDays)
	output.Println()

	output.Bold("Engine")
	output.Printf("  Workers:         %d\n", cfg.Engine.Workers)
	output.Printf("  Deferred Policy: %s\n", cfg.Engine.DeferredPolicy)

	return nil
}
