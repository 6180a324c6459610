package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cjeanneret/spinrec/internal/config"
	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

// defaultConfigPath may be missing; the built-in defaults are used then.
var defaultConfigPath = filepath.Join("configs", "default.yaml")

// options holds the persistent flags shared by every subcommand.
type options struct {
	ConfigPath string
	DebugLevel int // -1 keeps the config value
	NoPrompt   bool
	NoProgress bool
}

var (
	opts options
	// app is built by the root pre-run hook and used by every subcommand.
	app *runner
)

var rootCmd = &cobra.Command{
	Use:           "spinrec",
	Short:         "Configure and acquire images from every attached Spinnaker camera",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(opts.ConfigPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if opts.DebugLevel < -1 || opts.DebugLevel > debug.LevelTrace {
			return fmt.Errorf("--debug must be between 0 and 4, got %d", opts.DebugLevel)
		}
		if opts.DebugLevel >= 0 {
			cfg.Defaults.DebugLevel = opts.DebugLevel
		}
		if opts.NoPrompt {
			cfg.Defaults.NoPrompt = true
		}

		debug.Init(cfg.Defaults.DebugLevel)
		debug.Section("Initialization")
		debug.Value("Config path", opts.ConfigPath)
		debug.Value("Debug level", cfg.Defaults.DebugLevel)
		debug.Value("Backend", cfg.Runtime.Backend)

		app, err = newRunner(cfg, os.Stdin, os.Stdout, os.Stderr, !opts.NoProgress)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultConfigPath, "path to config file")
	rootCmd.PersistentFlags().IntVar(&opts.DebugLevel, "debug", -1, "debug level 0-4 (default: from config)")
	rootCmd.PersistentFlags().BoolVar(&opts.NoPrompt, "no-prompt", false, "do not wait for Enter; fire software triggers immediately")
	rootCmd.PersistentFlags().BoolVar(&opts.NoProgress, "no-progress", false, "do not draw a progress bar")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig reads the config file. A missing file at the default path falls
// back to the built-in defaults; an explicit --config must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if err := config.ValidateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return cfg, nil
}

// execute runs the root command and returns the process exit code.
func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if app != nil {
			app.Close()
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "spinrec:", err)
		return -1
	}
	return 0
}

func main() {
	os.Exit(execute())
}
