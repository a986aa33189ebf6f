package internal

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goplus/extender/internal/env"
	"github.com/goplus/extender/pkgs/platform"
)

var (
	configPath string
	verbose    bool
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "extender",
	Short: "extender builds engine executables with native extensions",
	Long: `extender discovers native extensions in a source tree, compiles each one
into a static library with the toolchain of the selected platform and links
them with the engine runtime into a single executable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.DisableStacktrace = true
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Platform configuration file (yaml or toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and stream toolchain output")
}

// loadConfig reads the platform configuration named by --config,
// $EXTENDER_CONFIG or the user config directory.
func loadConfig() (*platform.Config, error) {
	path, err := env.PlatformsFile(configPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("loading platforms", zap.String("path", path))
	return platform.Load(path, logger)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}
