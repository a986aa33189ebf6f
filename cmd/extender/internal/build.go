package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goplus/extender/internal/build"
	"github.com/goplus/extender/pkgs/toolchain"
)

var (
	buildPlatform     string
	buildOutput       string
	buildJobs         int
	buildTimeout      time.Duration
	buildKeep         bool
	buildWorkRoot     string
	buildRuntimeMain  string
	buildRegistration string
	buildName         string
)

var buildCmd = &cobra.Command{
	Use:   "build [source dir]",
	Short: "Build an engine executable from the extensions in a source tree",
	Long: `Build compiles every extension found under the source directory with the
selected platform's toolchain and links them into one engine executable.

The output (-o) may be a file, an existing directory, or a path ending in .zip
to package the executable.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.StringVarP(&buildPlatform, "platform", "p", "", "Target platform identifier")
	flags.StringVarP(&buildOutput, "output", "o", ".", "Output path (file, directory or .zip)")
	flags.IntVarP(&buildJobs, "jobs", "j", 1, "Number of extensions compiled in parallel")
	flags.DurationVar(&buildTimeout, "timeout", 0, "Per-command timeout, 0 for none")
	flags.BoolVar(&buildKeep, "keep-workspace", false, "Keep the workspace when the build fails")
	flags.StringVar(&buildWorkRoot, "workspace-root", "", "Directory for build workspaces (default system temp)")
	flags.StringVar(&buildRuntimeMain, "runtime-main", "", "Replacement runtime entry source")
	flags.StringVar(&buildRegistration, "registration-template", "", "Replacement registration source template")
	flags.StringVar(&buildName, "name", build.DefaultBinaryName, "Executable name without suffix")
	buildCmd.MarkFlagRequired("platform")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	plat, err := cfg.Lookup(buildPlatform)
	if err != nil {
		return err
	}

	opts := build.Options{
		SourceDir:     args[0],
		Platform:      plat,
		WorkspaceRoot: buildWorkRoot,
		Jobs:          buildJobs,
		KeepOnFailure: buildKeep,
		BinaryName:    buildName,
		Logger:        logger,
	}
	runner := &toolchain.Runner{Env: plat.Env, Timeout: buildTimeout, Logger: logger}
	if verbose {
		runner.Output = cmd.ErrOrStderr()
	}
	opts.Runner = runner

	if buildRuntimeMain != "" {
		if opts.RuntimeSource, err = os.ReadFile(buildRuntimeMain); err != nil {
			return fmt.Errorf("failed to read runtime entry: %w", err)
		}
	}
	if buildRegistration != "" {
		data, err := os.ReadFile(buildRegistration)
		if err != nil {
			return fmt.Errorf("failed to read registration template: %w", err)
		}
		opts.RegistrationTemplate = string(data)
	}

	// Resolve output path before the build so relative paths mean the caller's cwd
	output, err := filepath.Abs(buildOutput)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := build.Build(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Dispose(); err != nil {
			logger.Warn("failed to remove workspace", zap.Error(err))
		}
	}()

	dest, err := outputResult(res, output)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), dest)
	return nil
}
