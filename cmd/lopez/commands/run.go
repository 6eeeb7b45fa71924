package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lopezcrawl/lopez/internal/logger"
	"github.com/lopezcrawl/lopez/internal/stdlib"
	"github.com/lopezcrawl/lopez/pkg/fetcher"
	"github.com/lopezcrawl/lopez/pkg/lopez"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a Crawl Directives program to completion as a wave",
	Long: `run compiles a .lcd file and crawls it to termination (§4.I): no
taken rows remain and no open rows under max_depth remain, or the
quota is reached and no taken rows remain.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addBackendFlags(runCmd)

	flags := runCmd.Flags()
	flags.StringP("directives", "d", "", "path to a .lcd directives file (required)")
	flags.StringP("wave", "w", "default", "wave name")
	flags.String("stdlib", "", "path to a YAML standard-library import manifest")
	flags.String("fetch-mode", "static", "fetch mode: static, headless")
	flags.Int("workers", 0, "worker pool size (0 = auto, max(8, 2*NumCPU))")
	flags.Duration("shutdown-grace", 30*time.Second, "grace period for in-flight pages on shutdown")

	_ = runCmd.MarkFlagRequired("directives")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	directivesPath, _ := cmd.Flags().GetString("directives")
	src, err := os.ReadFile(directivesPath) //#nosec G304 -- CLI tool reads a user-specified directives file
	if err != nil {
		logError("reading directives file: %v", err)
		return err
	}

	var resolver *stdlib.Resolver
	if manifestPath, _ := cmd.Flags().GetString("stdlib"); manifestPath != "" {
		manifest, err := os.ReadFile(manifestPath) //#nosec G304 -- CLI tool reads a user-specified manifest file
		if err != nil {
			logError("reading stdlib manifest: %v", err)
			return err
		}
		resolver, err = stdlib.NewResolver(manifest)
		if err != nil {
			logError("parsing stdlib manifest: %v", err)
			return err
		}
	}

	be, err := openBackend(cmd)
	if err != nil {
		logError("opening backend: %v", err)
		return err
	}

	fetchMode, _ := cmd.Flags().GetString("fetch-mode")
	var f fetcher.Fetcher
	switch fetchMode {
	case "headless":
		f = fetcher.NewHeadless()
	case "static", "":
		f = fetcher.NewHTTP()
	default:
		_ = be.CloseBackend()
		err := fmt.Errorf("unknown fetch mode: %s (use 'static' or 'headless')", fetchMode)
		logError("%v", err)
		return err
	}

	workers, _ := cmd.Flags().GetInt("workers")
	shutdownGrace, _ := cmd.Flags().GetDuration("shutdown-grace")

	l, err := lopez.New(
		lopez.WithBackend(be),
		lopez.WithFetcher(f),
		lopez.WithWorkers(workers),
		lopez.WithShutdownGrace(shutdownGrace),
	)
	if err != nil {
		logError("initializing: %v", err)
		return err
	}
	defer func() { _ = l.Close() }()

	wave, _ := cmd.Flags().GetString("wave")
	logInfo("starting wave %q from %s", wave, directivesPath)

	if err := l.Run(ctx, wave, string(src), resolver); err != nil {
		logError("crawl failed: %v", err)
		return err
	}

	logInfo("wave %q finished", wave)
	return nil
}
