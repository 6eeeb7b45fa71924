package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lopezcrawl/lopez/internal/stdlib"
	"github.com/lopezcrawl/lopez/pkg/lopez"
)

var testDirectivesCmd = &cobra.Command{
	Use:   "test-directives",
	Short: "Compile a Crawl Directives program and report diagnostics",
	Long: `test-directives parses and compiles a .lcd file without running a
crawl (§6, §12): it reports the same errors a "run" invocation would hit
at startup — invalid patterns, unknown import paths, duplicate rule
names, unknown or mistyped "set" variables — or a summary of the
compiled program on success.`,
	RunE: runTestDirectives,
}

func init() {
	rootCmd.AddCommand(testDirectivesCmd)

	flags := testDirectivesCmd.Flags()
	flags.StringP("directives", "d", "", "path to a .lcd directives file (required)")
	flags.String("stdlib", "", "path to a YAML standard-library import manifest")
	_ = testDirectivesCmd.MarkFlagRequired("directives")
}

func runTestDirectives(cmd *cobra.Command, args []string) error {
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

	d, err := lopez.Compile(string(src), resolver)
	if err != nil {
		logError("%v", err)
		return err
	}

	fmt.Printf("OK: %s compiles cleanly\n", directivesPath)
	fmt.Printf("  seeds:            %d\n", len(d.Seeds))
	fmt.Printf("  quota:            %d\n", d.Config.Quota)
	fmt.Printf("  max_depth:        %d\n", d.Config.MaxDepth)
	fmt.Printf("  batch_size:       %d\n", d.Config.BatchSize)
	fmt.Printf("  max_hits_per_sec: %g\n", d.Config.MaxHitsPerSec)
	fmt.Printf("  user_agent:       %s\n", d.Config.UserAgent)
	fmt.Printf("  request_timeout:  %s\n", d.Config.RequestTimeout)
	fmt.Printf("  max_body_size:    %d\n", d.Config.MaxBodySize)
	return nil
}
