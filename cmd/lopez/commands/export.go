package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/lopezcrawl/lopez/internal/output"
	"github.com/lopezcrawl/lopez/internal/value"
)

// pageResult is one exported row: a page's committed analysis results,
// with Value trees flattened to plain Go values via value.ToAny so both
// the JSON and YAML writers can encode it without a Value-aware codec.
type pageResult struct {
	PageID  uint64         `json:"page_id" yaml:"page_id"`
	URL     string         `json:"url" yaml:"url"`
	Results map[string]any `json:"results" yaml:"results"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump a wave's committed per-page analysis results",
	Long: `export streams every page's committed extractor/transformer/
aggregator results for a wave (§3 "analysis results", §12 supplemented
feature) to stdout or a file, as JSON, JSONL, or YAML.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	addBackendFlags(exportCmd)

	flags := exportCmd.Flags()
	flags.StringP("wave", "w", "default", "wave name")
	flags.StringP("format", "f", "jsonl", "output format: json, jsonl, yaml")
	flags.StringP("output", "o", "", "output file path (default: stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	be, err := openBackend(cmd)
	if err != nil {
		logError("opening backend: %v", err)
		return err
	}
	defer func() { _ = be.CloseBackend() }()

	wave, _ := cmd.Flags().GetString("wave")
	waveID, err := be.EnsureWave(context.Background(), wave)
	if err != nil {
		logError("resolving wave %q: %v", wave, err)
		return err
	}

	outFile := os.Stdout
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logError("creating output file: %v", err)
			return err
		}
		defer func() { _ = f.Close() }()
		outFile = f
	}

	formatStr, _ := cmd.Flags().GetString("format")
	writer, err := output.NewWriter(outFile, output.Format(formatStr))
	if err != nil {
		logError("creating output writer: %v", err)
		return err
	}
	defer func() { _ = writer.Close() }()

	n := 0
	err = be.IterateResults(context.Background(), waveID, func(pageID uint64, url string, analyses map[string]value.Value) error {
		flat := make(map[string]any, len(analyses))
		for name, v := range analyses {
			flat[name] = value.ToAny(v)
		}
		n++
		return writer.Write(pageResult{PageID: pageID, URL: url, Results: flat})
	})
	if err != nil {
		logError("exporting wave %q: %v", wave, err)
		return err
	}

	if err := writer.Flush(); err != nil {
		logError("flushing output: %v", err)
		return err
	}

	logInfo("exported %d pages from wave %q", n, wave)
	return nil
}
