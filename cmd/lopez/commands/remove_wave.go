package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lopezcrawl/lopez/pkg/lopez"
)

var removeWaveCmd = &cobra.Command{
	Use:   "remove-wave",
	Short: "Delete a wave and its status/linkage/analysis rows",
	RunE:  runRemoveWave,
}

func init() {
	rootCmd.AddCommand(removeWaveCmd)
	addBackendFlags(removeWaveCmd)
	removeWaveCmd.Flags().StringP("wave", "w", "default", "wave name to delete")
}

func runRemoveWave(cmd *cobra.Command, args []string) error {
	be, err := openBackend(cmd)
	if err != nil {
		logError("opening backend: %v", err)
		return err
	}

	l, err := lopez.New(lopez.WithBackend(be))
	if err != nil {
		logError("initializing: %v", err)
		return err
	}
	defer func() { _ = l.Close() }()

	wave, _ := cmd.Flags().GetString("wave")
	n, err := l.RemoveWave(context.Background(), wave)
	if err != nil {
		logError("removing wave %q: %v", wave, err)
		return err
	}

	logInfo("removed wave %q (%d pages)", wave, n)
	return nil
}
