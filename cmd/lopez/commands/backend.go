package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lopezcrawl/lopez/pkg/backend"
	"github.com/lopezcrawl/lopez/pkg/backend/boltstore"
	"github.com/lopezcrawl/lopez/pkg/backend/memstore"
)

func addBackendFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", "bolt", "persistence backend: bolt, mem")
	cmd.Flags().String("backend-path", "lopez.db", "bbolt database file path (ignored for --backend=mem)")
}

// openBackend constructs the Backend named by --backend. Callers must call
// CloseBackend when done.
func openBackend(cmd *cobra.Command) (backend.Backend, error) {
	kind, _ := cmd.Flags().GetString("backend")
	switch kind {
	case "mem":
		return memstore.New(), nil
	case "bolt", "":
		path, _ := cmd.Flags().GetString("backend-path")
		return boltstore.Open(path)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'bolt' or 'mem')", kind)
	}
}
