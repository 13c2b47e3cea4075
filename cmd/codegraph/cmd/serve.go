package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abramin/codegraph/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stored graph over HTTP",
	Long: `Start a local HTTP server over the graph stored by the last build.

The API provides:
- Graph statistics and stored run metadata
- Records in their serialized node and edge shape
- Node lookup with incoming and outgoing edges
- Neighbourhood traversal with relation and type filters
- Name and text search
- Prometheus metrics when that exporter is configured`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		srv, err := server.New(server.Config{
			Port:     servePort,
			StoreDir: cfg.ResolvePath(cfg.Store.Dir),
		})
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Serving codegraph on http://localhost:%d\n", srv.Port())
		return srv.Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to run the server on")
}
