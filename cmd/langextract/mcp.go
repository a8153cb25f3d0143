package main

import (
	"github.com/hurttlocker/langextract/internal/mcp"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	var noStore bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve extraction, analysis and chat as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(modelFlags{}, !noStore)
			if err != nil {
				return err
			}
			defer a.Close()

			return mcp.ServeStdio(mcp.NewServer(mcp.ServerConfig{
				Orchestrator: a.orch,
				Store:        a.store,
				Version:      version,
			}))
		},
	}
	cmd.Flags().BoolVar(&noStore, "no-store", false, "serve without the run and session database")
	return cmd
}
