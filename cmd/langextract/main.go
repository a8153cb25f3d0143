// Command langextract extracts entities and relationships from text with one
// or several language models, and chats about it.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	dbPath     string
	llm        string
	logLevel   string
}

var flags globalFlags

func main() {
	root := &cobra.Command{
		Use:          "langextract",
		Short:        "Multi-model entity and relationship extraction",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.langextract/config.yaml)")
	pf.StringVar(&flags.dbPath, "db", "", "run and session database path")
	pf.StringVar(&flags.llm, "llm", "", "default model as provider/model, e.g. ollama/gemma3:4b")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(extractCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(sessionsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
