package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hurttlocker/langextract/internal/api"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		models  modelFlags
		noStore bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(models, !noStore)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if h, err := a.speech.Health(probeCtx); err != nil {
				slog.Warn("speech service unreachable; /api/transcribe will fail",
					"endpoint", a.cfg.SpeechEndpoint.Value, "err", err)
			} else {
				slog.Info("speech service ready", "status", h.Status, "languages", h.SupportedLanguages)
			}
			cancel()

			d := a.orch.Defaults()
			srv := api.NewServer(api.ServerConfig{
				Orchestrator: a.orch,
				Store:        a.store,
				Ingest:       a.ingest,
				Speech:       a.speech,
				Addr:         a.cfg.ServerAddr.Value,
				Info: map[string]any{
					"version":       version,
					"default_model": d.ExtractModel,
					"first_model":   d.FirstModel,
					"second_model":  d.SecondModel,
					"referee_model": d.RefereeModel,
					"chat_model":    d.ChatModel,
				},
			})
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&models.addr, "addr", "", "listen address (default 127.0.0.1:8000)")
	cmd.Flags().StringVar(&models.first, "first", "", "default first-pass model")
	cmd.Flags().StringVar(&models.second, "second", "", "default second-pass model")
	cmd.Flags().StringVar(&models.referee, "referee", "", "default referee model")
	cmd.Flags().StringVar(&models.chat, "chat-model", "", "default chat model")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "serve without the run and session database")
	return cmd
}
