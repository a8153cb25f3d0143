package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/store"
	"github.com/spf13/cobra"
)

// chatSession carries one conversation, in memory or backed by the store.
// A stored session is created with its first successful exchange.
type chatSession struct {
	orch    *orchestrator.Orchestrator
	store   store.Store // nil = in memory only
	id      string
	history []analysis.Turn
	base    orchestrator.ChatRequest
}

// turn sends one message, or one audio file when audio is non-nil, and
// records both sides on success.
func (s *chatSession) turn(ctx context.Context, message string, audio io.Reader, filename string) (*orchestrator.ChatReply, error) {
	req := s.base
	req.Message = message
	req.History = s.history

	var (
		reply *orchestrator.ChatReply
		err   error
	)
	if audio != nil {
		reply, err = s.orch.TranscribeAndChat(ctx, audio, filename, req)
	} else {
		reply, err = s.orch.Chat(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if reply.Transcript != "" {
		message = reply.Transcript
	}

	if s.store != nil {
		if err := s.save(ctx, message, reply.Reply); err != nil {
			return nil, err
		}
	}
	s.history = append(s.history,
		analysis.Turn{Role: analysis.RoleUser, Content: message},
		analysis.Turn{Role: analysis.RoleAssistant, Content: reply.Reply})
	return reply, nil
}

func chatCmd() *cobra.Command {
	var (
		models    modelFlags
		message   string
		audio     string
		mode      string
		language  string
		domain    string
		extractor string
		session   string
		persist   bool
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat about text, optionally analyzing each message first",
		Long: `Without --message or --audio, reads one message per line from stdin until
EOF or /exit. With --mode single or multi, every message is analyzed first and
the analysis is given to the chat model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analysisMode, err := orchestrator.ParseAnalysisMode(mode)
			if err != nil {
				return err
			}
			a, err := newApp(models, session != "" || persist)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			lang := analysis.NormalizeLanguage(orDefault(language, a.orch.Defaults().Language))
			dom := analysis.NormalizeDomain(orDefault(domain, a.orch.Defaults().Domain))
			cs := &chatSession{
				orch: a.orch,
				base: orchestrator.ChatRequest{
					Language:     lang,
					Domain:       dom,
					AnalysisMode: analysisMode,
					ExtractModel: extractor,
				},
			}
			if a.store != nil {
				cs.store = a.store
				if session != "" {
					if err := cs.resume(ctx, session); err != nil {
						return err
					}
				}
				defer func() {
					if cs.id != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "Session %s\n", cs.id)
					}
				}()
			}

			out := cmd.OutOrStdout()
			show := func(reply *orchestrator.ChatReply) error {
				if jsonOut {
					return printJSON(out, reply)
				}
				renderReply(out, reply)
				return nil
			}

			switch {
			case audio != "":
				f, err := os.Open(audio)
				if err != nil {
					return fmt.Errorf("opening audio: %w", err)
				}
				defer f.Close()
				reply, err := cs.turn(ctx, "", f, filepath.Base(audio))
				if err != nil {
					return err
				}
				return show(reply)
			case message != "":
				reply, err := cs.turn(ctx, message, nil, "")
				if err != nil {
					return err
				}
				return show(reply)
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for {
				fmt.Fprint(cmd.ErrOrStderr(), labelStyle.Render("> "))
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/exit" || line == "/quit" {
					return nil
				}
				reply, err := cs.turn(ctx, line, nil, "")
				if err != nil {
					// A failed turn leaves the history untouched; keep going.
					fmt.Fprintln(cmd.ErrOrStderr(), conflictStyle.Render("error: "+err.Error()))
					if ctx.Err() != nil {
						return ctx.Err()
					}
					continue
				}
				if err := show(reply); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	cmd.Flags().StringVar(&audio, "audio", "", "transcribe this audio file and send it as one message")
	cmd.Flags().StringVar(&mode, "mode", "none", "analysis per message: none, single or multi")
	cmd.Flags().StringVar(&language, "language", "", "conversation language (default fa)")
	cmd.Flags().StringVar(&domain, "domain", "", "analysis domain: general, police or legal")
	cmd.Flags().StringVar(&models.chat, "model", "", "chat model")
	cmd.Flags().StringVar(&extractor, "extract-model", "", "model for --mode single")
	cmd.Flags().StringVar(&models.first, "first", "", "first-pass model for --mode multi")
	cmd.Flags().StringVar(&models.second, "second", "", "second-pass model for --mode multi")
	cmd.Flags().StringVar(&models.referee, "referee", "", "referee model for --mode multi")
	cmd.Flags().StringVar(&session, "session", "", "continue a stored session")
	cmd.Flags().BoolVar(&persist, "save", false, "store the conversation as a new session")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print replies as JSON")
	return cmd
}

// resume loads the stored turns of session id.
func (s *chatSession) resume(ctx context.Context, id string) error {
	turns, err := s.store.Turns(ctx, id)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", id, err)
	}
	s.id = id
	s.history = turns
	return nil
}

// save stores one exchange, starting the session on the first one.
func (s *chatSession) save(ctx context.Context, user, assistant string) error {
	if s.id == "" {
		id, err := s.store.StartSession(ctx, &store.Session{
			Title:    snippet(user, 60),
			Language: s.base.Language,
			Domain:   s.base.Domain,
		}, user, assistant)
		if err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		s.id = id
		return nil
	}
	if _, err := s.store.AppendExchange(ctx, s.id, user, assistant); err != nil {
		return fmt.Errorf("saving turn: %w", err)
	}
	return nil
}

func renderReply(w io.Writer, reply *orchestrator.ChatReply) {
	if reply.Transcript != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("heard:"), reply.Transcript)
	}
	switch {
	case reply.Arbitration != nil:
		fmt.Fprintf(w, "%s agreement %.0f%%, %d entities, %d relationships\n",
			dimStyle.Render("[analysis]"),
			reply.Arbitration.AgreementScore*100,
			len(reply.Arbitration.FinalAnalysis.Entities),
			len(reply.Arbitration.FinalAnalysis.Relationships))
	case reply.Analysis != nil:
		fmt.Fprintf(w, "%s %d entities, %d relationships\n",
			dimStyle.Render("[analysis]"),
			len(reply.Analysis.Entities),
			len(reply.Analysis.Relationships))
	}
	fmt.Fprintln(w, replyStyle.Render(reply.Reply))
}
