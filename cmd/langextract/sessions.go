package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and read stored chat sessions",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List chat sessions, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(modelFlags{}, true)
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(w, dimStyle.Render("No sessions stored."))
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(w, "%s  %s  %s %s\n",
					dimStyle.Render(s.UpdatedAt.Local().Format("2006-01-02 15:04")),
					titleStyle.Render(s.ID),
					labelStyle.Render(s.Language+"/"+s.Domain),
					s.Title)
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(modelFlags{}, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sess, err := a.store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			turns, err := a.store.Turns(ctx, sess.ID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, titleStyle.Render(sess.Title)+" "+dimStyle.Render(sess.ID))
			for _, t := range turns {
				style := labelStyle
				if t.Role == "assistant" {
					style = replyStyle
				}
				fmt.Fprintf(w, "%s %s\n", style.Render(string(t.Role)+":"), t.Content)
			}
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
