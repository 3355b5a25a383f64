package main

import (
	"encoding/json"
	"fmt"
	"io"

	"chatbridge/internal/gateway"
	"chatbridge/internal/history"
	"chatbridge/internal/inspect"

	"github.com/spf13/cobra"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "history [conversation]",
		Short: "Print cached messages as JSON",
		Long:  "Without arguments, lists the cached conversations. With a conversation id, prints its most recent messages.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := gateway.OpenCache(c.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if len(args) == 0 {
				for _, id := range app.Cache.Conversations() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", id, app.Cache.Len(id))
				}
				return nil
			}
			return writeMessages(cmd.OutOrStdout(), app.Cache.Recent(args[0], count))
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of most recent messages (0 for all)")
	return cmd
}

func writeMessages(w io.Writer, msgs []history.Message) error {
	if msgs == nil {
		msgs = []history.Message{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(msgs)
}

func newInspectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Browse cached conversations in a terminal UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := gateway.OpenCache(c.cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			return inspect.Run(app.Cache, c.cfg.Bot.Name)
		},
	}
}
