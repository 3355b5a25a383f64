package main

import (
	"os"

	"chatbridge/internal/config"
	"chatbridge/internal/observability"

	"github.com/spf13/cobra"
)

// cli carries state shared by the subcommands.
type cli struct {
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "chatbridge",
		Short: "Role-play chat bot with a persistent per-conversation history",
		Long: `chatbridge relays group and private chats to a language model. It keeps
the most recent messages of every conversation in a bounded cache that is
written to disk, so the bot remembers context across restarts.

Environment Variables:
  CHATBRIDGE_*          Any config key, e.g. CHATBRIDGE_HISTORY_MAX_SIZE
  TELEGRAM_BOT_TOKEN    Telegram bot token
  DEEPSEEK_API_KEY      DeepSeek API key
  BOT_NAME              Author id used for the bot's own messages
  CHARACTER_INFO        Character sheet for the role-play prompt`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			observability.Setup(os.Stderr, cfg.Log.Format, cfg.Log.Level)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is ./chatbridge.yaml)")

	root.AddCommand(
		newServeCmd(c),
		newChatCmd(c),
		newHistoryCmd(c),
		newInspectCmd(c),
	)
	return root
}
