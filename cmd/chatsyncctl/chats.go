package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lbarreto/chatsync/internal/model"
)

func init() {
	rootCmd.AddCommand(chatsCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List cached chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := daemonClient()
		if err != nil {
			return err
		}

		resp, err := c.R().Get("/api/chats")
		if err != nil {
			return fmt.Errorf("cannot reach daemon (is chatsyncd running?): %w", err)
		}
		if resp.IsError() {
			return apiError(resp)
		}

		if jsonFlag {
			printJSON(resp.Body())
			return nil
		}

		var chats []model.Chat
		if err := json.Unmarshal(resp.Body(), &chats); err != nil {
			return err
		}
		if len(chats) == 0 {
			fmt.Println("no chats")
			return nil
		}
		for _, chat := range chats {
			unread := ""
			if chat.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", chat.UnreadCount)
			}
			preview := ""
			if chat.LastMessage != nil {
				preview = "  " + chat.LastMessage.Body
			}
			fmt.Printf("%8d  %s%s%s\n", chat.ID, chat.Name, unread, preview)
		}
		return nil
	},
}
