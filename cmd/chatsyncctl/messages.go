package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lbarreto/chatsync/internal/model"
)

func init() {
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(readCmd)
}

var messagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "List cached messages of a chat, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id %q", args[0])
		}

		c, err := daemonClient()
		if err != nil {
			return err
		}

		resp, err := c.R().Get(fmt.Sprintf("/api/chats/%d/messages", chatID))
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

		var msgs []model.Message
		if err := json.Unmarshal(resp.Body(), &msgs); err != nil {
			return err
		}
		for _, m := range msgs {
			ts := time.UnixMilli(m.CreateDate).Format("2006-01-02 15:04")
			marker := ""
			if m.Provisional() {
				marker = " (sending)"
			}
			fmt.Printf("%s  %s: %s%s\n", ts, m.Author.Name, m.Body, marker)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id %q", args[0])
		}

		c, err := daemonClient()
		if err != nil {
			return err
		}

		resp, err := c.R().
			SetBody(map[string]any{"body": args[1]}).
			Post(fmt.Sprintf("/api/chats/%d/messages", chatID))
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
		fmt.Println("accepted")
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <chat-id>",
	Short: "Mark a chat as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id %q", args[0])
		}

		c, err := daemonClient()
		if err != nil {
			return err
		}

		resp, err := c.R().
			SetBody(map[string]any{}).
			Post(fmt.Sprintf("/api/chats/%d/read", chatID))
		if err != nil {
			return fmt.Errorf("cannot reach daemon (is chatsyncd running?): %w", err)
		}
		if resp.IsError() {
			return apiError(resp)
		}
		return nil
	},
}
