package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := daemonClient()
		if err != nil {
			return err
		}

		resp, err := c.R().Get("/api/status")
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

		var st struct {
			Session             string `json:"session"`
			State               string `json:"state"`
			PendingMutations    int    `json:"pending_mutations"`
			CachedChats         int    `json:"cached_chats"`
			CachedMessages      int    `json:"cached_messages"`
			ActiveSubscriptions int    `json:"active_subscriptions"`
		}
		if err := json.Unmarshal(resp.Body(), &st); err != nil {
			return err
		}

		fmt.Printf("Session:       %s\n", st.Session)
		fmt.Printf("State:         %s\n", st.State)
		fmt.Printf("Pending:       %d\n", st.PendingMutations)
		fmt.Printf("Chats:         %d\n", st.CachedChats)
		fmt.Printf("Messages:      %d\n", st.CachedMessages)
		fmt.Printf("Subscriptions: %d\n", st.ActiveSubscriptions)
		return nil
	},
}
