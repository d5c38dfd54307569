package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var searchChatID int64

func init() {
	searchCmd.Flags().Int64Var(&searchChatID, "chat", 0, "restrict search to one chat")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search the local message archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := daemonClient()
		if err != nil {
			return err
		}

		req := c.R().SetQueryParam("q", args[0])
		if searchChatID != 0 {
			req.SetQueryParam("chat_id", fmt.Sprint(searchChatID))
		}
		resp, err := req.Get("/api/search")
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

		var results []struct {
			Message struct {
				ChatID     int64  `json:"ChatID"`
				AuthorName string `json:"AuthorName"`
				CreateDate int64  `json:"CreateDate"`
			} `json:"Message"`
			Snippet string `json:"Snippet"`
		}
		if err := json.Unmarshal(resp.Body(), &results); err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			ts := time.UnixMilli(r.Message.CreateDate).Format("2006-01-02 15:04")
			fmt.Printf("chat %d  %s  %s: %s\n", r.Message.ChatID, ts, r.Message.AuthorName, r.Snippet)
		}
		return nil
	},
}
