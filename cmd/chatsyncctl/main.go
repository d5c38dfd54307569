// chatsyncctl is the control CLI for a running chatsyncd daemon. It
// talks to the daemon's loopback HTTP API; the session flag picks which
// daemon, resolved the same way the daemon resolves it.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/lbarreto/chatsync/internal/config"
	"github.com/lbarreto/chatsync/internal/session"
)

var (
	sessionFlag string
	jsonFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "chatsyncctl",
	Short: "Control a running chatsyncd daemon",
	Long:  "Command-line interface for the chatsync daemon.\nInspect connection status, browse cached chats and messages, and send messages.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output raw JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// daemonClient builds a resty client pointed at the session daemon's
// control API.
func daemonClient() (*resty.Client, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}

	listen := config.DefaultListen
	if cfg, err := config.LoadSession(session.SessionConfigPath(name)); err == nil && cfg.HTTP.Listen != "" {
		listen = cfg.HTTP.Listen
	}

	return resty.New().
		SetBaseURL("http://" + listen).
		SetTimeout(10 * time.Second), nil
}

// printJSON pretty-prints a response body when --json is set.
func printJSON(body []byte) {
	var buf any
	if err := json.Unmarshal(body, &buf); err != nil {
		fmt.Println(string(body))
		return
	}
	out, _ := json.MarshalIndent(buf, "", "  ")
	fmt.Println(string(out))
}

// apiError turns a non-2xx response into a readable error.
func apiError(resp *resty.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("daemon: %s", body.Error)
	}
	return fmt.Errorf("daemon: %s", resp.Status())
}
