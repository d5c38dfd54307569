package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lbarreto/chatsync/internal/daemon"
	"github.com/lbarreto/chatsync/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	listenFlag := flag.String("listen", "", "control api listen address (overrides session config)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			Listen:      *listenFlag,
		}),
	)

	app.Run()
}
