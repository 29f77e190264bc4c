package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	sessionID string
)

func main() {
	root := &cobra.Command{
		Use:   "workroom",
		Short: "workroom session client",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "workroomd base URL")
	root.PersistentFlags().StringVar(&sessionID, "session", "", "session id (generated when empty)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newTasksCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newEndCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// channelURL converts the HTTP base URL into the websocket endpoint.
func channelURL() string {
	url := serverURL
	if strings.HasPrefix(url, "https://") {
		url = "wss://" + strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/ws"
}
