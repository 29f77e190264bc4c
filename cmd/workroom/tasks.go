package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/workroomhq/workroom/internal/protocol"
	"github.com/workroomhq/workroom/internal/task"
	"github.com/workroomhq/workroom/internal/ws"
)

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List a session's background tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			resp, err := http.Get(serverURL + "/api/sessions/" + sessionID + "/tasks")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("list tasks: %s", resp.Status)
			}

			var tasks []task.Task
			if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
				return err
			}
			for _, t := range tasks {
				line := fmt.Sprintf("%s  %-9s  %3d%%  %s", t.ID, t.Status, t.Progress, t.Title)
				if t.TotalSteps > 0 {
					line += fmt.Sprintf("  (step %d/%d)", t.StepIndex(), t.TotalSteps)
				}
				if t.Error != "" {
					line += "  error: " + t.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow task snapshots for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			client := ws.NewClient(channelURL(), sessionID)
			client.OnEnvelope = func(env protocol.Envelope) {
				if env.Type != protocol.TypeTaskSnapshot {
					return
				}
				var t task.Task
				if env.Decode(&t) != nil {
					return
				}
				fmt.Printf("%s  %-9s  %3d%%  %s\n", t.ID, t.Status, t.Progress, t.Title)
			}
			client.OnStateChange = func(state ws.State, err error) {
				if state == ws.StateConnecting {
					fmt.Fprintln(os.Stderr, "reconnecting...")
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			err := client.Run(ctx)
			if ctx.Err() != nil {
				client.Close()
				return nil
			}
			return err
		},
	}
}

func newEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End a session (task history is kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			resp, err := http.Post(serverURL+"/api/sessions/"+sessionID+"/end", "application/json", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("end session: %s", resp.Status)
			}
			fmt.Println("session ended")
			return nil
		},
	}
}
