package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/workroomhq/workroom/internal/protocol"
	"github.com/workroomhq/workroom/internal/ws"
)

func newRunCmd() *cobra.Command {
	var cwd string
	cmd := &cobra.Command{
		Use:   "run <command>",
		Short: "Execute a command in a session and stream its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			sid := sessionID
			if sid == "" {
				sid = uuid.New().String()[:8]
			}

			client := ws.NewClient(channelURL(), sid)
			done := make(chan int, 1)

			client.OnEnvelope = func(env protocol.Envelope) {
				switch env.Type {
				case protocol.TypeTerminalCwd:
					var p protocol.TerminalCwd
					if env.Decode(&p) == nil {
						fmt.Fprintf(os.Stderr, "session %s in %s\n", sid, p.Cwd)
					}
				case protocol.TypeTerminalOutput:
					var p protocol.TerminalOutput
					if env.Decode(&p) == nil {
						fmt.Print(p.Chunk)
					}
				case protocol.TypeTerminalError:
					var p protocol.TerminalError
					if env.Decode(&p) == nil {
						fmt.Fprintln(os.Stderr, "error:", p.Message)
					}
					done <- 1
				case protocol.TypeTerminalExit:
					var p protocol.TerminalExit
					if env.Decode(&p) == nil {
						done <- p.ExitCode
					}
				}
			}

			var issue sync.Once
			client.OnStateChange = func(state ws.State, err error) {
				if state != ws.StateOpen {
					return
				}
				// A command lost to a disconnect window is not replayed;
				// issue it on the first open only.
				issue.Do(func() {
					ctx := context.Background()
					init, _ := protocol.NewEnvelope(protocol.TypeTerminalInit, sid, protocol.TerminalInit{Cwd: cwd})
					client.Send(ctx, init)
					exec, _ := protocol.NewEnvelope(protocol.TypeTerminalExecute, sid, protocol.TerminalExecute{Command: command})
					client.Send(ctx, exec)
				})
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			runErr := make(chan error, 1)
			go func() { runErr <- client.Run(ctx) }()

			select {
			case code := <-done:
				client.Close()
				if code != 0 {
					return fmt.Errorf("command exited with code %d", code)
				}
				return nil
			case err := <-runErr:
				return err
			case <-ctx.Done():
				client.Close()
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory hint")
	return cmd
}
