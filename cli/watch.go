package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func NewWatchCmd() *cobra.Command {
	cfg := mqtt.Config{QoS: 1, Timeout: 30 * time.Second}

	cmd := &cobra.Command{
		Use:   "watch <run_id>",
		Short: "Watch run progress",
		Long: `Stream round summaries and status changes of a run from the MQTT broker.
The command exits when the run reaches a terminal status.

Examples:
  fedlearn-cli watch b1d10738-c5d7-4ff1-8f4d-b9328ce6f040 --mqtt-url tcp://localhost:1883`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			runID := args[0]

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			ps, err := mqtt.NewPubSub(cfg, "fedlearn-cli-"+uuid.NewString(), logger)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			defer func() {
				_ = ps.Disconnect(context.Background())
			}()

			done := make(chan struct{})
			var once sync.Once
			handler := func(topic string, msg map[string]any) error {
				logJSONCmd(*cmd, msg)
				if !strings.HasSuffix(topic, "/status") {
					return nil
				}
				if s, ok := msg["status"].(string); ok && fl.RunStatus(s).Terminal() {
					once.Do(func() { close(done) })
				}

				return nil
			}

			for _, topic := range []string{mqtt.RoundsTopic(runID), mqtt.StatusTopic(runID)} {
				if err := ps.Subscribe(ctx, topic, handler); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			select {
			case <-ctx.Done():
			case <-done:
			}
		},
	}

	cmd.Flags().StringVar(&cfg.URL, "mqtt-url", DefMQTTURL, "MQTT broker URL")
	cmd.Flags().StringVar(&cfg.Username, "mqtt-username", "", "MQTT username")
	cmd.Flags().StringVar(&cfg.Password, "mqtt-password", "", "MQTT password")

	return cmd
}
