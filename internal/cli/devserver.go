package cli

import (
	"context"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"chat-client/internal/config"
	"chat-client/internal/devserver"
	"chat-client/internal/logging"
	"chat-client/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local chat backend for development",
	Long: `devserver serves the chat REST endpoints and the STOMP broker on /api/ws.

Environment:
  PORT           listen port (default 8083)
  DEV_TOKENS     token:userId:name,... accepted bearer tokens
  DB_DSN         postgres DSN; rooms are kept in memory when empty
  AMQP_URL       RabbitMQ URL for lifecycle and audit events
  DEBUG_ROUTES   "true" enables /debug endpoints`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer()
		if err != nil {
			return err
		}
		logger := logging.New()
		ctx := context.Background()

		shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
			ServiceName: "chat-devserver",
			Version:     version,
			Endpoint:    cfg.OTLPEndpoint,
		})
		if err != nil {
			return err
		}

		server, err := devserver.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		server.Start()

		wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, map[string]gfshutdown.Operation{
			"devserver": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				return server.Shutdown(ctx)
			},
			"tracing": func(ctx context.Context) error {
				return shutdownTracing(ctx)
			},
		})

		exitCode := <-wait
		logger.Info("devserver exited", "code", exitCode)
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
}
