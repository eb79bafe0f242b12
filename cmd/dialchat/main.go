package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/comigor/dialchat-go/internal/config"
	"github.com/comigor/dialchat-go/internal/llm"
	"github.com/comigor/dialchat-go/internal/logger"
	"github.com/comigor/dialchat-go/internal/session"
	"github.com/comigor/dialchat-go/internal/transcript"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dialchat",
		Short:         "Interactive console chat against a DIAL chat-completions deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.String("endpoint", config.DefaultEndpoint, "DIAL base URL")
	flags.String("api-version", config.DefaultAPIVersion, "api-version query parameter (sdk client)")
	flags.StringP("deployment", "d", config.DefaultDeployment, "deployment (model) name")
	flags.Bool("stream", true, "print the reply token by token")
	flags.String("client", config.ClientSDK, "completion client: sdk (go-openai) or http (hand-built requests)")
	flags.String("system-prompt", config.DefaultSystemPrompt, "system prompt used when none is typed")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.String("transcript-db", "", "SQLite file recording the transcript (empty keeps it in memory)")

	root.AddCommand(newTranscriptCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}

func newClient(cfg *config.Config, out io.Writer) llm.Client {
	if cfg.Chat.Client == config.ClientHTTP {
		return llm.NewHTTPClient(cfg.Dial, out)
	}
	return llm.NewSDKClient(cfg.Dial, out)
}

func runChat(ctx context.Context, cmd *cobra.Command, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store := transcript.Open(cfg.Transcript.DBPath)
	defer store.Close()

	s := session.New(newClient(cfg, out), *cfg, session.WithRecorder(store))
	logger.L.Info("starting chat",
		slog.String("session", s.ID()),
		slog.String("deployment", cfg.Dial.Deployment),
		slog.String("client", cfg.Chat.Client),
		slog.Bool("stream", cfg.Chat.Stream),
	)

	err = s.Run(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Interrupted. Goodbye!")
		return nil
	}
	return err
}
