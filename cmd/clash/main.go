// cmd/clash/main.go is a command line player for the cardclash API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/cardclash/internal/client"
	"github.com/jason-s-yu/cardclash/internal/poller"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	server  string
	address string
	name    string
	timeout time.Duration
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	logger := logrus.New()

	root := &cobra.Command{
		Use:          "clash",
		Short:        "Play cardclash battles from the terminal",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetOutput(cmd.ErrOrStderr())
			if g.verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&g.server, "server", envOr("CLASH_SERVER", "http://localhost:8080"), "API base url")
	root.PersistentFlags().StringVar(&g.address, "address", os.Getenv("CLASH_ADDRESS"), "wallet address to play as")
	root.PersistentFlags().StringVar(&g.name, "name", os.Getenv("CLASH_NAME"), "display name")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "per request timeout")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newPlayCmd(g, logger),
		newAccountCmd(g),
		newHistoryCmd(g),
		newCancelCmd(g),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// login builds a client and opens a session for the configured address.
func login(ctx context.Context, g *globalFlags) (*client.Client, error) {
	if g.address == "" {
		return nil, fmt.Errorf("--address or CLASH_ADDRESS is required")
	}
	c, err := client.New(g.server, g.timeout)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx, g.address, g.name); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c, nil
}

func newSession(c *client.Client, logger logrus.FieldLogger) *client.Session {
	return client.NewSession(c, poller.DefaultConfig, logger)
}
