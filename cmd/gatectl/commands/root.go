package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-taskgate/internal/console/client"
)

const (
	urlEnv   = "TASKGATE_CONSOLE_URL"
	tokenEnv = "TASKGATE_TOKEN"
)

type options struct {
	url     string
	token   string
	timeout time.Duration
}

// NewRootCmd creates the gatectl root command
func NewRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "gatectl",
		Short:        "gatectl - operator CLI for the task risk gate",
		Long:         `gatectl lists tasks waiting on the approval gate, records operator decisions and classifies task descriptions locally.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.url, "url", envOr(urlEnv, "http://localhost:8000"), "Console API base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv(tokenEnv), "Bearer token issued by the console")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP request timeout")

	cmd.AddCommand(
		newLoginCmd(opts),
		newPendingCmd(opts),
		newDecisionCmd(opts, "approve", true),
		newDecisionCmd(opts, "deny", false),
		newDismissCmd(opts),
		newClassifyCmd(),
	)
	return cmd
}

func (o *options) client() *client.Client {
	return client.New(o.url, o.token, o.timeout)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
