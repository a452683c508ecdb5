package commands

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-taskgate/internal/console/client"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

func newLoginCmd(opts *options) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange operator credentials for a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Operator username")
	cmd.Flags().StringVar(&password, "password", "", "Operator password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newPendingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List tasks waiting for an operator decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			requests, err := opts.client().Pending(cmd.Context())
			if err != nil {
				return err
			}
			return printPending(cmd.OutOrStdout(), requests, time.Now())
		},
	}
}

func printPending(out io.Writer, requests []*domain.ApprovalRequest, now time.Time) error {
	if len(requests) == 0 {
		fmt.Fprintln(out, "No pending approvals.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLEVEL\tEXPIRES IN\tINDICATORS\tTASK")
	for _, r := range requests {
		left := r.ExpiresAt.Sub(now).Round(time.Second)
		if left < 0 {
			left = 0
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Level, left, strings.Join(r.Indicators, ","), r.Description)
	}
	return tw.Flush()
}

func newDecisionCmd(opts *options, use string, approved bool) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.client().Decide(cmd.Context(), args[0], approved, comment)
			return reportDecision(cmd.OutOrStdout(), args[0], req, err)
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Decision comment")
	return cmd
}

func newDismissCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <id>",
		Short: "Close the prompt without answering (treated as a denial)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.client().Dismiss(cmd.Context(), args[0])
			return reportDecision(cmd.OutOrStdout(), args[0], req, err)
		},
	}
}

func reportDecision(out io.Writer, id string, req *domain.ApprovalRequest, err error) error {
	var apiErr *client.APIError
	switch {
	case err == nil:
		fmt.Fprintf(out, "Approval %s %s.\n", id, strings.ToLower(string(req.Status)))
		return nil
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict:
		return fmt.Errorf("approval %s was already decided", id)
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("approval %s not found", id)
	default:
		return err
	}
}
