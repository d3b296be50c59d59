package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/fwauto/fwauto/pkg/audit"
	"github.com/fwauto/fwauto/pkg/auth"
	"github.com/fwauto/fwauto/pkg/fwauto/approval"
	"github.com/fwauto/fwauto/pkg/fwauto/commit"
)

var (
	commitDescription     string
	commitPartialAdmins   []string
	commitRequireApproval bool
	commitAsync           bool
	rejectReason          string
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the candidate configuration",
	Long: `Commit the candidate configuration and wait for the commit job.

With --require-approval the commit stops at an approval ticket; a second
user runs 'fwauto approve <ticket>' to carry it out. Tickets survive the
process only when redis_addr is configured.

With --async the job id is printed as soon as the device accepts the commit.

Examples:
  fwauto commit --description "add web servers"
  fwauto commit --partial-admin alice
  fwauto commit --require-approval`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermCommit, app.authContext()); err != nil {
			return err
		}
		m, err := app.commitMachine(cmd.Context())
		if err != nil {
			return err
		}

		start := time.Now()
		out := m.Run(cmd.Context(), commit.Request{
			Description:     commitDescription,
			PartialAdmins:   commitPartialAdmins,
			RequireApproval: commitRequireApproval,
			Async:           commitAsync,
			RequestedBy:     app.permChecker.CurrentUser(),
		})
		recordCommit("commit", out, time.Since(start))
		return printCommit(out)
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <ticket>",
	Short: "Approve a pending commit and carry it out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(cmd.Context(), "approve", args[0], approval.Approve(app.permChecker.CurrentUser()))
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <ticket>",
	Short: "Reject a pending commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(cmd.Context(), "reject", args[0], approval.Reject(app.permChecker.CurrentUser(), rejectReason))
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitDescription, "description", "", "Commit description")
	commitCmd.Flags().StringSliceVar(&commitPartialAdmins, "partial-admin", nil, "Commit only changes by these admins (repeatable)")
	commitCmd.Flags().BoolVar(&commitRequireApproval, "require-approval", false, "Stop at an approval ticket")
	commitCmd.Flags().BoolVar(&commitAsync, "async", false, "Return once the commit job is queued")

	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Reason recorded on the ticket")
}

func decide(ctx context.Context, operation, ticketID string, d approval.Decision) error {
	if err := app.check(auth.PermCommitApprove, app.authContext()); err != nil {
		return err
	}
	m, err := app.commitMachine(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	out := m.Resume(ctx, ticketID, d)

	event := app.newEvent(audit.EventTypeApproval, operation).
		WithJob(out.JobID, ticketID).
		WithStatus(out.Status.String(), out.OK()).
		WithDuration(time.Since(start))
	logEvent(event, out.Err)

	return printCommit(out)
}

func recordCommit(operation string, out commit.Outcome, d time.Duration) {
	event := app.newEvent(audit.EventTypeCommit, operation).
		WithJob(out.JobID, out.TicketID).
		WithStatus(out.Status.String(), out.OK()).
		WithDuration(d)
	logEvent(event, out.Err)
}

func printCommit(out commit.Outcome) error {
	if app.jsonOutput {
		if err := printJSON(out); err != nil {
			return err
		}
		if !out.OK() {
			return errSilentFailure
		}
		return nil
	}
	return printOutcome(out.Message, out.OK())
}
