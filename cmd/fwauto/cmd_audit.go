package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fwauto/fwauto/pkg/audit"
	"github.com/fwauto/fwauto/pkg/auth"
	"github.com/fwauto/fwauto/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View audit logs of configuration changes.

Every mutation, commit, approval decision and workflow run is logged with:
  - Timestamp
  - User who made the change
  - Device and scope affected
  - Operation and object
  - Success/failure status

Examples:
  fwauto audit list --last 24h
  fwauto audit list --type commit
  fwauto audit list --object-type address --failures`,
}

var (
	auditDevice     string
	auditUser       string
	auditType       string
	auditObjectType string
	auditLast       string
	auditLimit      int
	auditFailures   bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermAuditView, app.authContext()); err != nil {
			return err
		}

		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			Type:        audit.EventType(auditType),
			ObjectType:  auditObjectType,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		// Parse --last duration
		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if app.jsonOutput {
			return printJSON(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "TYPE", "OPERATION", "TARGET", "STATUS")
		for _, event := range events {
			status := green(event.Status)
			if !event.Success {
				status = red(event.Status)
			}
			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				string(event.Type),
				event.Operation,
				eventTarget(event),
				status,
			)
		}
		t.Flush()

		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditType, "type", "", "Filter by type: mutation, commit, approval, workflow")
	auditListCmd.Flags().StringVar(&auditObjectType, "object-type", "", "Filter by object type")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")

	auditCmd.AddCommand(auditListCmd)
}

// eventTarget names what an event acted on.
func eventTarget(e *audit.Event) string {
	switch {
	case e.ObjectName != "":
		return e.ObjectType + " " + e.ObjectName
	case e.Workflow != "":
		return "workflow " + e.Workflow
	case e.TicketID != "":
		return "ticket " + e.TicketID
	case e.JobID != "":
		return "job " + e.JobID
	}
	return e.ObjectType
}
