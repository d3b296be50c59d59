package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fwauto/fwauto/pkg/audit"
	"github.com/fwauto/fwauto/pkg/auth"
	"github.com/fwauto/fwauto/pkg/cli"
	"github.com/fwauto/fwauto/pkg/fwauto/intent"
	"github.com/fwauto/fwauto/pkg/fwauto/workflow"
	"github.com/fwauto/fwauto/pkg/util"
)

var (
	workflowParams []string
	askDryRun      bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "List, show and run predefined workflows",
	Long: `Predefined workflows are read from YAML files in the catalog directory
(settings catalog_dir, default /etc/fwauto/workflows).

Examples:
  fwauto workflow list
  fwauto workflow show web_server_setup
  fwauto workflow run web_server_setup --param server_name=web-1 --param server_ip=10.1.1.10
  fwauto workflow watch`,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermWorkflowView, app.authContext()); err != nil {
			return err
		}
		store, err := app.catalog()
		if err != nil {
			return err
		}
		c := store.Catalog()

		if app.jsonOutput {
			var wfs []*workflow.Workflow
			for _, name := range c.Names() {
				wf, _ := c.Lookup(name)
				wfs = append(wfs, wf)
			}
			return printJSON(wfs)
		}

		if c.Len() == 0 {
			fmt.Println("No workflows defined")
			return nil
		}
		t := cli.NewTable("NAME", "STEPS", "REQUIRED", "DESCRIPTION")
		for _, name := range c.Names() {
			wf, _ := c.Lookup(name)
			t.Row(name, fmt.Sprint(len(wf.Steps)), strings.Join(wf.RequiredParams, ","), wf.Description)
		}
		t.Flush()
		return nil
	},
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a workflow's params and steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermWorkflowView, app.authContext().WithWorkflow(args[0])); err != nil {
			return err
		}
		store, err := app.catalog()
		if err != nil {
			return err
		}
		wf, ok := store.Lookup(args[0])
		if !ok {
			return fmt.Errorf("workflow %q: %w", args[0], util.ErrNotFound)
		}
		if app.jsonOutput {
			return printJSON(wf)
		}

		fmt.Printf("Workflow: %s\n", bold(wf.Name))
		if wf.Description != "" {
			fmt.Printf("  %s\n", wf.Description)
		}
		fmt.Println()
		fmt.Printf("Required params: %s\n", listOrNone(wf.RequiredParams))
		fmt.Printf("Optional params: %s\n", listOrNone(wf.OptionalParams))
		for _, k := range sortedKeys(wf.Defaults) {
			fmt.Printf("  default %s = %s\n", k, wf.Defaults[k])
		}
		fmt.Println()

		t := cli.NewTable("#", "STEP", "ACTION", "OBJECT")
		for i, s := range wf.Steps {
			obj := strings.TrimSpace(s.ObjectType + " " + s.ObjectName)
			if s.ContinueOnError {
				obj += " " + yellow("(continue on error)")
			}
			t.Row(fmt.Sprint(i+1), s.Name, string(s.Action), obj)
		}
		t.Flush()
		return nil
	},
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(workflowParams)
		if err != nil {
			return err
		}
		store, err := app.catalog()
		if err != nil {
			return err
		}
		return runWorkflow(cmd.Context(), store, args[0], params)
	},
}

var workflowWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Validate the catalog and revalidate on every change",
	Long: `Load the catalog, then watch its directory and reload on every change,
reporting each reload until interrupted. Useful while editing workflows.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.catalog()
		if err != nil {
			return err
		}
		dir := app.settings.GetCatalogDir()
		fmt.Printf("Loaded %d workflows from %s\n", store.Catalog().Len(), dir)

		ctx := cmd.Context()
		err = workflow.Watch(ctx, dir, func(c *workflow.Catalog, err error) {
			if err != nil {
				fmt.Println(red("invalid catalog: ") + err.Error())
				return
			}
			store.Replace(c)
			fmt.Printf("%s reloaded %d workflows: %s\n",
				green(time.Now().Format("15:04:05")), c.Len(), strings.Join(c.Names(), ", "))
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

func init() {
	workflowRunCmd.Flags().StringArrayVarP(&workflowParams, "param", "p", nil, "Workflow param key=value (repeatable)")
	workflowCmd.AddCommand(workflowListCmd, workflowShowCmd, workflowRunCmd, workflowWatchCmd)

	askCmd.Flags().BoolVar(&askDryRun, "dry-run", false, "Route only; do not run the matched workflow")
}

// runWorkflow runs a workflow and prints one line per step.
func runWorkflow(ctx context.Context, source workflow.Source, name string, params map[string]string) error {
	if err := app.check(auth.PermWorkflowRun, app.authContext().WithWorkflow(name)); err != nil {
		return err
	}
	engine, err := app.objectEngine()
	if err != nil {
		return err
	}
	commits, err := app.commitMachine(ctx)
	if err != nil {
		return err
	}

	runner := workflow.NewRunner(source, engine, commits, workflow.WithRunnerMetrics(app.metrics))
	start := time.Now()
	res, err := runner.Run(ctx, name, params)
	if err != nil {
		return err
	}

	event := app.newEvent(audit.EventTypeWorkflow, "run").
		WithWorkflow(name).
		WithJob("", res.TicketID).
		WithStatus(string(res.Status), res.Status != workflow.RunFailed).
		WithDuration(time.Since(start))
	var runErr error
	if res.Status == workflow.RunFailed {
		runErr = fmt.Errorf("%s", res.Message)
	}
	logEvent(event, runErr)

	if app.jsonOutput {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printWorkflowResult(res)
	}
	if res.Status == workflow.RunFailed {
		return errSilentFailure
	}
	return nil
}

func printWorkflowResult(res *workflow.Result) {
	width := 0
	for _, s := range res.Steps {
		if len(s.Name) > width {
			width = len(s.Name)
		}
	}
	width += 4

	for _, s := range res.Steps {
		label := cli.DotPad(fmt.Sprintf("%d. %s", s.Index, s.Name), width+3)
		switch {
		case s.Status == workflow.StepSkippedAfterFailure:
			fmt.Printf("  %s %s\n", label, cli.Dim("not run"))
		default:
			fmt.Printf("  %s %s\n", label, cli.Outcome(s.Message))
		}
	}
	fmt.Println()
	fmt.Println(cli.Outcome(res.Message))
	if res.TicketID != "" {
		fmt.Printf("Approve with: fwauto approve %s\n", res.TicketID)
	}
}

// ============================================================================
// Routing
// ============================================================================

var routeCmd = &cobra.Command{
	Use:   "route <text>",
	Short: "Show where a request would be routed",
	Long: `Classify free text and score it against the workflow catalog.

A request routes deterministically to a workflow when the score clears the
threshold and the runner-up is not too close; otherwise it is exploratory.
Words like "workflow" or "run" push toward a workflow; "explore", "why" or
"show me" force exploratory handling.

Examples:
  fwauto route "block 203.0.113.7"
  fwauto route "set up a web server named web-1 at 10.1.1.10"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermWorkflowView, app.authContext()); err != nil {
			return err
		}
		store, err := app.catalog()
		if err != nil {
			return err
		}
		d := newRouter(store).Route(cmd.Context(), strings.Join(args, " "))
		if app.jsonOutput {
			return printJSON(d)
		}
		printDecision(d)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Route a request and run the matched workflow",
	Long: `Route free text like 'fwauto route' and, when the route is deterministic
and every required param was extracted, run the matched workflow.

Examples:
  fwauto ask "block 203.0.113.7"
  fwauto ask --dry-run "remove address named web-1"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermWorkflowView, app.authContext()); err != nil {
			return err
		}
		store, err := app.catalog()
		if err != nil {
			return err
		}
		d := newRouter(store).Route(cmd.Context(), strings.Join(args, " "))
		if app.jsonOutput && (askDryRun || d.Route != intent.Deterministic) {
			return printJSON(d)
		}
		if !app.jsonOutput {
			printDecision(d)
		}

		switch {
		case d.Route != intent.Deterministic:
			fmt.Println("\n" + yellow("Not running a workflow: request needs exploratory handling."))
			return nil
		case len(d.Missing) > 0:
			return fmt.Errorf("workflow %s needs params: %s", d.Workflow, strings.Join(d.Missing, ", "))
		case askDryRun:
			return nil
		}

		if !app.jsonOutput {
			fmt.Println()
		}
		return runWorkflow(cmd.Context(), store, d.Workflow, d.Params)
	},
}

func newRouter(store *workflow.Store) *intent.Router {
	return intent.NewRouter(intent.NewKeywordClassifier(), store, intent.WithRouterMetrics(app.metrics))
}

func printDecision(d intent.Decision) {
	route := d.Route.String()
	if d.Route == intent.Deterministic {
		route = green(route)
	} else {
		route = yellow(route)
	}
	if d.Forced {
		route += " (routing keyword)"
	}

	fmt.Printf("Route:      %s\n", route)
	fmt.Printf("Confidence: %.2f\n", d.Confidence)
	if d.Workflow != "" {
		fmt.Printf("Workflow:   %s\n", bold(d.Workflow))
	}
	fmt.Printf("Reason:     %s\n", d.Reason)
	if len(d.Params) > 0 {
		fmt.Println("Params:")
		for _, k := range sortedKeys(d.Params) {
			fmt.Printf("  %s = %s\n", k, d.Params[k])
		}
	}
	if len(d.Missing) > 0 {
		fmt.Printf("Missing:    %s\n", red(strings.Join(d.Missing, ", ")))
	}
	if d.Match != nil && len(d.Match.Alternatives) > 0 {
		fmt.Println("Alternatives:")
		for _, alt := range d.Match.Alternatives {
			fmt.Printf("  %-24s %.2f\n", alt.Name, alt.Score)
		}
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
