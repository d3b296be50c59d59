// fwauto - Firewall Configuration Automation
//
// A CLI for managing configuration objects on a firewall or its management
// appliance over the device XML API, with:
//   - Idempotent create/read/update/delete/list of configuration objects
//   - Commits with job polling and an optional approval gate
//   - Desired-versus-running configuration diffs
//   - Predefined multi-step workflows, picked by free-text routing
//   - Audit logging of all changes
//   - Permission-based access control
//
// Context flags select where objects live; commands act on that scope:
//
//	fwauto -H <host> [--vsys v | --device-group g | --template t] <command> [args]
//
// Examples:
//
//	fwauto object create address web-1 --set ip-netmask=10.1.1.10/32
//	fwauto object list address --filter 'web-*'
//	fwauto --device-group branch object read address-group blocklist
//	fwauto diff address web-1 --file web-1.yaml
//	fwauto commit --description "add web-1" --require-approval
//	fwauto approve 3b0c7a6e-...
//	fwauto workflow run block_ip --param ip=203.0.113.7
//	fwauto ask "block 203.0.113.7"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fwauto/fwauto/pkg/audit"
	"github.com/fwauto/fwauto/pkg/auth"
	"github.com/fwauto/fwauto/pkg/cli"
	"github.com/fwauto/fwauto/pkg/fwauto/approval"
	"github.com/fwauto/fwauto/pkg/fwauto/commit"
	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/fwauto/device/panos"
	"github.com/fwauto/fwauto/pkg/fwauto/metrics"
	"github.com/fwauto/fwauto/pkg/fwauto/object"
	"github.com/fwauto/fwauto/pkg/fwauto/workflow"
	"github.com/fwauto/fwauto/pkg/settings"
	"github.com/fwauto/fwauto/pkg/util"
	"github.com/fwauto/fwauto/pkg/version"
)

// App holds the flags and the lazily built collaborators shared by all
// commands.
type App struct {
	// Context flags
	host          string
	vsys          string
	deviceGroup   string
	template      string
	templateStack string

	// Option flags
	envFile     string
	catalogDir  string
	metricsFile string
	verbose     bool
	jsonOutput  bool

	settings    *settings.Settings
	permChecker *auth.Checker
	metrics     *metrics.Metrics

	provider  *panos.Provider
	approvals approval.Store
	closers   []func() error
}

var app = &App{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errSilentFailure) {
			fmt.Fprintln(os.Stderr, err)
		}
		app.close()
		os.Exit(1)
	}
	app.close()
}

var rootCmd = &cobra.Command{
	Use:               "fwauto",
	Short:             "Firewall Configuration Automation",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `fwauto manages configuration objects on a firewall or its management
appliance through the device XML API.

Context flags select the configuration scope; commands act on it.
Changes are staged in the candidate configuration until committed.

  fwauto -H <host> [--vsys v | --device-group g | --template t] <command> [args]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Log level first so settings warnings respect -v
		if app.verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		if isSettingsOrHelp(cmd) {
			return nil
		}

		if err := settings.LoadDotEnv(app.envFile); err != nil {
			return err
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}
		app.applyFlags()

		app.permChecker = auth.NewChecker(app.settings.Permissions)

		if app.metricsFile != "" {
			app.metrics = metrics.New()
		} else {
			app.metrics = metrics.Disabled()
		}

		if path := app.settings.GetAuditLog(); path != "" {
			auditLogger, err := audit.NewFileLogger(path, audit.RotationConfig{
				MaxSize:    10 * 1024 * 1024, // 10MB
				MaxBackups: 10,
			})
			if err != nil {
				util.Warnf("Could not initialize audit logging: %v", err)
			} else {
				audit.SetDefaultLogger(auditLogger)
				app.closers = append(app.closers, auditLogger.Close)
			}
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app.metricsFile == "" || app.metrics == nil {
			return nil
		}
		if err := app.metrics.WriteFile(app.metricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
		return nil
	},
}

func init() {
	// Context flags (scope selectors)
	rootCmd.PersistentFlags().StringVarP(&app.host, "host", "H", "", "Device host, host:port or URL")
	rootCmd.PersistentFlags().StringVar(&app.vsys, "vsys", "", "Virtual system (standalone devices)")
	rootCmd.PersistentFlags().StringVar(&app.deviceGroup, "device-group", "", "Device group (management appliance)")
	rootCmd.PersistentFlags().StringVar(&app.template, "template", "", "Template (management appliance)")
	rootCmd.PersistentFlags().StringVar(&app.templateStack, "template-stack", "", "Template stack (management appliance)")

	// Option flags
	rootCmd.PersistentFlags().StringVar(&app.envFile, "env-file", ".env", "Environment file holding "+settings.EnvAPIKey)
	rootCmd.PersistentFlags().StringVarP(&app.catalogDir, "catalog", "C", "", "Workflow catalog directory")
	rootCmd.PersistentFlags().StringVar(&app.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "object", Title: "Object Operations:"},
		&cobra.Group{ID: "commit", Title: "Commit & Approval:"},
		&cobra.Group{ID: "workflow", Title: "Workflows:"},
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{objectCmd, diffCmd} {
		cmd.GroupID = "object"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{commitCmd, approveCmd, rejectCmd} {
		cmd.GroupID = "commit"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{workflowCmd, routeCmd, askCmd} {
		cmd.GroupID = "workflow"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{keygenCmd, contextCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

// isSettingsOrHelp reports whether cmd runs without settings or a device.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "help", "version", "completion":
			return true
		}
	}
	return false
}

// applyFlags layers context flags over the loaded settings.
func (a *App) applyFlags() {
	s := a.settings
	if a.host != "" {
		s.Host = a.host
	}
	if a.catalogDir != "" {
		s.CatalogDir = a.catalogDir
	}
	if a.vsys != "" {
		s.Vsys = a.vsys
	}
	if a.deviceGroup != "" || a.template != "" || a.templateStack != "" {
		s.DeviceKind = device.Manager.String()
		s.DeviceGroup = a.deviceGroup
		s.Template = a.template
		s.TemplateStack = a.templateStack
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}

// ============================================================================
// Collaborators
// ============================================================================

// api returns the shared device connection.
func (a *App) api() (*panos.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	cfg, err := a.settings.PanosConfig()
	if err != nil {
		return nil, err
	}
	cfg.Metrics = a.metrics
	a.provider = panos.NewProvider(cfg)
	a.closers = append(a.closers, a.provider.Close)
	return a.provider, nil
}

// deviceContext returns the configured scope.
func (a *App) deviceContext() (device.Context, error) {
	return a.settings.DeviceContext()
}

// objectEngine builds the CRUD engine for the configured scope.
func (a *App) objectEngine() (*object.Engine, error) {
	api, err := a.api()
	if err != nil {
		return nil, err
	}
	devCtx, err := a.deviceContext()
	if err != nil {
		return nil, err
	}
	return object.NewEngine(api, devCtx, object.WithMetrics(a.metrics)), nil
}

// commitMachine builds the commit state machine. Tickets live in Redis
// when redis_addr is set; otherwise they last only as long as the process.
func (a *App) commitMachine(ctx context.Context) (*commit.Machine, error) {
	api, err := a.api()
	if err != nil {
		return nil, err
	}
	store, err := a.approvalStore(ctx)
	if err != nil {
		return nil, err
	}
	return commit.NewMachine(api,
		commit.WithApprovalStore(store),
		commit.WithMetrics(a.metrics),
	), nil
}

func (a *App) approvalStore(ctx context.Context) (approval.Store, error) {
	if a.approvals != nil {
		return a.approvals, nil
	}
	if a.settings.RedisAddr == "" {
		util.Debug("No redis_addr configured; approval tickets are kept in memory")
		a.approvals = approval.NewMemoryStore()
		return a.approvals, nil
	}
	rs, err := approval.DialRedis(ctx, a.settings.RedisAddr, a.settings.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rs.Close)
	a.approvals = rs
	return rs, nil
}

// catalog loads the workflow catalog into a store.
func (a *App) catalog() (*workflow.Store, error) {
	c, err := workflow.Load(a.settings.GetCatalogDir())
	if err != nil {
		return nil, fmt.Errorf("loading workflow catalog: %w", err)
	}
	return workflow.NewStore(c), nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			util.Debugf("close: %v", err)
		}
	}
	a.closers = nil
}

// ============================================================================
// Permission & Audit Helpers
// ============================================================================

func (a *App) check(perm auth.Permission, ctx *auth.Context) error {
	return a.permChecker.Check(perm, ctx)
}

func (a *App) authContext() *auth.Context {
	return auth.NewContext().WithDevice(a.settings.GetHost())
}

// newEvent starts an audit event for the current user and device.
func (a *App) newEvent(typ audit.EventType, operation string) *audit.Event {
	event := audit.NewEvent(a.permChecker.CurrentUser(), a.settings.GetHost(), typ, operation)
	if devCtx, err := a.deviceContext(); err == nil {
		event.WithScope(devCtx.Scope())
	}
	return event
}

// logEvent writes event, marking it failed when err is set.
func logEvent(event *audit.Event, err error) {
	if err != nil {
		event.WithError(err)
	}
	if err := audit.Log(event); err != nil {
		util.Warnf("Could not write audit event: %v", err)
	}
}

// ============================================================================
// Output Helpers
// ============================================================================

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome prints a result message and turns failures into the
// command's error status.
func printOutcome(msg string, ok bool) error {
	fmt.Println(cli.Outcome(msg))
	if !ok {
		return errSilentFailure
	}
	return nil
}

// errSilentFailure signals a failure already printed to the user.
var errSilentFailure = silentError{}

type silentError struct{}

func (silentError) Error() string { return "operation failed" }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
