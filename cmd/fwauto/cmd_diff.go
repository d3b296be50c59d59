package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fwauto/fwauto/pkg/auth"
	"github.com/fwauto/fwauto/pkg/cli"
	"github.com/fwauto/fwauto/pkg/fwauto/diff"
	"github.com/fwauto/fwauto/pkg/fwauto/object"
)

var (
	diffFile string
	diffSets []string
)

var diffCmd = &cobra.Command{
	Use:   "diff <type> <name>",
	Short: "Compare a desired object against the device",
	Long: `Read an object from the device and compare it against a desired payload.

A missing object shows every desired field as added. Device metadata
attributes are ignored; list order does not matter.

Examples:
  fwauto diff address web-1 --file web-1.yaml
  fwauto diff address web-1 --set ip-netmask=10.1.1.11/32`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermObjectView, app.authContext().WithObjectType(args[0])); err != nil {
			return err
		}
		payload, err := buildPayload(diffFile, diffSets)
		if err != nil {
			return err
		}
		if payload == nil {
			return fmt.Errorf("desired payload required: use --file or --set")
		}

		engine, err := app.objectEngine()
		if err != nil {
			return err
		}
		d, out := engine.Diff(cmd.Context(), args[0], args[1], payload)
		if !out.OK() && out.Reason != object.ReasonNotFound {
			return printOutcome(out.Message, false)
		}

		if app.jsonOutput {
			return printJSON(d)
		}
		printDiff(d)
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVarP(&diffFile, "file", "f", "", "YAML file with the desired payload")
	diffCmd.Flags().StringArrayVar(&diffSets, "set", nil, "Desired field key=value (repeatable)")
}

func printDiff(d diff.ConfigDiff) {
	fmt.Printf("Diff for %s %s\n\n", d.ObjectType, bold(d.ObjectName))
	if d.IsIdentical() {
		fmt.Println(green("No changes"))
		return
	}

	t := cli.NewTable("FIELD", "CHANGE", "CURRENT", "DESIRED")
	for _, c := range d.Changes {
		var kind string
		switch c.Kind {
		case diff.Added:
			kind = green(c.Kind.String())
		case diff.Removed:
			kind = red(c.Kind.String())
		default:
			kind = yellow(c.Kind.String())
		}
		current, desired := "-", "-"
		if c.Kind != diff.Added {
			current = diff.Render(c.OldValue)
		}
		if c.Kind != diff.Removed {
			desired = diff.Render(c.NewValue)
		}
		t.Row(c.Field, kind, current, desired)
	}
	t.Flush()

	fmt.Printf("\n%d added, %d removed, %d modified\n",
		d.Count(diff.Added), d.Count(diff.Removed), d.Count(diff.Modified))
}
