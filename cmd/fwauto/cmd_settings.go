package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fwauto/fwauto/pkg/cli"
	"github.com/fwauto/fwauto/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.fwauto/settings.json.

Settings provide defaults for context flags:
  - host:         Used when -H is not specified
  - vsys:         Virtual system for standalone devices
  - device_group: Device group on a management appliance
  - catalog_dir:  Workflow catalog directory

The API key is never stored here; it comes from ` + settings.EnvAPIKey + `
(environment or .env file).

Examples:
  fwauto settings show
  fwauto settings set host fw1.example.net
  fwauto settings set device_kind manager
  fwauto settings set redis_addr localhost:6379
  fwauto settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		if app.jsonOutput {
			return printJSON(s)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTable("SETTING", "VALUE")
		for _, key := range settings.Keys() {
			value, _ := s.Get(key)
			if value == "" || (value == "0" && key == "redis_db") || (value == "false" && key == "insecure") {
				value = "(not set)"
			}
			t.Row(key, value)
		}
		t.Row("bastion", describeSet(s.Bastion != nil))
		t.Row("permissions", describeSet(s.Permissions != nil))
		t.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Long: `Set a persistent setting value.

Available settings:
  ` + strings.Join(settings.Keys(), "\n  ") + `

Examples:
  fwauto settings set host fw1.example.net
  fwauto settings set timeout 45s
  fwauto settings set audit_log off`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		if err := s.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Printf("%s set to: %s\n", args[0], args[1])
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <setting>",
	Short: "Get a setting value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		value, err := s.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		s.Clear()
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("Settings cleared")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settings.DefaultSettingsPath())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsGetCmd, settingsClearCmd, settingsPathCmd)
}

func describeSet(set bool) string {
	if set {
		return "(configured)"
	}
	return "(not set)"
}
