package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fwauto/fwauto/pkg/auth"
	"github.com/fwauto/fwauto/pkg/cli"
	"github.com/fwauto/fwauto/pkg/fwauto/device/panos"
	"github.com/fwauto/fwauto/pkg/settings"
)

var (
	keygenUser  string
	keygenSave  bool
	contextSave bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Exchange a username and password for an API key",
	Long: `Prompt for the device password and request an API key for the user.

The key is printed, or with --save written to the environment file as
` + settings.EnvAPIKey + `. The password is taken from ` + settings.EnvPassword + ` when set.

Examples:
  fwauto -H fw1.example.net keygen --user admin
  fwauto keygen --save`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermKeygen, app.authContext()); err != nil {
			return err
		}
		cfg, err := app.settings.PanosConfig()
		if err != nil {
			return err
		}
		if keygenUser != "" {
			cfg.Username = keygenUser
		}
		if cfg.Username == "" {
			if cfg.Username, err = prompt("Username: "); err != nil {
				return err
			}
		}
		if cfg.Password == "" {
			if cfg.Password, err = promptPassword(fmt.Sprintf("Password for %s@%s: ", cfg.Username, cfg.Host)); err != nil {
				return err
			}
		}
		cfg.APIKey = ""
		cfg.Metrics = app.metrics

		client, err := panos.NewClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		key, err := client.Keygen(cmd.Context(), cfg.Username, cfg.Password)
		if err != nil {
			return err
		}

		if !keygenSave {
			fmt.Printf("%s=%s\n", settings.EnvAPIKey, key)
			return nil
		}
		if err := settings.SaveDotEnv(app.envFile, settings.EnvAPIKey, key); err != nil {
			return err
		}
		fmt.Printf("API key for %s saved to %s\n", cfg.Username, app.envFile)
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Detect the device type and show the configuration scope",
	Long: `Query the device for its system info and report whether it is a
standalone firewall or a management appliance, along with the scope
objects will be resolved against.

With --save the detected device kind is stored in the settings file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.check(auth.PermObjectView, app.authContext()); err != nil {
			return err
		}
		api, err := app.api()
		if err != nil {
			return err
		}
		base, err := app.deviceContext()
		if err != nil {
			return err
		}

		info, err := panos.ShowSystemInfo(cmd.Context(), api)
		if err != nil {
			return err
		}
		detected, err := panos.DetectContext(cmd.Context(), api, base)
		if err != nil {
			return err
		}

		if contextSave {
			s, err := settings.Load()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			s.DeviceKind = detected.Kind.String()
			if err := s.Save(); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
		}

		if app.jsonOutput {
			return printJSON(map[string]any{"system": info, "context": detected})
		}

		t := cli.NewTable("PROPERTY", "VALUE")
		t.Row("hostname", info.Hostname)
		t.Row("model", info.Model)
		t.Row("serial", info.Serial)
		t.Row("sw-version", info.SWVersion)
		t.Row("multi-vsys", fmt.Sprint(info.MultiVsys))
		t.Row("kind", bold(detected.Kind.String()))
		t.Row("scope", detected.Scope())
		t.Flush()
		if contextSave {
			fmt.Println("\n" + green("Device kind saved to settings."))
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenUser, "user", "u", "", "Device username (default: settings username)")
	keygenCmd.Flags().BoolVar(&keygenSave, "save", false, "Write the key to the environment file")
	contextCmd.Flags().BoolVar(&contextSave, "save", false, "Store the detected device kind in settings")
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}
