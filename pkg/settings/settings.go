// Package settings manages persistent user settings for the fwauto CLI.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fwauto/fwauto/pkg/auth"
	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/fwauto/device/panos"
)

// Environment variables consulted alongside the settings file.
const (
	EnvAPIKey   = "FWAUTO_API_KEY"
	EnvHost     = "FWAUTO_HOST"
	EnvPassword = "FWAUTO_PASSWORD"
)

// DefaultCatalogDir is used when CatalogDir is unset.
const DefaultCatalogDir = "/etc/fwauto/workflows"

// Settings holds persistent user preferences
type Settings struct {
	// Host is the device hostname, host:port or base URL
	Host     string `json:"host,omitempty"`
	Username string `json:"username,omitempty"`

	// Insecure disables TLS certificate verification
	Insecure bool `json:"insecure,omitempty"`

	// Timeout is a duration string bounding one API request, e.g. "30s"
	Timeout string `json:"timeout,omitempty"`

	// Default configuration context
	DeviceKind    string `json:"device_kind,omitempty"`
	Vsys          string `json:"vsys,omitempty"`
	DeviceGroup   string `json:"device_group,omitempty"`
	Template      string `json:"template,omitempty"`
	TemplateStack string `json:"template_stack,omitempty"`

	// CatalogDir overrides the workflow catalog directory
	CatalogDir string `json:"catalog_dir,omitempty"`

	// AuditLog is the audit log path; "off" disables auditing
	AuditLog string `json:"audit_log,omitempty"`

	// RedisAddr stores approval tickets in Redis instead of in memory
	RedisAddr string `json:"redis_addr,omitempty"`
	RedisDB   int    `json:"redis_db,omitempty"`

	Bastion     *panos.BastionConfig `json:"bastion,omitempty"`
	Permissions *auth.Policy         `json:"permissions,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fwauto_settings.json"
	}
	return filepath.Join(home, ".fwauto", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path. The file may hold a bastion
// password, so it is written owner-only.
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// SaveDotEnv sets key=value in the .env file at path, keeping its other
// variables. The file is created owner-only when missing.
func SaveDotEnv(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		env = make(map[string]string)
	}
	env[key] = value
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

// APIKey returns the API key from the environment.
func APIKey() string {
	return os.Getenv(EnvAPIKey)
}

// GetHost returns Host, falling back to the environment.
func (s *Settings) GetHost() string {
	if s.Host != "" {
		return s.Host
	}
	return os.Getenv(EnvHost)
}

// GetTimeout returns the request timeout (with fallback)
func (s *Settings) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return panos.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	return d, nil
}

// GetCatalogDir returns the catalog directory (with fallback)
func (s *Settings) GetCatalogDir() string {
	if s.CatalogDir != "" {
		return s.CatalogDir
	}
	return DefaultCatalogDir
}

// GetAuditLog returns the audit log path, or "" when auditing is off.
func (s *Settings) GetAuditLog() string {
	switch s.AuditLog {
	case "off", "none":
		return ""
	case "":
		return filepath.Join(filepath.Dir(DefaultSettingsPath()), "audit.log")
	}
	return s.AuditLog
}

// DeviceContext builds the default configuration context.
func (s *Settings) DeviceContext() (device.Context, error) {
	kind, err := device.ParseKind(s.DeviceKind)
	if err != nil {
		return device.Context{}, err
	}
	return device.Context{
		Kind:          kind,
		Vsys:          s.Vsys,
		DeviceGroup:   s.DeviceGroup,
		Template:      s.Template,
		TemplateStack: s.TemplateStack,
	}, nil
}

// PanosConfig builds the connection config. The API key comes from the
// environment; password authentication is left to the caller.
func (s *Settings) PanosConfig() (panos.Config, error) {
	timeout, err := s.GetTimeout()
	if err != nil {
		return panos.Config{}, err
	}
	host := s.GetHost()
	if host == "" {
		return panos.Config{}, fmt.Errorf("no device host configured (settings host or %s)", EnvHost)
	}
	return panos.Config{
		Host:      host,
		APIKey:    APIKey(),
		Username:  s.Username,
		Password:  os.Getenv(EnvPassword),
		VerifyTLS: !s.Insecure,
		Timeout:   timeout,
		Bastion:   s.Bastion,
	}, nil
}

// scalar settings addressable by Set and Get
var fields = map[string]struct {
	get func(*Settings) string
	set func(*Settings, string) error
}{
	"host":     {func(s *Settings) string { return s.Host }, func(s *Settings, v string) error { s.Host = v; return nil }},
	"username": {func(s *Settings) string { return s.Username }, func(s *Settings, v string) error { s.Username = v; return nil }},
	"insecure": {
		func(s *Settings) string { return strconv.FormatBool(s.Insecure) },
		func(s *Settings, v string) error {
			b, err := strconv.ParseBool(v)
			s.Insecure = b
			return err
		},
	},
	"timeout": {
		func(s *Settings) string { return s.Timeout },
		func(s *Settings, v string) error {
			s.Timeout = v
			_, err := s.GetTimeout()
			return err
		},
	},
	"device_kind": {
		func(s *Settings) string { return s.DeviceKind },
		func(s *Settings, v string) error {
			s.DeviceKind = v
			_, err := device.ParseKind(v)
			return err
		},
	},
	"vsys":           {func(s *Settings) string { return s.Vsys }, func(s *Settings, v string) error { s.Vsys = v; return nil }},
	"device_group":   {func(s *Settings) string { return s.DeviceGroup }, func(s *Settings, v string) error { s.DeviceGroup = v; return nil }},
	"template":       {func(s *Settings) string { return s.Template }, func(s *Settings, v string) error { s.Template = v; return nil }},
	"template_stack": {func(s *Settings) string { return s.TemplateStack }, func(s *Settings, v string) error { s.TemplateStack = v; return nil }},
	"catalog_dir":    {func(s *Settings) string { return s.CatalogDir }, func(s *Settings, v string) error { s.CatalogDir = v; return nil }},
	"audit_log":      {func(s *Settings) string { return s.AuditLog }, func(s *Settings, v string) error { s.AuditLog = v; return nil }},
	"redis_addr":     {func(s *Settings) string { return s.RedisAddr }, func(s *Settings, v string) error { s.RedisAddr = v; return nil }},
	"redis_db": {
		func(s *Settings) string { return strconv.Itoa(s.RedisDB) },
		func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("redis_db must be a non-negative integer, got %q", v)
			}
			s.RedisDB = n
			return nil
		},
	},
}

// Keys returns the names accepted by Set and Get, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one scalar setting by name. Hyphens and underscores are
// interchangeable. An invalid value leaves the setting unchanged.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[strings.ReplaceAll(strings.ToLower(key), "-", "_")]
	if !ok {
		return fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	prev := *s
	if err := f.set(s, strings.TrimSpace(value)); err != nil {
		*s = prev
		return err
	}
	return nil
}

// Get returns one scalar setting by name.
func (s *Settings) Get(key string) (string, error) {
	f, ok := fields[strings.ReplaceAll(strings.ToLower(key), "-", "_")]
	if !ok {
		return "", fmt.Errorf("unknown setting %q", key)
	}
	return f.get(s), nil
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
