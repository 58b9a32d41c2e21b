package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"robopanel/internal/config/tomlkeys"
)

const (
	DefaultFile = "robopanel.toml"
	EnvPrefix   = "ROBOPANEL_"
	// LegacyDryRunEnv is honoured when ROBOPANEL_WORKER_DRY_RUN is unset.
	LegacyDryRunEnv = "LEROBOT_DRY_RUN"
)

//go:embed defaults.toml
var defaultsPayload []byte

// Keys lists every recognised setting.
var Keys = []string{
	"server.port",
	"server.token",
	"worker.python",
	"worker.root",
	"worker.marker-dir",
	"worker.dry-run",
	"store.path",
	"store.models",
	"devices.poll-interval",
	"stop.interrupt-wait",
	"stop.terminate-wait",
	"stop.kill-wait",
	"log.level",
}

type Settings struct {
	Server  ServerSettings
	Worker  WorkerSettings
	Store   StoreSettings
	Devices DeviceSettings
	Stop    StopSettings
	Log     LogSettings
}

type ServerSettings struct {
	Port  int
	Token string
}

type WorkerSettings struct {
	Python    string
	Root      string
	MarkerDir string
	DryRun    DryRunMode
}

type StoreSettings struct {
	Path   string
	Models string
}

type DeviceSettings struct {
	PollInterval time.Duration
}

type StopSettings struct {
	InterruptWait time.Duration
	TerminateWait time.Duration
	KillWait      time.Duration
}

type LogSettings struct {
	Level string
}

type LoadOptions struct {
	// Path is the TOML file. A missing file is an error only when Required.
	Path     string
	Required bool
	// Environ is the process environment in KEY=VALUE form.
	Environ []string
	// Overrides come from flags and win over everything else.
	Overrides map[string]any
}

// Load layers defaults, the TOML file, ROBOPANEL_* environment variables and
// overrides, in that order.
func Load(opts LoadOptions) (Settings, error) {
	defaults, err := tomlkeys.Decode(defaultsPayload)
	if err != nil {
		return Settings{}, fmt.Errorf("decode defaults: %w", err)
	}
	values := tomlkeys.New()
	values.Merge(defaults)

	if path := strings.TrimSpace(opts.Path); path != "" {
		payload, err := os.ReadFile(path)
		switch {
		case err == nil:
			file, err := tomlkeys.Decode(payload)
			if err != nil {
				return Settings{}, fmt.Errorf("parse %s: %w", path, err)
			}
			values.Merge(file)
		case errors.Is(err, os.ErrNotExist) && !opts.Required:
		default:
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	for key, value := range environmentOverrides(opts.Environ) {
		values.Set(key, value)
	}
	for key, value := range opts.Overrides {
		values.Set(key, value)
	}
	return build(values, defaults)
}

// EnvName maps a dotted key to its environment variable.
func EnvName(key string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + strings.ToUpper(replacer.Replace(tomlkeys.NormalizeKey(key)))
}

func environmentOverrides(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if ok {
			env[name] = value
		}
	}
	overrides := map[string]string{}
	for _, key := range Keys {
		if value, ok := env[EnvName(key)]; ok {
			overrides[key] = value
		}
	}
	if _, ok := overrides["worker.dry-run"]; !ok {
		if legacy, ok := env[LegacyDryRunEnv]; ok {
			switch strings.ToLower(strings.TrimSpace(legacy)) {
			case "0", "false", "no":
				overrides["worker.dry-run"] = string(DryRunOff)
			default:
				overrides["worker.dry-run"] = string(DryRunOn)
			}
		}
	}
	return overrides
}

func build(values, defaults tomlkeys.Store) (Settings, error) {
	var problems []error
	settings := Settings{}

	port, ok := values.Int("server.port")
	if !ok || port <= 0 || port > 65535 {
		problems = append(problems, fmt.Errorf("server.port: invalid port"))
	}
	settings.Server.Port = int(port)
	settings.Server.Token, _ = values.String("server.token")

	settings.Worker.Python = stringOr(values, defaults, "worker.python")
	settings.Worker.Root, _ = values.String("worker.root")
	settings.Worker.MarkerDir, _ = values.String("worker.marker-dir")
	rawMode, _ := values.String("worker.dry-run")
	mode, err := ParseDryRunMode(rawMode)
	if err != nil {
		problems = append(problems, fmt.Errorf("worker.dry-run: %w", err))
	}
	settings.Worker.DryRun = mode

	settings.Store.Path = stringOr(values, defaults, "store.path")
	settings.Store.Models, _ = values.String("store.models")

	settings.Devices.PollInterval = durationOr(values, defaults, "devices.poll-interval", &problems)
	settings.Stop.InterruptWait = durationOr(values, defaults, "stop.interrupt-wait", &problems)
	settings.Stop.TerminateWait = durationOr(values, defaults, "stop.terminate-wait", &problems)
	settings.Stop.KillWait = durationOr(values, defaults, "stop.kill-wait", &problems)

	settings.Log.Level = strings.ToLower(stringOr(values, defaults, "log.level"))

	if len(problems) > 0 {
		return settings, errors.Join(problems...)
	}
	return settings, nil
}

func stringOr(values, defaults tomlkeys.Store, key string) string {
	if value, ok := values.String(key); ok && value != "" {
		return value
	}
	value, _ := defaults.String(key)
	return value
}

func durationOr(values, defaults tomlkeys.Store, key string, problems *[]error) time.Duration {
	value, ok := values.Duration(key)
	if !ok || value <= 0 {
		*problems = append(*problems, fmt.Errorf("%s: expected a positive duration", key))
		value, _ = defaults.Duration(key)
	}
	return value
}
