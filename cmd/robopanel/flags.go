package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"robopanel/internal/config"
)

type cliFlags struct {
	ConfigPath  string
	ConfigSet   bool
	Port        int
	DryRun      string
	LogLevel    string
	ShowVersion bool

	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (cliFlags, error) {
	flags := cliFlags{}
	fs := pflag.NewFlagSet("robopanel", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVarP(&flags.ConfigPath, "config", "c", config.DefaultFile, "TOML config file")
	fs.IntVarP(&flags.Port, "port", "p", 0, "HTTP port (overrides server.port)")
	fs.StringVar(&flags.DryRun, "dry-run", "", "worker dry-run mode: auto, true or false")
	fs.Lookup("dry-run").NoOptDefVal = string(config.DryRunOn)
	fs.StringVar(&flags.LogLevel, "log-level", "", "minimum log level: debug, info, warning or error")
	fs.BoolVarP(&flags.ShowVersion, "version", "v", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage: robopanel [flags]")
		fmt.Fprintln(output)
		fmt.Fprint(output, fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if fs.NArg() > 0 {
		return flags, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	flags.set = map[string]bool{}
	fs.Visit(func(flag *pflag.Flag) {
		flags.set[flag.Name] = true
	})
	flags.ConfigSet = flags.set["config"]
	return flags, nil
}

// overrides maps explicitly set flags onto config keys.
func (f cliFlags) overrides() map[string]any {
	overrides := map[string]any{}
	if f.set["port"] {
		overrides["server.port"] = f.Port
	}
	if f.set["dry-run"] {
		overrides["worker.dry-run"] = f.DryRun
	}
	if f.set["log-level"] {
		overrides["log.level"] = f.LogLevel
	}
	return overrides
}
