package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/crimson-sun/waflog/internal/config"
)

type flags struct {
	fs *pflag.FlagSet

	configPath  string
	storePath   string
	format      string
	port        int
	interval    time.Duration
	noGenerator bool
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{fs: pflag.NewFlagSet("waflog", pflag.ContinueOnError)}
	f.fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file (env WAFLOG_CONFIG)")
	f.fs.StringVar(&f.storePath, "store", "", "log file path")
	f.fs.StringVar(&f.format, "format", "", "store format: json or ndjson")
	f.fs.IntVarP(&f.port, "port", "p", 0, "listen port")
	f.fs.DurationVar(&f.interval, "interval", 0, "generator interval")
	f.fs.BoolVar(&f.noGenerator, "no-generator", false, "disable the background generator")
	f.fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	f.fs.BoolVar(&f.showVersion, "version", false, "print version and exit")
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply overlays flags the user set explicitly. Unset flags never override
// file or environment values.
func (f *flags) apply(cfg *config.Config) {
	if f.fs.Changed("store") {
		cfg.Store.Path = f.storePath
	}
	if f.fs.Changed("format") {
		cfg.Store.Format = f.format
	}
	if f.fs.Changed("port") {
		cfg.Server.Port = f.port
	}
	if f.fs.Changed("interval") {
		cfg.Generator.Interval = f.interval
	}
	if f.noGenerator {
		cfg.Generator.Enabled = false
	}
	if f.fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
}
