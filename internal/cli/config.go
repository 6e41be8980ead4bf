package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gauntlet/internal/config"
)

// ConfigOptions holds the flags that override the configuration file.
type ConfigOptions struct {
	ConfigFile string
	Compiler   string
	Release    bool
	Debug      bool
	Danger     bool
	Threads    bool
	Include    []string
	Exclude    []string
}

func (o *ConfigOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.ConfigFile, "config", "", "configuration file (default: "+config.FileName+" in the search path)")
	f.StringVar(&o.Compiler, "compiler", "", "compiler executable")
	f.BoolVar(&o.Release, "release", false, "build in release mode")
	f.BoolVar(&o.Debug, "debug", false, "build in debug mode")
	f.BoolVar(&o.Danger, "danger", false, "build in danger mode")
	f.BoolVar(&o.Threads, "threads", false, "enable threads unless a test chooses")
	f.StringSliceVar(&o.Include, "include", nil, "only run tests matching these patterns")
	f.StringSliceVar(&o.Exclude, "exclude", nil, "skip tests matching these patterns")
}

// searchRoot picks the directory test names are relative to: a single
// directory argument, or the working directory.
func searchRoot(args []string) string {
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			return args[0]
		}
	}
	return "."
}

// loadConfig builds the configuration from defaults, the configuration file
// and the flags that were set, in increasing precedence.
func (o *ConfigOptions) loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigFile != "" {
		cfg, err = config.Load(o.ConfigFile)
	} else {
		cfg, err = config.LoadDir(searchRoot(args))
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("compiler") {
		cfg.Compiler = o.Compiler
	}
	if flags.Changed("threads") {
		cfg.Threads = o.Threads
	}
	if flags.Changed("include") {
		cfg.Include = o.Include
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, o.Exclude...)
	}

	modes := 0
	for _, m := range []struct {
		set  bool
		mode config.BuildMode
	}{
		{o.Release, config.ModeRelease},
		{o.Debug, config.ModeDebug},
		{o.Danger, config.ModeDanger},
	} {
		if m.set {
			cfg.Mode = m.mode
			modes++
		}
	}
	if modes > 1 {
		return nil, fmt.Errorf("--release, --debug and --danger are mutually exclusive")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
