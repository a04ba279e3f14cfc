package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/jbweber/vmbuilder/internal/config"
)

// addOptionFlags adds a flag of the matching type for every option.
func addOptionFlags(fs *pflag.FlagSet, opts []config.Option) error {
	for _, opt := range opts {
		switch opt.Kind {
		case config.KindBool:
			def := false
			if opt.Default != "" {
				b, err := strconv.ParseBool(opt.Default)
				if err != nil {
					return fmt.Errorf("option %s: invalid default %q: %w", opt.Name, opt.Default, err)
				}
				def = b
			}
			fs.BoolP(opt.Name, opt.Shorthand, def, opt.Help)
		case config.KindInt:
			def := 0
			if opt.Default != "" {
				n, err := strconv.Atoi(opt.Default)
				if err != nil {
					return fmt.Errorf("option %s: invalid default %q: %w", opt.Name, opt.Default, err)
				}
				def = n
			}
			fs.IntP(opt.Name, opt.Shorthand, def, opt.Help)
		default:
			fs.StringP(opt.Name, opt.Shorthand, opt.Default, opt.Help)
		}

		if opt.NoOptDefault != "" {
			fs.Lookup(opt.Name).NoOptDefVal = opt.NoOptDefault
		}
	}
	return nil
}

// applyChangedFlags records every option flag given on the command line as
// an explicit value. Flags left at their default are not explicit, so the
// plugin and configuration file defaults still apply to them.
func applyChangedFlags(fs *pflag.FlagSet, s *config.Settings) error {
	var errs []error
	fs.Visit(func(f *pflag.Flag) {
		if _, ok := s.Lookup(f.Name); !ok {
			return
		}
		if err := s.SetExplicit(f.Name, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}
