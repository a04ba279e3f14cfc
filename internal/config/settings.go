package config

import (
	"fmt"
	"maps"
	"strconv"
)

// Settings holds every registered Option and the value currently resolved
// for it.
//
// Values are resolved in layers, lowest first: registered defaults, the
// default layers passed to ApplyDefaults, values read from the configuration
// file, and finally values the caller gave explicitly. An explicit value is
// never replaced by a later ApplyDefaults.
type Settings struct {
	options map[string]Option
	order   []string

	defaults map[string]string
	file     map[string]string
	explicit map[string]string
	values   map[string]string
}

// NewSettings returns an empty Settings.
func NewSettings() *Settings {
	return &Settings{
		options:  make(map[string]Option),
		defaults: make(map[string]string),
		file:     make(map[string]string),
		explicit: make(map[string]string),
		values:   make(map[string]string),
	}
}

// Register adds options. Registering the same name twice is an error.
func (s *Settings) Register(opts ...Option) error {
	for _, opt := range opts {
		if opt.Name == "" {
			return fmt.Errorf("option name cannot be empty")
		}
		if _, exists := s.options[opt.Name]; exists {
			return fmt.Errorf("option %q already registered", opt.Name)
		}

		s.options[opt.Name] = opt
		s.order = append(s.order, opt.Name)
		s.values[opt.Name] = opt.Default
	}

	return nil
}

// Options returns the registered options in registration order.
func (s *Settings) Options() []Option {
	opts := make([]Option, 0, len(s.order))
	for _, name := range s.order {
		opts = append(opts, s.options[name])
	}
	return opts
}

// Lookup returns the option registered under name.
func (s *Settings) Lookup(name string) (Option, bool) {
	opt, ok := s.options[name]
	return opt, ok
}

// SetExplicit records a value given by the caller, e.g. on the command line.
func (s *Settings) SetExplicit(name, value string) error {
	opt, ok := s.options[name]
	if !ok {
		return fmt.Errorf("unknown option %q", name)
	}
	if err := checkKind(opt, value); err != nil {
		return err
	}

	s.explicit[name] = value
	s.values[name] = value
	return nil
}

// IsExplicit reports whether the caller supplied a value for name.
func (s *Settings) IsExplicit(name string) bool {
	_, ok := s.explicit[name]
	return ok
}

// SetFileValues records values read from a configuration file. Unknown keys
// are rejected. The values take effect on the next ApplyDefaults.
func (s *Settings) SetFileValues(values map[string]string) error {
	for name, value := range values {
		opt, ok := s.options[name]
		if !ok {
			return NewValidationError("option", name, "unknown option in configuration file")
		}
		if err := checkKind(opt, value); err != nil {
			return err
		}
	}

	s.file = maps.Clone(values)
	return nil
}

// ApplyDefaults re-resolves every option: registered defaults first, then
// each layer in order, then configuration file values. Explicit values are
// left alone. Calling it twice with the same layers yields the same values.
func (s *Settings) ApplyDefaults(layers ...map[string]string) {
	resolved := make(map[string]string, len(s.options))
	for name, opt := range s.options {
		resolved[name] = opt.Default
	}

	for _, layer := range layers {
		for name, value := range layer {
			if _, ok := s.options[name]; ok {
				resolved[name] = value
			}
		}
	}

	maps.Copy(resolved, s.file)
	s.defaults = maps.Clone(resolved)
	maps.Copy(resolved, s.explicit)

	s.values = resolved
}

// Default returns the value name would have without an explicit setting.
func (s *Settings) Default(name string) string {
	if v, ok := s.defaults[name]; ok {
		return v
	}
	return s.options[name].Default
}

// Get returns the resolved value of name, or "" if it is not registered.
func (s *Settings) Get(name string) string {
	return s.values[name]
}

// Bool returns the resolved value of name as a boolean.
func (s *Settings) Bool(name string) (bool, error) {
	v := s.values[name]
	if v == "" {
		return false, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, NewValidationError(name, v, "not a boolean")
	}
	return b, nil
}

// Int returns the resolved value of name as an integer.
func (s *Settings) Int(name string) (int, error) {
	v := s.values[name]
	if v == "" {
		return 0, nil
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, NewValidationError(name, v, "not an integer")
	}
	return i, nil
}

// Values returns a copy of all resolved values.
func (s *Settings) Values() map[string]string {
	return maps.Clone(s.values)
}

func checkKind(opt Option, value string) error {
	switch opt.Kind {
	case KindBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return NewValidationError(opt.Name, value, "not a boolean")
		}
	case KindInt:
		if _, err := strconv.Atoi(value); err != nil {
			return NewValidationError(opt.Name, value, "not an integer")
		}
	}
	return nil
}
