// Package config models the configuration of the webglue binary: the
// viewport, the process environment expected by the native engine stack,
// logging, and the owner loop.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
	"gopkg.in/yaml.v3"
)

// Environment variables exported by Config.ApplyEnvironment.
const (
	EnvXDGCacheHome    = `XDG_CACHE_HOME`
	EnvFontconfigPath  = `FONTCONFIG_PATH`
	EnvGIOExtraModules = `GIO_EXTRA_MODULES`
)

type (
	// Config is the root of the configuration file.
	Config struct {
		Viewport Viewport `yaml:"viewport"`
		Paths    Paths    `yaml:"paths"`
		Log      Log      `yaml:"log"`
		Loop     Loop     `yaml:"loop"`
	}

	// Viewport is the size of views created by the binary. Negative values
	// are accepted, and clamped to zero at view creation.
	Viewport struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	}

	// Paths locate the data directories of the native engine stack, see
	// Config.Environment.
	Paths struct {
		// XDGCache is exported as XDG_CACHE_HOME.
		XDGCache string `yaml:"xdg_cache,omitempty"`
		// Fontconfig is exported as FONTCONFIG_PATH.
		Fontconfig string `yaml:"fontconfig,omitempty"`
		// GIOExtraModules is exported as GIO_EXTRA_MODULES.
		GIOExtraModules string `yaml:"gio_extra_modules,omitempty"`
	}

	// Log configures logging.
	Log struct {
		// Level is a logiface level name, see ParseLevel.
		Level string `yaml:"level"`
	}

	// Loop configures the owner loop.
	Loop struct {
		// StartupTimeout bounds the wait for the owner to become ready.
		StartupTimeout time.Duration `yaml:"startup_timeout"`
		// CallTimeout bounds operations waiting on the owner.
		CallTimeout time.Duration `yaml:"call_timeout"`
		// LockOSThread locks the owner goroutine to its OS thread.
		LockOSThread bool `yaml:"lock_os_thread"`
		// Metrics enables owner loop metrics.
		Metrics bool `yaml:"metrics"`
	}
)

// Default returns the default configuration.
func Default() Config {
	return Config{
		Viewport: Viewport{Width: 1280, Height: 720},
		Log:      Log{Level: `info`},
		Loop: Loop{
			StartupTimeout: 5 * time.Second,
			CallTimeout:    10 * time.Second,
			LockOSThread:   true,
		},
	}
}

// Load decodes r over Default, rejecting unknown fields, then validates the
// result. Empty input yields the defaults.
func Load(r io.Reader) (Config, error) {
	c := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: failed to parse YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFile is Load for the file at path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Loop.StartupTimeout < 0 {
		return fmt.Errorf("config: negative loop.startup_timeout: %s", c.Loop.StartupTimeout)
	}
	if c.Loop.CallTimeout < 0 {
		return fmt.Errorf("config: negative loop.call_timeout: %s", c.Loop.CallTimeout)
	}
	return nil
}

// Encode writes c as YAML.
func (c Config) Encode(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return err
	}
	return encoder.Close()
}

// Environment returns the environment variables implied by Paths. Unset
// paths are omitted.
func (c Config) Environment() map[string]string {
	env := make(map[string]string, 3)
	for k, v := range map[string]string{
		EnvXDGCacheHome:    c.Paths.XDGCache,
		EnvFontconfigPath:  c.Paths.Fontconfig,
		EnvGIOExtraModules: c.Paths.GIOExtraModules,
	} {
		if v != `` {
			env[k] = v
		}
	}
	return env
}

// EnvironmentList returns Environment as sorted KEY=VALUE pairs.
func (c Config) EnvironmentList() []string {
	env := c.Environment()
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+`=`+v)
	}
	sort.Strings(list)
	return list
}

// ApplyEnvironment exports Environment via setenv, which defaults to
// os.Setenv. This must happen before the engine is initialized.
func (c Config) ApplyEnvironment(setenv func(key, value string) error) error {
	if setenv == nil {
		setenv = os.Setenv
	}
	for _, kv := range c.EnvironmentList() {
		k, v, _ := strings.Cut(kv, `=`)
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("config: failed to set %s: %w", k, err)
		}
	}
	return nil
}

var levels = map[string]logiface.Level{
	`disabled`:      logiface.LevelDisabled,
	`emerg`:         logiface.LevelEmergency,
	`emergency`:     logiface.LevelEmergency,
	`alert`:         logiface.LevelAlert,
	`crit`:          logiface.LevelCritical,
	`critical`:      logiface.LevelCritical,
	`err`:           logiface.LevelError,
	`error`:         logiface.LevelError,
	`warning`:       logiface.LevelWarning,
	`warn`:          logiface.LevelWarning,
	`notice`:        logiface.LevelNotice,
	`info`:          logiface.LevelInformational,
	`informational`: logiface.LevelInformational,
	`debug`:         logiface.LevelDebug,
	`trace`:         logiface.LevelTrace,
}

// ParseLevel parses a level name, accepting the short syslog keywords of
// logiface.Level.String, and their long forms. The empty string is info.
func ParseLevel(s string) (logiface.Level, error) {
	if s == `` {
		return logiface.LevelInformational, nil
	}
	if level, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("config: unknown log level: %q", s)
}
