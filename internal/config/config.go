package config

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/matjam/wayper/internal/types"
	"github.com/pelletier/go-toml/v2"
)

const DefaultProfileName = "default"

const (
	DefaultDuration           = 60 * time.Second
	DefaultTransitionDuration = 2000
	DefaultTransitionFPS      = 30
	DefaultEdgeWidth          = 0.05
)

var (
	ErrNoProfile      = errors.New("profile is not defined")
	ErrNoOutputConfig = errors.New("no config for output")
)

// keys at the top level of the file that are never output or profile names
var reservedKeys = map[string]bool{
	"default_profile":     true,
	"transition":          true,
	"transitions_enabled": true,
	"daemon":              true,
}

type Config struct {
	DefaultProfile     string
	Transition         *TransitionConfig
	TransitionsEnabled *bool
	Path               string
	Reloaded           bool

	// profile name -> output name -> config
	profiles map[string]map[string]OutputConfig
}

type OutputConfig struct {
	Duration           uint64            `mapstructure:"duration"`
	Path               string            `mapstructure:"path"`
	RunCommand         string            `mapstructure:"run_command"`
	Transition         *TransitionConfig `mapstructure:"transition"`
	TransitionsEnabled *bool             `mapstructure:"transitions_enabled"`
}

type TransitionConfig struct {
	Type       []types.TransitionKind `mapstructure:"type"`
	DurationMS uint32                 `mapstructure:"duration_ms"`
	FPS        uint16                 `mapstructure:"fps"`
	Easing     types.EasingMode       `mapstructure:"easing"`
	Sweep      SweepConfig            `mapstructure:"sweep"`
}

type SweepConfig struct {
	Direction types.Direction `mapstructure:"direction"`
	EdgeWidth float32         `mapstructure:"edge_width"`
}

// Resolved is an output config with every fallback applied, ready for the daemon.
type Resolved struct {
	Duration           time.Duration
	Path               string
	RunCommand         string
	TransitionsEnabled bool
	Transition         TransitionSpec
}

type TransitionSpec struct {
	Kinds     []types.TransitionKind
	Duration  time.Duration
	FPS       int
	Direction types.Direction
	EdgeWidth float32
	Easing    types.EasingMode
}

// PickKind returns the configured kind, or a random one when several are configured.
func (s TransitionSpec) PickKind() types.TransitionKind {
	switch len(s.Kinds) {
	case 0:
		return types.TransitionCrossfade
	case 1:
		return s.Kinds[0]
	default:
		return s.Kinds[rand.IntN(len(s.Kinds))]
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path

	return cfg, nil
}

// Parse reads the profile and output tables of a config file. Top level tables with a
// path key are outputs of the default profile, any other table is a profile of outputs.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		DefaultProfile: DefaultProfileName,
		profiles:       make(map[string]map[string]OutputConfig),
	}

	if v, ok := raw["default_profile"]; ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("default_profile must be a non-empty string")
		}
		cfg.DefaultProfile = s
	}

	if v, ok := raw["transitions_enabled"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("transitions_enabled must be a boolean")
		}
		cfg.TransitionsEnabled = &b
	}

	if v, ok := raw["transition"]; ok {
		tc := &TransitionConfig{}
		if err := decode(v, tc); err != nil {
			return nil, fmt.Errorf("transition: %w", err)
		}
		cfg.Transition = tc
	}

	for key, value := range raw {
		if reservedKeys[key] {
			continue
		}

		table, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected a table", key)
		}

		if _, isOutput := table["path"]; isOutput {
			oc, err := decodeOutput(table)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			cfg.insert(cfg.DefaultProfile, key, oc)
			continue
		}

		for outputName, outputValue := range table {
			outputTable, ok := outputValue.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s: expected an output table", key, outputName)
			}
			oc, err := decodeOutput(outputTable)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", key, outputName, err)
			}
			cfg.insert(key, outputName, oc)
		}
	}

	return cfg, nil
}

// Reload reads the file the config was loaded from again and replaces the contents.
func (c *Config) Reload() error {
	if c.Path == "" {
		return fmt.Errorf("config was not loaded from a file")
	}

	fresh, err := Load(c.Path)
	if err != nil {
		return err
	}

	*c = *fresh
	c.Reloaded = true
	return nil
}

func (c *Config) insert(profile, output string, oc OutputConfig) {
	outputs, ok := c.profiles[profile]
	if !ok {
		outputs = make(map[string]OutputConfig)
		c.profiles[profile] = outputs
	}
	outputs[output] = oc
}

func (c *Config) HasProfile(name string) bool {
	_, ok := c.profiles[name]
	return ok
}

func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputConfig looks up the config of an output in a profile. An empty profile name
// selects the default profile.
func (c *Config) OutputConfig(profile, output string) (OutputConfig, error) {
	if profile == "" {
		profile = c.DefaultProfile
	}

	outputs, ok := c.profiles[profile]
	if !ok {
		return OutputConfig{}, fmt.Errorf("%w: %s", ErrNoProfile, profile)
	}

	oc, ok := outputs[output]
	if !ok {
		return OutputConfig{}, fmt.Errorf("%w %s in profile %s", ErrNoOutputConfig, output, profile)
	}

	return oc, nil
}

// Resolve applies output, global and built-in defaults, in that order.
func (c *Config) Resolve(oc OutputConfig) Resolved {
	r := Resolved{
		Duration:           DefaultDuration,
		Path:               CanonicalPath(oc.Path),
		RunCommand:         strings.TrimSpace(oc.RunCommand),
		TransitionsEnabled: true,
	}

	if oc.Duration > 0 {
		r.Duration = time.Duration(oc.Duration) * time.Second
	}

	switch {
	case oc.TransitionsEnabled != nil:
		r.TransitionsEnabled = *oc.TransitionsEnabled
	case c.TransitionsEnabled != nil:
		r.TransitionsEnabled = *c.TransitionsEnabled
	}

	tc := oc.Transition
	if tc == nil {
		tc = c.Transition
	}
	r.Transition = tc.spec()

	return r
}

func (tc *TransitionConfig) spec() TransitionSpec {
	s := TransitionSpec{
		Kinds:     []types.TransitionKind{types.TransitionCrossfade},
		Duration:  DefaultTransitionDuration * time.Millisecond,
		FPS:       DefaultTransitionFPS,
		Direction: types.DirectionLeftToRight,
		EdgeWidth: DefaultEdgeWidth,
		Easing:    types.EasingEaseInOut,
	}
	if tc == nil {
		return s
	}

	if len(tc.Type) > 0 {
		s.Kinds = append([]types.TransitionKind(nil), tc.Type...)
	}
	if tc.DurationMS > 0 {
		s.Duration = time.Duration(tc.DurationMS) * time.Millisecond
	}
	if tc.FPS > 0 {
		s.FPS = int(tc.FPS)
	}
	if tc.Sweep.Direction != "" {
		s.Direction = tc.Sweep.Direction
	}
	if tc.Sweep.EdgeWidth > 0 {
		s.EdgeWidth = tc.Sweep.EdgeWidth
	}
	if tc.Easing != "" {
		s.Easing = tc.Easing
	}

	return s
}

func decodeOutput(table map[string]any) (OutputConfig, error) {
	var oc OutputConfig
	if err := decode(table, &oc); err != nil {
		return OutputConfig{}, err
	}
	if oc.Path == "" {
		return OutputConfig{}, fmt.Errorf("path must not be empty")
	}
	return oc, nil
}

func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// CanonicalPath expands a leading ~ to $HOME.
func CanonicalPath(path string) string {
	if path == "" {
		return ""
	}

	if path == "~" {
		return os.Getenv("HOME")
	}

	if strings.HasPrefix(path, "~/") {
		homeDir := os.Getenv("HOME")
		return strings.Replace(path, "~", homeDir, 1)
	}

	return path
}
