// Package config holds the watch configuration assembled from flags,
// environment, and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const DefaultTimeoutSeconds = 10

// Known event tokens, in render order.
const (
	EventCreate = "create"
	EventModify = "modify"
	EventDelete = "delete"
	EventMove   = "move"
)

type Config struct {
	Roots              []string
	Recursive          bool
	Monitor            bool
	Quiet              bool
	Events             []string // empty means all kinds
	Format             string   // empty means the default format
	Exclude            string
	ExcludeInsensitive bool
	Execute            string
	Param              string
	TimeoutSeconds     int
	Poll               time.Duration
	Quiescence         time.Duration
	Listen             string
	Pty                bool
	Stats              bool
	LogLevel           string
}

func Default() Config {
	return Config{
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// fileConfig mirrors Config for the YAML overlay; pointers distinguish
// "absent" from "set to zero".
type fileConfig struct {
	Roots              []string `yaml:"roots"`
	Recursive          *bool    `yaml:"recursive"`
	Monitor            *bool    `yaml:"monitor"`
	Quiet              *bool    `yaml:"quiet"`
	Events             []string `yaml:"events"`
	Format             string   `yaml:"format"`
	Exclude            string   `yaml:"exclude"`
	ExcludeInsensitive *bool    `yaml:"exclude_insensitive"`
	Execute            string   `yaml:"execute"`
	Param              string   `yaml:"param"`
	TimeoutSeconds     *int     `yaml:"timeout_seconds"`
	Listen             string   `yaml:"listen"`
	Pty                *bool    `yaml:"pty"`
	Stats              *bool    `yaml:"stats"`
	LogLevel           string   `yaml:"log_level"`
}

// ApplyFile overlays settings from a YAML file. Flags parsed afterwards
// still win.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay fileConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if len(overlay.Roots) > 0 {
		c.Roots = overlay.Roots
	}
	if overlay.Recursive != nil {
		c.Recursive = *overlay.Recursive
	}
	if overlay.Monitor != nil {
		c.Monitor = *overlay.Monitor
	}
	if overlay.Quiet != nil {
		c.Quiet = *overlay.Quiet
	}
	if len(overlay.Events) > 0 {
		c.Events = overlay.Events
	}
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
	if overlay.Exclude != "" {
		c.Exclude = overlay.Exclude
	}
	if overlay.ExcludeInsensitive != nil {
		c.ExcludeInsensitive = *overlay.ExcludeInsensitive
	}
	if overlay.Execute != "" {
		c.Execute = overlay.Execute
	}
	if overlay.Param != "" {
		c.Param = overlay.Param
	}
	if overlay.TimeoutSeconds != nil {
		c.TimeoutSeconds = *overlay.TimeoutSeconds
	}
	if overlay.Listen != "" {
		c.Listen = overlay.Listen
	}
	if overlay.Pty != nil {
		c.Pty = *overlay.Pty
	}
	if overlay.Stats != nil {
		c.Stats = *overlay.Stats
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	return nil
}

func (c Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("at least one path is required")
	}
	for _, token := range c.Events {
		switch strings.ToLower(strings.TrimSpace(token)) {
		case EventCreate, EventModify, EventDelete, EventMove:
		default:
			return fmt.Errorf("unknown event %q (expected create, modify, delete, move)", token)
		}
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be at least 1 second")
	}
	if _, err := c.CompileExclude(); err != nil {
		return err
	}
	return nil
}

func (c Config) enabled() map[string]bool {
	if len(c.Events) == 0 {
		return map[string]bool{
			EventCreate: true,
			EventModify: true,
			EventDelete: true,
			EventMove:   true,
		}
	}
	set := make(map[string]bool, len(c.Events))
	for _, token := range c.Events {
		set[strings.ToLower(strings.TrimSpace(token))] = true
	}
	return set
}

// EventMask maps enabled kinds to the native op mask a session
// subscribes to.
func (c Config) EventMask() fsnotify.Op {
	enabled := c.enabled()
	var mask fsnotify.Op
	if enabled[EventCreate] {
		mask |= fsnotify.Create
	}
	if enabled[EventModify] {
		mask |= fsnotify.Write
	}
	if enabled[EventDelete] {
		mask |= fsnotify.Remove
	}
	if enabled[EventMove] {
		mask |= fsnotify.Rename
	}
	return mask
}

// KindsLabel renders the enabled kinds for the startup banner.
func (c Config) KindsLabel() string {
	enabled := c.enabled()
	labels := make([]string, 0, len(enabled))
	for token := range enabled {
		labels = append(labels, strings.ToUpper(token))
	}
	sort.Strings(labels)
	return strings.Join(labels, ",")
}

// CompileExclude builds the exclude pattern, case-insensitive when
// configured. Returns nil with no pattern set.
func (c Config) CompileExclude() (*regexp.Regexp, error) {
	if c.Exclude == "" {
		return nil, nil
	}
	pattern := c.Exclude
	if c.ExcludeInsensitive {
		pattern = "(?i)" + pattern
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return compiled, nil
}

// ExecArgs splits the parameter string for the external command.
func (c Config) ExecArgs() []string {
	if strings.TrimSpace(c.Param) == "" {
		return nil
	}
	return strings.Fields(c.Param)
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
