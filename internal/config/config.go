// internal/config/config.go
//
// This package handles configuration and the .kitchen directory structure.
// Every directory the simulation runs from gets a .kitchen/ folder.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/kitchenline/internal/menu"
)

const (
	// KitchenDir is the name of the directory we create in each project
	KitchenDir = ".kitchen"

	// CoordinatorLocal runs the motion planner in-process.
	CoordinatorLocal = "local"
	// CoordinatorRemote waits for a coordinator to connect over the bridge.
	CoordinatorRemote = "remote"

	defaultMonitorAddress = "127.0.0.1:8888"
)

const defaultProjectConfigYAML = `# kitchen simulation configuration
version: 1

kitchen:
  chefs: 3
  queue_capacity: 9
  plates: 3
  # one simulated duration unit
  time_unit: 1s
  # how long a chef waits for the coordinator before running a step anyway
  ack_timeout: 30s

# permits per station kind
stations:
  ingredient: 1
  cutting_board: 2
  stove: 1
  plating: 3
  return: 1
  sink: 1

motion:
  step_delay: 50ms
  width: 120
  height: 40

orders:
  interval: 3s
  # 0 keeps generating meals until shutdown
  meals: 0
  seed: 0

monitor:
  enabled: false
  address: 127.0.0.1:8888

bridge:
  enabled: false
  host: 127.0.0.1
  port: 8765
  # local runs the planner in-process, remote waits for cmd/coordinator
  coordinator: local

trace:
  enabled: false
`

// KitchenConfig sizes the production line.
type KitchenConfig struct {
	Chefs         int           `yaml:"chefs"`
	QueueCapacity int           `yaml:"queue_capacity"`
	Plates        int           `yaml:"plates"`
	TimeUnit      time.Duration `yaml:"time_unit"`
	AckTimeout    time.Duration `yaml:"ack_timeout"`
}

// MotionConfig tunes the grid and agent pacing.
type MotionConfig struct {
	StepDelay time.Duration `yaml:"step_delay"`
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
}

// OrdersConfig drives the built-in order generator.
type OrdersConfig struct {
	Interval time.Duration `yaml:"interval"`
	Meals    int           `yaml:"meals"`
	Seed     int64         `yaml:"seed"`
}

// MonitorConfig points at the plate usage monitor.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// BridgeConfig captures the optional external coordinator bridge.
type BridgeConfig struct {
	Enabled     *bool  `yaml:"enabled,omitempty"`
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	Coordinator string `yaml:"coordinator,omitempty"`
}

// TraceConfig toggles the compressed step trace.
type TraceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ProjectConfig models .kitchen/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	Kitchen  KitchenConfig  `yaml:"kitchen"`
	Stations map[string]int `yaml:"stations"`
	Motion   MotionConfig   `yaml:"motion"`
	Orders   OrdersConfig   `yaml:"orders"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Trace    TraceConfig    `yaml:"trace"`
}

// Config holds the runtime configuration for the kitchen.
type Config struct {
	// ProjectDir is the directory the simulation was started from
	ProjectDir string

	// KitchenProjectDir is ProjectDir/.kitchen
	KitchenProjectDir string

	Project ProjectConfig
}

// InitKitchenDir creates the .kitchen directory structure in the given project directory.
//
// Structure created:
// .kitchen/
// ├── config.yaml
// ├── logs/     <- kitchen.log and journal.log
// └── traces/   <- compressed step traces
func InitKitchenDir(projectDir string) error {
	kitchenDir := filepath.Join(projectDir, KitchenDir)
	dirs := []string{
		filepath.Join(kitchenDir, "logs"),
		filepath.Join(kitchenDir, "traces"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(kitchenDir, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:        projectDir,
		KitchenProjectDir: filepath.Join(projectDir, KitchenDir),
		Project:           defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config that is never read from disk. Tests and headless
// tools use it when no project directory is involved.
func Default() *Config {
	return &Config{Project: defaultProjectConfig()}
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.KitchenProjectDir, "logs")
}

// TracesDir returns the path to the traces directory
func (c *Config) TracesDir() string {
	return filepath.Join(c.KitchenProjectDir, "traces")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.KitchenProjectDir, "config.yaml")
}

// StationCapacities returns the configured permits keyed by station kind.
func (c *Config) StationCapacities() map[menu.StationKind]int {
	out := make(map[menu.StationKind]int, len(c.Project.Stations))
	for kind, capacity := range c.Project.Stations {
		out[menu.StationKind(kind)] = capacity
	}
	return out
}

// MonitorAddress returns the monitor endpoint, honouring KITCHEN_MONITOR_ADDR.
func (c *Config) MonitorAddress() string {
	if addr := strings.TrimSpace(os.Getenv("KITCHEN_MONITOR_ADDR")); addr != "" {
		return addr
	}
	return c.Project.Monitor.Address
}

// RemoteCoordinator reports whether the motion planner runs outside the process.
func (c *Config) RemoteCoordinator() bool {
	return c.Project.Bridge.Coordinator == CoordinatorRemote
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := parsed.normalize(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	_ = pc.normalize()
	pc.applyDefaults()
	return pc
}

func defaultStations() map[string]int {
	return map[string]int{
		string(menu.Ingredient):   1,
		string(menu.CuttingBoard): 2,
		string(menu.Stove):        1,
		string(menu.Plating):      3,
		string(menu.Return):       1,
		string(menu.Sink):         1,
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	k := &pc.Kitchen
	if k.Chefs == 0 {
		k.Chefs = 3
	}
	if k.QueueCapacity == 0 {
		k.QueueCapacity = 9
	}
	if k.Plates == 0 {
		k.Plates = 3
	}
	if k.TimeUnit == 0 {
		k.TimeUnit = time.Second
	}
	if k.AckTimeout == 0 {
		k.AckTimeout = 30 * time.Second
	}
	if pc.Stations == nil {
		pc.Stations = map[string]int{}
	}
	for kind, capacity := range defaultStations() {
		if _, ok := pc.Stations[kind]; !ok {
			pc.Stations[kind] = capacity
		}
	}
	if pc.Motion.StepDelay == 0 {
		pc.Motion.StepDelay = 50 * time.Millisecond
	}
	if pc.Motion.Width == 0 {
		pc.Motion.Width = 120
	}
	if pc.Motion.Height == 0 {
		pc.Motion.Height = 40
	}
	if pc.Orders.Interval == 0 {
		pc.Orders.Interval = 3 * time.Second
	}
	if pc.Monitor.Address == "" {
		pc.Monitor.Address = defaultMonitorAddress
	}
}

// normalize canonicalises keys and free-form strings. It runs before
// applyDefaults so that overrides are matched against the default keys.
func (pc *ProjectConfig) normalize() error {
	if pc.Stations != nil {
		stations := make(map[string]int, len(pc.Stations))
		for kind, capacity := range pc.Stations {
			key := strings.ToLower(strings.TrimSpace(kind))
			if _, dup := stations[key]; dup {
				return fmt.Errorf("stations.%s: set more than once", key)
			}
			stations[key] = capacity
		}
		pc.Stations = stations
	}
	pc.Monitor.Address = strings.TrimSpace(pc.Monitor.Address)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	pc.Bridge.Coordinator = strings.ToLower(strings.TrimSpace(pc.Bridge.Coordinator))
	if pc.Bridge.Coordinator == "" {
		pc.Bridge.Coordinator = CoordinatorLocal
	}
	return nil
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	k := pc.Kitchen
	if k.Chefs < 1 {
		return fmt.Errorf("kitchen.chefs must be >= 1")
	}
	if k.QueueCapacity < 3 {
		return fmt.Errorf("kitchen.queue_capacity must hold at least one meal of 3")
	}
	if k.Plates < 1 {
		return fmt.Errorf("kitchen.plates must be >= 1")
	}
	if k.TimeUnit < 0 || k.AckTimeout < 0 {
		return fmt.Errorf("kitchen durations must not be negative")
	}
	for kind, capacity := range pc.Stations {
		if !menu.StationKind(kind).Valid() {
			return fmt.Errorf("stations.%s: unknown station kind", kind)
		}
		if capacity < 1 {
			return fmt.Errorf("stations.%s: capacity must be >= 1", kind)
		}
	}
	if pc.Motion.Width < 1 || pc.Motion.Height < 1 {
		return fmt.Errorf("motion.width and motion.height must be positive")
	}
	if pc.Motion.StepDelay < 0 || pc.Orders.Interval < 0 {
		return fmt.Errorf("motion.step_delay and orders.interval must not be negative")
	}
	if pc.Orders.Meals < 0 {
		return fmt.Errorf("orders.meals must not be negative")
	}
	switch pc.Bridge.Coordinator {
	case CoordinatorLocal, CoordinatorRemote:
	default:
		return fmt.Errorf("bridge.coordinator must be 'local' or 'remote'")
	}
	if pc.Bridge.Coordinator == CoordinatorRemote && pc.Bridge.Enabled != nil && !*pc.Bridge.Enabled {
		return fmt.Errorf("bridge.coordinator 'remote' requires the bridge to be enabled")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
