package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the agent configuration
type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Workload WorkloadConfig `mapstructure:"workload"`
	Desired  DesiredConfig  `mapstructure:"desired"`
	Health   HealthConfig   `mapstructure:"health"`
	Restart  RestartConfig  `mapstructure:"restart"`
	Events   EventsConfig   `mapstructure:"events"`
	API      APIConfig      `mapstructure:"api"`
	Log      LogConfig      `mapstructure:"log"`
}

// NodeConfig identifies the local node
type NodeConfig struct {
	// Name is "<app>/<ordinal>"
	Name    string `mapstructure:"name"`
	Leader  bool   `mapstructure:"leader"`
	DataDir string `mapstructure:"data_dir"`
}

// ClusterConfig contains peer coordination settings
type ClusterConfig struct {
	Addressing   string        `mapstructure:"addressing"`
	BindAddr     string        `mapstructure:"bind_addr"`
	AdvertiseIP  string        `mapstructure:"advertise_ip"`
	Peers        []string      `mapstructure:"peers"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	PeerTTL      time.Duration `mapstructure:"peer_ttl"`
	TLSDir       string        `mapstructure:"tls_dir"`
}

// StorageConfig selects the local replica backend
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// WorkloadConfig contains the managed workload settings
type WorkloadConfig struct {
	ScriptPath      string        `mapstructure:"script_path"`
	EnvironmentPath string        `mapstructure:"environment_path"`
	StartCommand    string        `mapstructure:"start_command"`
	RestartCommand  string        `mapstructure:"restart_command"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
}

// DesiredConfig locates the declared configuration document
type DesiredConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// HealthConfig tunes the local diagnostic battery
type HealthConfig struct {
	MeminfoPath      string        `mapstructure:"meminfo_path"`
	ProcSys          string        `mapstructure:"proc_sys"`
	MinAvailableMB   uint64        `mapstructure:"min_available_mb"`
	MaxSwappiness    int64         `mapstructure:"max_swappiness"`
	MinMaxMapCount   int64         `mapstructure:"min_max_map_count"`
	Liveness         string        `mapstructure:"liveness"`
	LivenessAttempts int           `mapstructure:"liveness_attempts"`
	LivenessWait     time.Duration `mapstructure:"liveness_wait"`
}

// RestartConfig tunes the restart lock
type RestartConfig struct {
	// GrantTimeout revokes unreleased grants; 0 disables
	GrantTimeout time.Duration `mapstructure:"grant_timeout"`
}

// EventsConfig contains event loop timers
type EventsConfig struct {
	UpdateStatusInterval time.Duration `mapstructure:"update_status_interval"`
	RetryInterval        time.Duration `mapstructure:"retry_interval"`
}

// APIConfig contains the operator API settings
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// LoadEnvFiles exports dotenv files (e.g. a systemd EnvironmentFile holding
// SHEPHERD_* settings) into the process environment ahead of Load. Variables
// already set win over the files; missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from an optional YAML file and SHEPHERD_*
// environment variables (e.g. SHEPHERD_NODE_NAME, SHEPHERD_CLUSTER_PEERS)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("shepherd")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/shepherd")
	}

	setDefaults(v)

	v.SetEnvPrefix("SHEPHERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// comma-separated lists from the environment arrive as one element
	if len(cfg.Cluster.Peers) == 1 && strings.Contains(cfg.Cluster.Peers[0], ",") {
		cfg.Cluster.Peers = splitList(cfg.Cluster.Peers[0])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.name", "shepherd/0")
	v.SetDefault("node.leader", false)
	v.SetDefault("node.data_dir", "/var/lib/shepherd")

	v.SetDefault("cluster.addressing", string(types.AddressingAddress))
	v.SetDefault("cluster.bind_addr", "0.0.0.0:7946")
	v.SetDefault("cluster.advertise_ip", "")
	v.SetDefault("cluster.peers", []string{})
	v.SetDefault("cluster.sync_interval", 5*time.Second)
	v.SetDefault("cluster.peer_ttl", time.Duration(0))
	v.SetDefault("cluster.tls_dir", "")

	v.SetDefault("storage.backend", storage.BackendBolt)

	v.SetDefault("workload.script_path", "/opt/user-install-script")
	v.SetDefault("workload.environment_path", "/etc/environment")
	v.SetDefault("workload.start_command", "")
	v.SetDefault("workload.restart_command", "")
	v.SetDefault("workload.command_timeout", 180*time.Second)

	v.SetDefault("desired.path", "/etc/shepherd/desired.yaml")
	v.SetDefault("desired.watch", true)

	v.SetDefault("health.meminfo_path", "/proc/meminfo")
	v.SetDefault("health.proc_sys", "/proc/sys")
	v.SetDefault("health.min_available_mb", 0)
	v.SetDefault("health.max_swappiness", 1)
	v.SetDefault("health.min_max_map_count", 0)
	v.SetDefault("health.liveness", "")
	v.SetDefault("health.liveness_attempts", 5)
	v.SetDefault("health.liveness_wait", time.Second)

	v.SetDefault("restart.grant_timeout", time.Duration(0))

	v.SetDefault("events.update_status_interval", 5*time.Minute)
	v.SetDefault("events.retry_interval", 10*time.Second)

	v.SetDefault("api.addr", "127.0.0.1:7947")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Validate checks the configuration and normalizes paths
func (c *Config) Validate() error {
	if _, _, err := types.ParseNodeName(c.Node.Name); err != nil {
		return fmt.Errorf("node.name: %w", err)
	}

	switch types.Addressing(c.Cluster.Addressing) {
	case types.AddressingAddress, types.AddressingName:
	default:
		return fmt.Errorf("cluster.addressing must be %q or %q", types.AddressingAddress, types.AddressingName)
	}

	switch c.Storage.Backend {
	case storage.BackendBolt, storage.BackendBadger, storage.BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of bolt, badger, memory")
	}

	if c.Workload.CommandTimeout <= 0 {
		return fmt.Errorf("workload.command_timeout must be positive")
	}
	if c.Cluster.SyncInterval <= 0 {
		return fmt.Errorf("cluster.sync_interval must be positive")
	}
	if c.Events.RetryInterval <= 0 || c.Events.UpdateStatusInterval <= 0 {
		return fmt.Errorf("events intervals must be positive")
	}
	if c.Health.LivenessAttempts < 1 {
		return fmt.Errorf("health.liveness_attempts must be at least 1")
	}
	if c.Restart.GrantTimeout < 0 {
		return fmt.Errorf("restart.grant_timeout must not be negative")
	}

	c.Node.DataDir = filepath.Clean(c.Node.DataDir)
	c.Workload.ScriptPath = filepath.Clean(c.Workload.ScriptPath)
	c.Workload.EnvironmentPath = filepath.Clean(c.Workload.EnvironmentPath)
	return nil
}

// App returns the application part of the node name
func (c *Config) App() string {
	app, _, _ := types.ParseNodeName(c.Node.Name)
	return app
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
