// Package config loads fdbus binary configuration by coalescing four
// sources, lowest to highest precedence: built-in defaults, a YAML
// config file, a .env-sourced environment overlay, and explicit CLI
// flags, the same "layer, don't replace" shape used elsewhere in this
// codebase for narrower flag sets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable shared across the name server, host
// server, log server, and log client binaries. Each binary only reads
// the fields it needs.
type Config struct {
	NodeID   string   `yaml:"node_id"`
	BindAddr string   `yaml:"bind_addr"` // raft transport address, cluster mode
	DataDir  string   `yaml:"data_dir"`
	IPCPath  string   `yaml:"ipc_path"`
	TCPAddr  string   `yaml:"tcp_addr"`
	Peers    []string `yaml:"peers"` // raft peer list, "node-id@host:port"

	NameServerURLs []string `yaml:"name_server_urls"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	LogPath     string `yaml:"log_path"`
	CacheSizeKB int    `yaml:"cache_size_kb"`
}

// Default returns fdbus's built-in defaults, the lowest-precedence
// layer every other source is overlaid on.
func Default() Config {
	return Config{
		NodeID:      "node-1",
		DataDir:     "/var/lib/fdbus",
		IPCPath:     "/tmp/fdb-ipc0",
		LogLevel:    "info",
		LogPath:     "/var/log/fdbus",
		CacheSizeKB: 64,
	}
}

// RegisterFlags adds fdbus's common flags to flags, with Default()'s
// values as their own defaults so an unset flag never overrides a
// value already supplied by a file or the environment.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("node-id", d.NodeID, "node identifier")
	flags.String("bind-addr", d.BindAddr, "raft transport bind address (cluster mode)")
	flags.String("data-dir", d.DataDir, "directory for raft log/stable store")
	flags.String("ipc-path", d.IPCPath, "unix-domain socket path for the bus listener")
	flags.String("tcp-addr", d.TCPAddr, "tcp address for the bus listener")
	flags.StringSlice("peers", nil, "raft peer list, node-id@host:port")
	flags.StringSlice("name-server", nil, "name server candidate URLs")
	flags.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	flags.Bool("log-json", d.LogJSON, "output logs as JSON")
	flags.String("log-path", d.LogPath, "log server storage directory")
	flags.Int("cache-size-kb", d.CacheSizeKB, "log server cache budget in KB")
	flags.String("config", "", "path to a YAML config file")
	flags.String("env-file", "", "path to a .env file to load into the environment")
}

// Load builds a Config by applying, in increasing precedence: built-in
// defaults, the YAML file named by --config (if any), environment
// variables (after loading --env-file, if given), then any flag the
// caller actually set on flags.
func Load(flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	configPath, _ := flags.GetString("config")
	if configPath != "" {
		if err := mergeYAMLFile(&cfg, configPath); err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
	}

	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, fmt.Errorf("config: loading env file %s: %w", envFile, err)
		}
	}
	mergeEnv(&cfg)

	mergeFlags(&cfg, flags)
	return cfg, nil
}

func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func mergeEnv(cfg *Config) {
	if v, ok := os.LookupEnv("FDBUS_NODE_ID"); ok {
		cfg.NodeID = v
	}
	if v, ok := os.LookupEnv("FDBUS_BIND_ADDR"); ok {
		cfg.BindAddr = v
	}
	if v, ok := os.LookupEnv("FDBUS_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("FDBUS_IPC_PATH"); ok {
		cfg.IPCPath = v
	}
	if v, ok := os.LookupEnv("FDBUS_TCP_ADDR"); ok {
		cfg.TCPAddr = v
	}
	if v, ok := os.LookupEnv("FDBUS_PEERS"); ok {
		cfg.Peers = splitCSV(v)
	}
	if v, ok := os.LookupEnv("FDBUS_NAME_SERVER_URLS"); ok {
		cfg.NameServerURLs = splitCSV(v)
	}
	if v, ok := os.LookupEnv("FDBUS_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("FDBUS_LOG_JSON"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	if v, ok := os.LookupEnv("FDBUS_LOG_PATH"); ok {
		cfg.LogPath = v
	}
	if v, ok := os.LookupEnv("FDBUS_CACHE_SIZE_KB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheSizeKB = n
		}
	}
}

func mergeFlags(cfg *Config, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "node-id":
			cfg.NodeID, _ = flags.GetString("node-id")
		case "bind-addr":
			cfg.BindAddr, _ = flags.GetString("bind-addr")
		case "data-dir":
			cfg.DataDir, _ = flags.GetString("data-dir")
		case "ipc-path":
			cfg.IPCPath, _ = flags.GetString("ipc-path")
		case "tcp-addr":
			cfg.TCPAddr, _ = flags.GetString("tcp-addr")
		case "peers":
			cfg.Peers, _ = flags.GetStringSlice("peers")
		case "name-server":
			cfg.NameServerURLs, _ = flags.GetStringSlice("name-server")
		case "log-level":
			cfg.LogLevel, _ = flags.GetString("log-level")
		case "log-json":
			cfg.LogJSON, _ = flags.GetBool("log-json")
		case "log-path":
			cfg.LogPath, _ = flags.GetString("log-path")
		case "cache-size-kb":
			cfg.CacheSizeKB, _ = flags.GetInt("cache-size-kb")
		}
	})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
