package logger

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// TraceLevel mirrors the original log server's six-level debug trace
// scale plus Silent, from most to least verbose.
type TraceLevel int

const (
	TraceVerbose TraceLevel = iota
	TraceDebug
	TraceInfo
	TraceWarning
	TraceError
	TraceFatal
	TraceSilent
)

func (l TraceLevel) String() string {
	switch l {
	case TraceVerbose:
		return "verbose"
	case TraceDebug:
		return "debug"
	case TraceInfo:
		return "information"
	case TraceWarning:
		return "warning"
	case TraceError:
		return "error"
	case TraceFatal:
		return "fatal"
	default:
		return "silent"
	}
}

// Whitelist is an endpoint/host/bus-name filter: empty means every
// name passes, otherwise only listed names pass unless Exclusive
// flips that to "every name but these".
type Whitelist struct {
	Names     []string
	Exclusive bool
}

// Match reports whether name passes this whitelist.
func (w Whitelist) Match(name string) bool {
	if len(w.Names) == 0 {
		return true
	}
	found := false
	for _, n := range w.Names {
		if n == name {
			found = true
			break
		}
	}
	if w.Exclusive {
		return !found
	}
	return found
}

// Config holds the log server's tunables, mirroring the original
// fdb_log_config.cpp's CFdbLogParams fields.
type Config struct {
	DisableRequest      bool
	DisableReply        bool
	DisableBroadcast    bool
	DisableSubscribe    bool
	DisableGlobalLogger bool
	DisableGlobalTrace  bool

	RawDataClippingSize int
	DebugTraceLevel     TraceLevel

	CacheSizeKB         int
	MaxLogStorageSizeKB int
	MaxLogFileSizeKB    int
	LogPath             string

	LogHostWhitelist     Whitelist
	LogEndpointWhitelist Whitelist
	LogBusnameWhitelist  Whitelist

	TraceHostWhitelist Whitelist
	TraceTagWhitelist  Whitelist
}

// DefaultConfig returns the conventional defaults: everything
// enabled, no clipping, Info-level trace, 64kB cache.
func DefaultConfig() Config {
	return Config{
		RawDataClippingSize: -1,
		DebugTraceLevel:     TraceInfo,
		CacheSizeKB:         64,
		MaxLogStorageSizeKB: 1024,
		MaxLogFileSizeKB:    256,
	}
}

// ConfigStore guards a Config behind a mutex shared between the
// context thread (which answers REQ_GET/SET_CONFIG) and producers
// running on arbitrary goroutines.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg Config
}

// NewConfigStore wraps cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{cfg: cfg}
}

// Get returns a copy of the current configuration.
func (s *ConfigStore) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the configuration wholesale.
func (s *ConfigStore) Set(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// ShouldLog reports whether a message-trace record for the given
// message kind, host, endpoint, and bus name passes every filter.
func (s *ConfigStore) ShouldLog(kind string, host, endpoint, busName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	if cfg.DisableGlobalLogger {
		return false
	}
	switch kind {
	case "request":
		if cfg.DisableRequest {
			return false
		}
	case "reply":
		if cfg.DisableReply {
			return false
		}
	case "broadcast":
		if cfg.DisableBroadcast {
			return false
		}
	case "subscribe":
		if cfg.DisableSubscribe {
			return false
		}
	}
	return cfg.LogHostWhitelist.Match(host) &&
		cfg.LogEndpointWhitelist.Match(endpoint) &&
		cfg.LogBusnameWhitelist.Match(busName)
}

// ShouldTrace reports whether a free-form trace line at level from
// host/tag passes the trace filters.
func (s *ConfigStore) ShouldTrace(level TraceLevel, host, tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	if cfg.DisableGlobalTrace || level < cfg.DebugTraceLevel {
		return false
	}
	return cfg.TraceHostWhitelist.Match(host) && cfg.TraceTagWhitelist.Match(tag)
}

func joinNames(names []string) string { return strings.Join(names, ",") }
func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func encodeWhitelist(w Whitelist) string {
	flag := "0"
	if w.Exclusive {
		flag = "1"
	}
	return flag + ":" + joinNames(w.Names)
}

func decodeWhitelist(s string) Whitelist {
	flag, rest, _ := strings.Cut(s, ":")
	return Whitelist{Names: splitNames(rest), Exclusive: flag == "1"}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// encodeConfig serializes cfg for the wire, one field per line so
// whitelist entries (which already use "," and ":") never collide
// with the field separator.
func encodeConfig(cfg Config) []byte {
	fields := []string{
		boolField(cfg.DisableRequest),
		boolField(cfg.DisableReply),
		boolField(cfg.DisableBroadcast),
		boolField(cfg.DisableSubscribe),
		boolField(cfg.DisableGlobalLogger),
		boolField(cfg.DisableGlobalTrace),
		strconv.Itoa(cfg.RawDataClippingSize),
		strconv.Itoa(int(cfg.DebugTraceLevel)),
		strconv.Itoa(cfg.CacheSizeKB),
		strconv.Itoa(cfg.MaxLogStorageSizeKB),
		strconv.Itoa(cfg.MaxLogFileSizeKB),
		cfg.LogPath,
		encodeWhitelist(cfg.LogHostWhitelist),
		encodeWhitelist(cfg.LogEndpointWhitelist),
		encodeWhitelist(cfg.LogBusnameWhitelist),
		encodeWhitelist(cfg.TraceHostWhitelist),
		encodeWhitelist(cfg.TraceTagWhitelist),
	}
	return []byte(strings.Join(fields, "\n"))
}

func decodeConfig(data []byte) (Config, error) {
	fields := strings.Split(string(data), "\n")
	if len(fields) != 17 {
		return Config{}, fmt.Errorf("logger: malformed config, want 17 fields got %d", len(fields))
	}
	clip, _ := strconv.Atoi(fields[6])
	level, _ := strconv.Atoi(fields[7])
	cacheKB, _ := strconv.Atoi(fields[8])
	maxStorageKB, _ := strconv.Atoi(fields[9])
	maxFileKB, _ := strconv.Atoi(fields[10])
	return Config{
		DisableRequest:      fields[0] == "1",
		DisableReply:        fields[1] == "1",
		DisableBroadcast:    fields[2] == "1",
		DisableSubscribe:    fields[3] == "1",
		DisableGlobalLogger: fields[4] == "1",
		DisableGlobalTrace:  fields[5] == "1",
		RawDataClippingSize: clip,
		DebugTraceLevel:     TraceLevel(level),
		CacheSizeKB:         cacheKB,
		MaxLogStorageSizeKB: maxStorageKB,
		MaxLogFileSizeKB:    maxFileKB,
		LogPath:             fields[11],
		LogHostWhitelist:     decodeWhitelist(fields[12]),
		LogEndpointWhitelist: decodeWhitelist(fields[13]),
		LogBusnameWhitelist:  decodeWhitelist(fields[14]),
		TraceHostWhitelist:   decodeWhitelist(fields[15]),
		TraceTagWhitelist:    decodeWhitelist(fields[16]),
	}, nil
}
