package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel string `yaml:"log_level"`
	// TraceExporter is none, stdout (written to stderr) or otlp. Empty picks
	// otlp when an endpoint is set and none otherwise.
	TraceExporter    string  `yaml:"trace_exporter"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	OTLPInsecure     bool    `yaml:"otlp_insecure"`
	PrometheusBind   string  `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Segmenter   SegmenterConfig  `yaml:"segmenter"`
	Acoustic    AcousticConfig   `yaml:"acoustic"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// NodeConfig identifies this process on the bus. Nodes announce their voices
// and heartbeat so clients can find one serving a given speaker.
type NodeConfig struct {
	ID                string `yaml:"id"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// SegmenterConfig selects how text is split into accent phrases.
type SegmenterConfig struct {
	Mode      string `yaml:"mode"` // kagome, kana
	CacheSize int    `yaml:"cache_size"`
}

// AcousticConfig selects the engine that fills timing and pitch and renders audio.
type AcousticConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Speakers   []int  `yaml:"speakers"`
}

type SynthesisConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseSpeedScale    float64 `yaml:"base_speed_scale"`
	VolumeScale       float64 `yaml:"volume_scale"`
	PrePhonemeLength  float64 `yaml:"pre_phoneme_length"`
	PostPhonemeLength float64 `yaml:"post_phoneme_length"`
	MoraLimit         int     `yaml:"mora_limit"`
	Upspeak           bool    `yaml:"upspeak"`
	DefaultSpeaker    int     `yaml:"default_speaker"`
	TimeoutMS         int     `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-kana",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:         "info",
			TraceSampleRatio: 1,
			OTLPEndpoint:     "",
			OTLPInsecure:     true,
			PrometheusBind:   ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "loqa-kana-1",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-kana.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Segmenter: SegmenterConfig{
			Mode:      "kagome",
			CacheSize: 1024,
		},
		Acoustic: AcousticConfig{
			Mode:       "mock",
			SampleRate: 24000,
			Speakers:   []int{0, 1, 2, 3},
		},
		Synthesis: SynthesisConfig{
			Enabled:           true,
			BaseSpeedScale:    1.0,
			VolumeScale:       1.2,
			PrePhonemeLength:  0.15,
			PostPhonemeLength: 0.1,
			MoraLimit:         100,
			DefaultSpeaker:    1,
			TimeoutMS:         45000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "LOQA_TELEMETRY_TRACE_EXPORTER")
	overrideFloat(&cfg.Telemetry.TraceSampleRatio, "LOQA_TELEMETRY_TRACE_SAMPLE_RATIO")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "LOQA_NODE_ID")
	overrideInt(&cfg.Node.HeartbeatInterval, "LOQA_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "LOQA_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Segmenter.Mode, "LOQA_SEGMENTER_MODE")
	overrideInt(&cfg.Segmenter.CacheSize, "LOQA_SEGMENTER_CACHE_SIZE")
	overrideString(&cfg.Acoustic.Mode, "LOQA_ACOUSTIC_MODE")
	overrideString(&cfg.Acoustic.Command, "LOQA_ACOUSTIC_COMMAND")
	overrideInt(&cfg.Acoustic.SampleRate, "LOQA_ACOUSTIC_SAMPLE_RATE")
	overrideIntSlice(&cfg.Acoustic.Speakers, "LOQA_ACOUSTIC_SPEAKERS")
	overrideBool(&cfg.Synthesis.Enabled, "LOQA_SYNTHESIS_ENABLED")
	overrideFloat(&cfg.Synthesis.BaseSpeedScale, "LOQA_SYNTHESIS_BASE_SPEED_SCALE")
	overrideFloat(&cfg.Synthesis.VolumeScale, "LOQA_SYNTHESIS_VOLUME_SCALE")
	overrideFloat(&cfg.Synthesis.PrePhonemeLength, "LOQA_SYNTHESIS_PRE_PHONEME_LENGTH")
	overrideFloat(&cfg.Synthesis.PostPhonemeLength, "LOQA_SYNTHESIS_POST_PHONEME_LENGTH")
	overrideInt(&cfg.Synthesis.MoraLimit, "LOQA_SYNTHESIS_MORA_LIMIT")
	overrideBool(&cfg.Synthesis.Upspeak, "LOQA_SYNTHESIS_UPSPEAK")
	overrideInt(&cfg.Synthesis.DefaultSpeaker, "LOQA_SYNTHESIS_DEFAULT_SPEAKER")
	overrideInt(&cfg.Synthesis.TimeoutMS, "LOQA_SYNTHESIS_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideIntSlice(target *[]int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var parsed []int
		for _, p := range strings.Split(value, ",") {
			s := strings.TrimSpace(p)
			if s == "" {
				continue
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				return
			}
			parsed = append(parsed, n)
		}
		if len(parsed) > 0 {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Telemetry.TraceExporter {
	case "", "none", "stdout":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint is required when trace_exporter is otlp")
		}
	default:
		return fmt.Errorf("telemetry.trace_exporter %q must be none, stdout or otlp", cfg.Telemetry.TraceExporter)
	}
	if cfg.Telemetry.TraceSampleRatio < 0 || cfg.Telemetry.TraceSampleRatio > 1 {
		return errors.New("telemetry.trace_sample_ratio must be between 0 and 1")
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout < cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be >= heartbeat_interval_ms")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Segmenter.Mode {
	case "kagome", "kana":
	default:
		return errors.New("segmenter.mode must be one of kagome|kana")
	}
	if cfg.Segmenter.CacheSize < 0 {
		return errors.New("segmenter.cache_size must be >= 0")
	}
	switch cfg.Acoustic.Mode {
	case "mock", "exec":
	default:
		return errors.New("acoustic.mode must be one of mock|exec")
	}
	if cfg.Acoustic.Mode == "exec" && cfg.Acoustic.Command == "" {
		return errors.New("acoustic.command must be set when mode=exec")
	}
	if cfg.Acoustic.SampleRate <= 0 {
		return errors.New("acoustic.sample_rate must be positive")
	}
	if cfg.Synthesis.BaseSpeedScale <= 0 {
		return errors.New("synthesis.base_speed_scale must be positive")
	}
	if cfg.Synthesis.VolumeScale < 0 {
		return errors.New("synthesis.volume_scale must be >= 0")
	}
	if cfg.Synthesis.PrePhonemeLength < 0 || cfg.Synthesis.PostPhonemeLength < 0 {
		return errors.New("synthesis phoneme lengths must be >= 0")
	}
	if cfg.Synthesis.MoraLimit <= 0 {
		return errors.New("synthesis.mora_limit must be positive")
	}
	if cfg.Synthesis.Enabled && cfg.Synthesis.TimeoutMS <= 0 {
		return errors.New("synthesis.timeout_ms must be positive")
	}
	return nil
}
