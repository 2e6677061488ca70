package config

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/downfa11-org/rill/util"
	"gopkg.in/yaml.v3"
)

const (
	// MaxCommandSize is the upper bound for a single encoded command on any transport.
	MaxCommandSize = 16 << 20
	// MaxResponseSize bounds a single encoded response. Poll results are
	// trimmed to fit and clients refuse larger frames.
	MaxResponseSize = 64 << 20

	DefaultHTTPPort             = 3000
	DefaultQUICPort             = 8080
	DefaultExporterPort         = 9100
	DefaultLogDir               = "rill-data"
	DefaultMaxPayloadSize       = 1 << 20
	DefaultMaxPartitionMessages = 100_000_000
	DefaultFsyncIntervalMS      = 50
	DefaultRequestTimeoutMS     = 5000
)

// Config represents the broker configuration including tunable performance options
type Config struct {
	// Server settings
	EnableHTTP     bool          `yaml:"enable_http" json:"http.enable"`
	HTTPPort       int           `yaml:"http_port" json:"http.port"`
	EnableQUIC     bool          `yaml:"enable_quic" json:"quic.enable"`
	QUICPort       int           `yaml:"quic_port" json:"quic.port"`
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`

	// Disk persistence
	EnablePersistence bool   `yaml:"enable_persistence" json:"persistence.enable"`
	LogDir            string `yaml:"log_dir" json:"log.dir"`
	FsyncIntervalMS   int    `yaml:"fsync_interval_ms" json:"fsync.interval.ms"`

	// Limits
	MaxPayloadSize       int    `yaml:"max_payload_size" json:"max.payload.size"`
	MaxPartitionMessages uint64 `yaml:"max_partition_messages" json:"max.partition.messages"`
	MaxCommandSize       int    `yaml:"max_command_size" json:"max.command.size"`
	RequestTimeoutMS     int    `yaml:"request_timeout_ms" json:"request.timeout.ms"`

	// QUIC security; a self-signed certificate is generated when paths are empty
	TLSCertPath string           `yaml:"tls_cert_path" json:"tls.cert_path"`
	TLSKeyPath  string           `yaml:"tls_key_path" json:"tls.key_path"`
	TLSCert     *tls.Certificate `yaml:"-" json:"-"`
}

// Default returns a normalized configuration with every option at its default.
func Default() *Config {
	cfg := &Config{
		EnableHTTP:        true,
		EnableQUIC:        true,
		EnableExporter:    true,
		EnablePersistence: true,
		LogLevel:          util.LogLevelInfo,
	}
	cfg.Normalize()
	return cfg
}

// LoadConfig builds the broker configuration from defaults, an optional
// YAML/JSON file and command line flags, in increasing order of precedence.
func LoadConfig(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("broker", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML/JSON config file")
	logLevel := fs.String("log-level", "info", "Log Level (debug, info, warn, error)")

	flags := &Config{}
	fs.BoolVar(&flags.EnableHTTP, "http", cfg.EnableHTTP, "Enable the HTTP transport")
	fs.IntVar(&flags.HTTPPort, "http-port", cfg.HTTPPort, "HTTP listen port")
	fs.BoolVar(&flags.EnableQUIC, "quic", cfg.EnableQUIC, "Enable the QUIC transport")
	fs.IntVar(&flags.QUICPort, "quic-port", cfg.QUICPort, "QUIC listen port")
	fs.BoolVar(&flags.EnableExporter, "exporter", cfg.EnableExporter, "Enable Prometheus exporter")
	fs.IntVar(&flags.ExporterPort, "exporter-port", cfg.ExporterPort, "Exporter port")
	fs.BoolVar(&flags.EnablePersistence, "persistence", cfg.EnablePersistence, "Persist partitions to disk")
	fs.StringVar(&flags.LogDir, "log-dir", cfg.LogDir, "Path for partition files and the catalog")
	fs.IntVar(&flags.FsyncIntervalMS, "fsync-interval-ms", cfg.FsyncIntervalMS, "Interval between partition fsyncs (0=every append)")
	fs.IntVar(&flags.MaxPayloadSize, "max-payload-size", cfg.MaxPayloadSize, "Maximum message payload size in bytes")
	fs.Uint64Var(&flags.MaxPartitionMessages, "max-partition-messages", cfg.MaxPartitionMessages, "Maximum messages held by one partition")
	fs.IntVar(&flags.MaxCommandSize, "max-command-size", cfg.MaxCommandSize, "Maximum encoded command size in bytes")
	fs.IntVar(&flags.RequestTimeoutMS, "request-timeout-ms", cfg.RequestTimeoutMS, "Per-command processing deadline in milliseconds")
	fs.StringVar(&flags.TLSCertPath, "tls-cert", "", "TLS certificate path for QUIC")
	fs.StringVar(&flags.TLSKeyPath, "tls-key", "", "TLS key path for QUIC")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}

	// explicit flags override the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.EnableHTTP = flags.EnableHTTP
		case "http-port":
			cfg.HTTPPort = flags.HTTPPort
		case "quic":
			cfg.EnableQUIC = flags.EnableQUIC
		case "quic-port":
			cfg.QUICPort = flags.QUICPort
		case "exporter":
			cfg.EnableExporter = flags.EnableExporter
		case "exporter-port":
			cfg.ExporterPort = flags.ExporterPort
		case "persistence":
			cfg.EnablePersistence = flags.EnablePersistence
		case "log-dir":
			cfg.LogDir = flags.LogDir
		case "fsync-interval-ms":
			cfg.FsyncIntervalMS = flags.FsyncIntervalMS
		case "max-payload-size":
			cfg.MaxPayloadSize = flags.MaxPayloadSize
		case "max-partition-messages":
			cfg.MaxPartitionMessages = flags.MaxPartitionMessages
		case "max-command-size":
			cfg.MaxCommandSize = flags.MaxCommandSize
		case "request-timeout-ms":
			cfg.RequestTimeoutMS = flags.RequestTimeoutMS
		case "tls-cert":
			cfg.TLSCertPath = flags.TLSCertPath
		case "tls-key":
			cfg.TLSKeyPath = flags.TLSKeyPath
		case "log-level":
			cfg.LogLevel = util.ParseLogLevel(*logLevel)
		}
	})

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)

	if cfg.TLSCertPath != "" || cfg.TLSKeyPath != "" {
		if cfg.TLSCertPath == "" || cfg.TLSKeyPath == "" {
			return nil, fmt.Errorf("TLS requires both certificate and key paths")
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		cfg.TLSCert = &cert
	}

	return cfg, nil
}

func (cfg *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) Normalize() {
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.QUICPort <= 0 {
		cfg.QUICPort = DefaultQUICPort
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = DefaultExporterPort
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = DefaultLogDir
	}
	if cfg.FsyncIntervalMS < 0 {
		cfg.FsyncIntervalMS = DefaultFsyncIntervalMS
	}

	if cfg.MaxCommandSize <= 0 || cfg.MaxCommandSize > MaxCommandSize {
		cfg.MaxCommandSize = MaxCommandSize
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if cfg.MaxPayloadSize > cfg.MaxCommandSize {
		cfg.MaxPayloadSize = cfg.MaxCommandSize
	}
	if cfg.MaxPartitionMessages == 0 {
		cfg.MaxPartitionMessages = DefaultMaxPartitionMessages
	}
	if cfg.RequestTimeoutMS <= 0 {
		cfg.RequestTimeoutMS = DefaultRequestTimeoutMS
	}
}

// FsyncInterval returns the partition fsync period; zero means sync on every append.
func (cfg *Config) FsyncInterval() time.Duration {
	return time.Duration(cfg.FsyncIntervalMS) * time.Millisecond
}

// RequestTimeout returns the per-command processing deadline.
func (cfg *Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
}

func (cfg *Config) HTTPAddr() string { return fmt.Sprintf(":%d", cfg.HTTPPort) }
func (cfg *Config) QUICAddr() string { return fmt.Sprintf(":%d", cfg.QUICPort) }
