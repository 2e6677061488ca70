package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/util"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.Normalize()

	if cfg.HTTPPort != config.DefaultHTTPPort {
		t.Errorf("HTTPPort default incorrect: %d", cfg.HTTPPort)
	}
	if cfg.QUICPort != config.DefaultQUICPort {
		t.Errorf("QUICPort default incorrect: %d", cfg.QUICPort)
	}
	if cfg.MaxPayloadSize != config.DefaultMaxPayloadSize {
		t.Errorf("MaxPayloadSize default incorrect: %d", cfg.MaxPayloadSize)
	}
	if cfg.MaxCommandSize != config.MaxCommandSize {
		t.Errorf("MaxCommandSize default incorrect: %d", cfg.MaxCommandSize)
	}
	if cfg.LogDir != config.DefaultLogDir {
		t.Errorf("LogDir default incorrect: %s", cfg.LogDir)
	}
}

func TestNormalizeClampsCommandSize(t *testing.T) {
	cfg := &config.Config{MaxCommandSize: 64 << 20, MaxPayloadSize: 32 << 20}
	cfg.Normalize()

	if cfg.MaxCommandSize != config.MaxCommandSize {
		t.Errorf("MaxCommandSize not clamped: %d", cfg.MaxCommandSize)
	}
	if cfg.MaxPayloadSize != config.MaxCommandSize {
		t.Errorf("MaxPayloadSize not clamped to command size: %d", cfg.MaxPayloadSize)
	}
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	data := []byte("http_port: 4000\nquic_port: 4001\nlog_level: debug\nmax_payload_size: 2048\nenable_exporter: false\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadConfig([]string{"-config", path, "-quic-port", "5001"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	defer util.SetLevel(util.LogLevelInfo)

	if cfg.HTTPPort != 4000 {
		t.Errorf("HTTPPort from file: got %d", cfg.HTTPPort)
	}
	if cfg.QUICPort != 5001 {
		t.Errorf("explicit flag should win: got %d", cfg.QUICPort)
	}
	if cfg.MaxPayloadSize != 2048 {
		t.Errorf("MaxPayloadSize from file: got %d", cfg.MaxPayloadSize)
	}
	if cfg.EnableExporter {
		t.Errorf("EnableExporter should be false")
	}
	if cfg.LogLevel != util.LogLevelDebug {
		t.Errorf("LogLevel from file: got %v", cfg.LogLevel)
	}
	if !cfg.EnableHTTP || !cfg.EnableQUIC {
		t.Errorf("transports should stay enabled by default")
	}
}

func TestLoadConfigRejectsHalfTLS(t *testing.T) {
	if _, err := config.LoadConfig([]string{"-tls-cert", "cert.pem"}); err == nil {
		t.Fatalf("expected error when only the certificate path is set")
	}
}
