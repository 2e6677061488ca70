package bench

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/downfa11-org/rill/util"
	"gopkg.in/yaml.v3"
)

// Config holds every harness option. The yaml names match the CLI flags.
type Config struct {
	HTTP     bool   `yaml:"http"`
	QUIC     bool   `yaml:"quic"`
	HTTPAddr string `yaml:"http_addr"`
	QUICAddr string `yaml:"quic_addr"`

	TestSendMessages        bool `yaml:"test_send_messages"`
	TestPollMessages        bool `yaml:"test_poll_messages"`
	TestSendAndPollMessages bool `yaml:"test_send_and_poll_messages"`

	Producers        int `yaml:"producers"`
	Consumers        int `yaml:"consumers"`
	Streams          int `yaml:"streams"`
	Topics           int `yaml:"topics"`
	Partitions       int `yaml:"partitions"`
	MessagesPerBatch int `yaml:"messages_per_batch"`
	MessageBatches   int `yaml:"message_batches"`
	MessageSize      int `yaml:"message_size"`

	PollBatchSize int    `yaml:"poll_batch_size"`
	StartStreamID uint32 `yaml:"start_stream_id"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	Compression   string `yaml:"compression"`
	Insecure      bool   `yaml:"insecure"`
}

// DefaultConfig returns the options used when no flag or file overrides them.
func DefaultConfig() *Config {
	return &Config{
		HTTP:                    true,
		QUIC:                    true,
		HTTPAddr:                "127.0.0.1:3000",
		QUICAddr:                "127.0.0.1:8080",
		TestSendMessages:        true,
		TestPollMessages:        true,
		TestSendAndPollMessages: true,
		Producers:               10,
		Consumers:               10,
		Streams:                 10,
		Topics:                  1,
		Partitions:              1,
		MessagesPerBatch:        1000,
		MessageBatches:          1000,
		MessageSize:             1000,
		PollBatchSize:           1000,
		StartStreamID:           1,
		TimeoutMS:               5000,
		Compression:             util.CompressionNone,
		Insecure:                true,
	}
}

// LoadFile overlays the options found in a YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bench config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse bench config: %w", err)
	}
	return nil
}

// Validate rejects option combinations the harness cannot run.
func (c *Config) Validate() error {
	var errs []error
	if !c.HTTP && !c.QUIC {
		errs = append(errs, errors.New("no transport enabled"))
	}
	if !c.TestSendMessages && !c.TestPollMessages && !c.TestSendAndPollMessages {
		errs = append(errs, errors.New("no benchmark kind enabled"))
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"producers", c.Producers},
		{"streams", c.Streams},
		{"topics", c.Topics},
		{"partitions", c.Partitions},
		{"messages_per_batch", c.MessagesPerBatch},
		{"message_batches", c.MessageBatches},
		{"poll_batch_size", c.PollBatchSize},
	} {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.value))
		}
	}
	if c.MessageSize < 0 {
		errs = append(errs, fmt.Errorf("message_size must not be negative, got %d", c.MessageSize))
	}
	if (c.TestPollMessages || c.TestSendAndPollMessages) && c.Consumers <= 0 {
		errs = append(errs, fmt.Errorf("consumers must be positive, got %d", c.Consumers))
	}
	if c.StartStreamID == 0 {
		errs = append(errs, errors.New("start_stream_id must be positive"))
	}
	if !util.ValidCompression(c.Compression) {
		errs = append(errs, fmt.Errorf("unsupported compression %q", c.Compression))
	}
	return errors.Join(errs...)
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// TotalMessages is the number of messages every producer pass sends.
func (c *Config) TotalMessages() uint64 {
	return uint64(c.MessagesPerBatch) * uint64(c.MessageBatches) * uint64(c.Producers)
}
