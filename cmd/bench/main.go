package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/downfa11-org/rill/pkg/bench"
	"github.com/downfa11-org/rill/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRootCmd() *cobra.Command {
	cfg := bench.DefaultConfig()
	var configPath, logLevel string

	cmd := &cobra.Command{
		Use:           "bench",
		Short:         "Drive a rill broker with concurrent producers and consumers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			util.SetLevel(util.ParseLogLevel(logLevel))

			if configPath != "" {
				merged, err := mergeFile(cmd.Flags(), configPath)
				if err != nil {
					return err
				}
				*cfg = *merged
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			_, err := bench.NewBenchmarkRunner(cfg).Run(ctx)
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML file with benchmark options")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	bindFlags(cmd.Flags(), cfg)
	return cmd
}

func bindFlags(f *pflag.FlagSet, cfg *bench.Config) {
	f.BoolVar(&cfg.HTTP, "http", cfg.HTTP, "Run passes over HTTP")
	f.BoolVar(&cfg.QUIC, "quic", cfg.QUIC, "Run passes over QUIC")
	f.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address")
	f.StringVar(&cfg.QUICAddr, "quic-addr", cfg.QUICAddr, "QUIC server address")

	f.BoolVar(&cfg.TestSendMessages, "test-send-messages", cfg.TestSendMessages, "Run the SendMessages benchmark")
	f.BoolVar(&cfg.TestPollMessages, "test-poll-messages", cfg.TestPollMessages, "Run the PollMessages benchmark")
	f.BoolVar(&cfg.TestSendAndPollMessages, "test-send-and-poll-messages", cfg.TestSendAndPollMessages, "Run the SendAndPollMessages benchmark")

	f.IntVar(&cfg.Producers, "producers", cfg.Producers, "Concurrent producers")
	f.IntVar(&cfg.Consumers, "consumers", cfg.Consumers, "Concurrent consumers")
	f.IntVar(&cfg.Streams, "streams", cfg.Streams, "Streams to create")
	f.IntVar(&cfg.Topics, "topics", cfg.Topics, "Topics per stream")
	f.IntVar(&cfg.Partitions, "partitions", cfg.Partitions, "Partitions per topic")
	f.IntVar(&cfg.MessagesPerBatch, "messages-per-batch", cfg.MessagesPerBatch, "Messages in one append call")
	f.IntVar(&cfg.MessageBatches, "message-batches", cfg.MessageBatches, "Batches each producer sends")
	f.IntVar(&cfg.MessageSize, "message-size", cfg.MessageSize, "Payload size in bytes")

	f.IntVar(&cfg.PollBatchSize, "poll-batch-size", cfg.PollBatchSize, "Messages requested per poll")
	f.Uint32Var(&cfg.StartStreamID, "start-stream-id", cfg.StartStreamID, "First stream id")
	f.IntVar(&cfg.TimeoutMS, "timeout-ms", cfg.TimeoutMS, "Per-call deadline in milliseconds")
	f.StringVar(&cfg.Compression, "compression", cfg.Compression, "HTTP body encoding (none, gzip, snappy, lz4)")
	f.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "Skip QUIC certificate verification")
}

// mergeFile loads path and re-applies every flag set explicitly on the
// command line, so flags win over the file.
func mergeFile(flags *pflag.FlagSet, path string) (*bench.Config, error) {
	cfg := bench.DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	fileFlags := pflag.NewFlagSet("file", pflag.ContinueOnError)
	bindFlags(fileFlags, cfg)

	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil || fileFlags.Lookup(f.Name) == nil {
			return
		}
		err = fileFlags.Set(f.Name, f.Value.String())
	})
	return cfg, err
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		util.Error("Benchmark failed: %v", err)
		os.Exit(1)
	}
}
