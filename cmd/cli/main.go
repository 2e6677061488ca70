package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/downfa11-org/rill/pkg/client"
	"github.com/spf13/cobra"
)

func main() {
	opts := client.Options{Insecure: true}
	var transport string

	cmd := &cobra.Command{
		Use:          "cli",
		Short:        "Interactive shell for a rill broker",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			factory, err := client.NewFactory(transport, opts)
			if err != nil {
				return err
			}
			c := factory()
			if err := c.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("connect to %s: %w", opts.Addr, err)
			}
			defer c.Disconnect()
			return repl(cmd.Context(), client.NewSession(c))
		},
	}
	cmd.Flags().StringVar(&transport, "transport", client.TransportHTTP, "Transport (http or quic)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:3000", "Broker address")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "Per-command deadline")
	cmd.Flags().StringVar(&opts.Compression, "compression", "none", "HTTP body encoding")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

func repl(ctx context.Context, s *client.Session) error {
	fmt.Println("🔹 Connected. Type HELP for commands.")
	fmt.Println("")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "EXIT") {
			break
		}
		out, err := execute(ctx, s, line)
		if err != nil {
			fmt.Println("ERROR:", err)
			continue
		}
		fmt.Println(out)
	}
	return scanner.Err()
}
