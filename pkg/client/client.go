package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/types"
)

const (
	TransportHTTP = "http"
	TransportQUIC = "quic"
)

const DefaultTimeout = 5 * time.Second

// Client sends raw commands to a server and returns the raw responses.
// Implementations are safe for concurrent use once connected.
type Client interface {
	Connect(ctx context.Context) error
	SendWithResponse(ctx context.Context, cmd []byte) ([]byte, error)
	Disconnect() error
}

// Options configures a transport client.
type Options struct {
	// Addr is host:port of the server.
	Addr string
	// Timeout bounds every call; zero means DefaultTimeout.
	Timeout time.Duration
	// Compression is the HTTP body encoding, see util.CompressMessage.
	Compression string
	// TLSConfig overrides the QUIC TLS configuration.
	TLSConfig *tls.Config
	// Insecure skips QUIC certificate verification, for self-signed servers.
	Insecure bool
	// MaxResponseSize bounds a response; zero means config.MaxResponseSize.
	MaxResponseSize int
}

func (o Options) maxResponseSize() int {
	if o.MaxResponseSize <= 0 {
		return config.MaxResponseSize
	}
	return o.MaxResponseSize
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Factory creates unconnected clients for one transport.
type Factory func() Client

// NewFactory returns a factory for the named transport.
func NewFactory(transport string, opts Options) (Factory, error) {
	switch transport {
	case TransportHTTP:
		pool := newHTTPPool()
		return func() Client { return newHTTPClient(opts, pool) }, nil
	case TransportQUIC:
		return func() Client { return NewQUICClient(opts) }, nil
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}

// classify maps a transport error to a Timeout or TransportFailure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return &types.Error{Kind: types.KindTimeout, Err: err}
	}
	return types.TransportFailure(err)
}
