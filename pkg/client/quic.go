package client

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
	"github.com/quic-go/quic-go"
)

var errNotConnected = errors.New("quic client is not connected")

// QUICClient multiplexes commands over one QUIC connection, one
// bidirectional stream per command.
type QUICClient struct {
	opts Options

	mu   sync.RWMutex
	conn quic.Connection
}

func NewQUICClient(opts Options) *QUICClient {
	return &QUICClient{opts: opts}
}

func (c *QUICClient) tlsConfig() *tls.Config {
	if c.opts.TLSConfig != nil {
		return c.opts.TLSConfig
	}
	return &tls.Config{
		InsecureSkipVerify: c.opts.Insecure,
		NextProtos:         []string{protocol.ALPN},
		MinVersion:         tls.VersionTLS13,
	}
}

func (c *QUICClient) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout())
	defer cancel()

	conn, err := quic.DialAddr(ctx, c.opts.Addr, c.tlsConfig(), &quic.Config{
		MaxIdleTimeout:  time.Minute,
		KeepAlivePeriod: 15 * time.Second,
	})
	if err != nil {
		return classify(err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		_ = old.CloseWithError(0, "reconnect")
	}
	return nil
}

func (c *QUICClient) SendWithResponse(ctx context.Context, cmd []byte) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, types.TransportFailure(errNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout())
	defer cancel()

	str, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = str.SetDeadline(deadline)
	}

	if err := util.WriteWithLength(str, cmd); err != nil {
		str.CancelRead(0)
		return nil, classify(err)
	}
	// closing the send side tells the server the command is complete
	if err := str.Close(); err != nil {
		return nil, classify(err)
	}

	resp, err := util.ReadWithLength(str, uint32(c.opts.maxResponseSize()))
	if err != nil {
		var tooLarge *util.ErrFrameTooLarge
		if errors.As(err, &tooLarge) {
			str.CancelRead(0)
		}
		return nil, classify(err)
	}
	// read the server's FIN so the stream is released
	if n, _ := io.Copy(io.Discard, io.LimitReader(str, 1)); n > 0 {
		str.CancelRead(0)
	}
	return resp, nil
}

func (c *QUICClient) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.CloseWithError(0, "client disconnect")
}
