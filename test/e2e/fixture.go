package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/downfa11-org/rill/pkg/client"
	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/controller"
	"github.com/downfa11-org/rill/pkg/server"
	"github.com/downfa11-org/rill/pkg/stream"
	"github.com/downfa11-org/rill/pkg/types"
)

// TestContext carries the state of one given/when/then scenario against an
// in-process broker.
type TestContext struct {
	t   *testing.T
	ctx context.Context

	cfg       *config.Config
	transport string

	streamID    uint32
	topicID     uint32
	partitions  uint32
	numMessages int
	batchSize   int

	broker  *broker
	session *client.Session
	conn    client.Client

	sent      map[uint32][]types.Message
	polled    map[uint32][]types.Message
	lastError error
}

type broker struct {
	sm     *stream.Manager
	http   *httptest.Server
	quic   *server.QUICServer
	cancel context.CancelFunc
}

func Given(t *testing.T) *TestContext {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.FsyncIntervalMS = 0
	cfg.EnableExporter = false

	return &TestContext{
		t:           t,
		ctx:         context.Background(),
		cfg:         cfg,
		transport:   client.TransportHTTP,
		streamID:    1,
		topicID:     1,
		partitions:  1,
		numMessages: 10,
		batchSize:   1,
		sent:        make(map[uint32][]types.Message),
		polled:      make(map[uint32][]types.Message),
	}
}

func (c *TestContext) WithTransport(transport string) *TestContext {
	c.transport = transport
	return c
}

func (c *TestContext) WithPartitions(n uint32) *TestContext {
	c.partitions = n
	return c
}

func (c *TestContext) WithNumMessages(n int) *TestContext {
	c.numMessages = n
	return c
}

func (c *TestContext) WithBatchSize(n int) *TestContext {
	c.batchSize = n
	return c
}

func (c *TestContext) WithMaxPayloadSize(n int) *TestContext {
	c.cfg.MaxPayloadSize = n
	return c
}

func (c *TestContext) WithoutPersistence() *TestContext {
	c.cfg.EnablePersistence = false
	return c
}

func (c *TestContext) When() *Actions {
	return &Actions{ctx: c}
}

func (c *TestContext) Then() *Consequences {
	return &Consequences{ctx: c}
}

// Cleanup disconnects the client and stops the broker.
func (c *TestContext) Cleanup() {
	c.disconnect()
	c.stopBroker()
}

func (c *TestContext) startBroker() {
	sm, err := stream.Open(c.cfg)
	if err != nil {
		c.t.Fatalf("open streams: %v", err)
	}
	ch := controller.NewCommandHandler(sm, c.cfg)
	b := &broker{sm: sm}

	switch c.transport {
	case client.TransportHTTP:
		b.http = httptest.NewServer(server.NewHTTPHandler(ch, c.cfg.MaxCommandSize))
	case client.TransportQUIC:
		tlsConf, err := server.ServerTLSConfig(nil)
		if err != nil {
			c.t.Fatalf("tls: %v", err)
		}
		b.quic, err = server.ListenQUIC("127.0.0.1:0", tlsConf, ch, c.cfg.MaxCommandSize)
		if err != nil {
			c.t.Fatalf("listen quic: %v", err)
		}
		var ctx context.Context
		ctx, b.cancel = context.WithCancel(c.ctx)
		go b.quic.Serve(ctx)
	default:
		c.t.Fatalf("unknown transport %q", c.transport)
	}
	c.broker = b
}

func (c *TestContext) stopBroker() {
	b := c.broker
	if b == nil {
		return
	}
	if b.http != nil {
		b.http.Close()
	}
	if b.quic != nil {
		b.cancel()
		b.quic.Close()
	}
	b.sm.Close()
	c.broker = nil
}

func (c *TestContext) brokerAddr() string {
	if c.broker.http != nil {
		return strings.TrimPrefix(c.broker.http.URL, "http://")
	}
	return c.broker.quic.Addr().String()
}

func (c *TestContext) getSession() *client.Session {
	if c.session != nil {
		return c.session
	}
	factory, err := client.NewFactory(c.transport, client.Options{Addr: c.brokerAddr(), Insecure: true})
	if err != nil {
		c.t.Fatalf("client factory: %v", err)
	}
	c.conn = factory()
	if err := c.conn.Connect(c.ctx); err != nil {
		c.t.Fatalf("connect: %v", err)
	}
	c.session = client.NewSession(c.conn)
	return c.session
}

func (c *TestContext) disconnect() {
	if c.conn != nil {
		_ = c.conn.Disconnect()
	}
	c.conn, c.session = nil, nil
}
