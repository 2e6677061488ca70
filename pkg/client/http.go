package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
)

const maxIdleConnsPerHost = 256

// newHTTPPool returns a transport shared by every client of one factory, so
// concurrent workers reuse keep-alive connections.
func newHTTPPool() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = maxIdleConnsPerHost
	tr.MaxIdleConnsPerHost = maxIdleConnsPerHost
	tr.IdleConnTimeout = 90 * time.Second
	// bodies are encoded explicitly via Content-Encoding
	tr.DisableCompression = true
	return tr
}

// HTTPClient posts each command to the server's /command endpoint.
type HTTPClient struct {
	opts Options
	url  string
	hc   *http.Client
}

// NewHTTPClient creates a client with its own connection pool.
func NewHTTPClient(opts Options) *HTTPClient {
	return newHTTPClient(opts, newHTTPPool())
}

func newHTTPClient(opts Options, tr *http.Transport) *HTTPClient {
	return &HTTPClient{
		opts: opts,
		url:  "http://" + opts.Addr + "/command",
		hc:   &http.Client{Transport: tr},
	}
}

// Connect verifies the server is reachable with a Ping.
func (c *HTTPClient) Connect(ctx context.Context) error {
	cmd, err := protocol.Encode(&protocol.Ping{})
	if err != nil {
		return err
	}
	resp, err := c.SendWithResponse(ctx, cmd)
	if err != nil {
		return err
	}
	_, err = protocol.ParseResponse(resp)
	return err
}

func (c *HTTPClient) SendWithResponse(ctx context.Context, cmd []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout())
	defer cancel()

	body, err := util.CompressMessage(cmd, c.opts.Compression)
	if err != nil {
		return nil, types.TransportFailure(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, types.TransportFailure(err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if enc := c.opts.Compression; enc != "" && enc != util.CompressionNone {
		req.Header.Set("Content-Encoding", enc)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	limit := c.opts.maxResponseSize()
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.TransportFailure(fmt.Errorf("http status %d: %s", resp.StatusCode, bytes.TrimSpace(data)))
	}
	if len(data) > limit {
		return nil, types.TransportFailure(fmt.Errorf("response exceeds limit of %d bytes", limit))
	}

	out, err := util.DecompressMessage(data, resp.Header.Get("Content-Encoding"), limit)
	if err != nil {
		return nil, types.TransportFailure(err)
	}
	return out, nil
}

// Disconnect releases idle pooled connections.
func (c *HTTPClient) Disconnect() error {
	c.hc.CloseIdleConnections()
	return nil
}
