package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/downfa11-org/rill/pkg/controller"
	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
	"github.com/quic-go/quic-go"
)

const (
	quicIdleTimeout    = 5 * time.Minute
	quicMaxStreams     = 1000
	errCodeNoError     = quic.ApplicationErrorCode(0)
	errCodeInvalidCmd  = quic.ApplicationErrorCode(1)
	streamCodeTooLarge = quic.StreamErrorCode(1)
	streamCodeTrailing = quic.StreamErrorCode(2)
	streamReadDeadline = 30 * time.Second
)

// QUICServer accepts connections and serves one command per bidirectional
// stream. Both directions carry a u32 little-endian length prefix.
type QUICServer struct {
	ln       *quic.Listener
	ch       *controller.CommandHandler
	maxBytes int

	wg sync.WaitGroup
}

// ListenQUIC binds addr; Serve must be called to accept connections.
func ListenQUIC(addr string, tlsConf *tls.Config, ch *controller.CommandHandler, maxCommandSize int) (*QUICServer, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		MaxIdleTimeout:         quicIdleTimeout,
		MaxIncomingStreams:     quicMaxStreams,
		KeepAlivePeriod:        30 * time.Second,
		MaxStreamReceiveWindow: uint64(maxCommandSize) + 4,
	})
	if err != nil {
		return nil, err
	}
	return &QUICServer{ln: ln, ch: ch, maxBytes: maxCommandSize}, nil
}

func (s *QUICServer) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is closed.
func (s *QUICServer) Serve(ctx context.Context) error {
	util.Info("QUIC transport listening on %s", s.ln.Addr())
	for {
		conn, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting and waits for open connections to finish.
func (s *QUICServer) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *QUICServer) handleConn(ctx context.Context, conn quic.Connection) {
	cc := controller.NewClientContext("quic", conn.RemoteAddr().String())
	util.Debug("QUIC connection from %s", cc.RemoteAddr)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var streams sync.WaitGroup
	defer streams.Wait()

	for {
		str, err := conn.AcceptStream(connCtx)
		if err != nil {
			if connCtx.Err() != nil {
				_ = conn.CloseWithError(errCodeNoError, "server shutting down")
			}
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			if fatal := s.handleStream(connCtx, cc, str); fatal {
				util.Warn("Closing QUIC connection from %s after invalid command", cc.RemoteAddr)
				_ = conn.CloseWithError(errCodeInvalidCmd, "invalid command")
				cancel()
			}
		}()
	}
}

func (s *QUICServer) handleStream(ctx context.Context, cc *controller.ClientContext, str quic.Stream) bool {
	defer str.Close()
	_ = str.SetReadDeadline(time.Now().Add(streamReadDeadline))

	raw, err := util.ReadWithLength(str, uint32(s.maxBytes))
	if err != nil {
		var tooLarge *util.ErrFrameTooLarge
		if errors.As(err, &tooLarge) {
			str.CancelRead(streamCodeTooLarge)
			s.reply(str, protocol.Error(types.PayloadTooLarge(int(tooLarge.Size), s.maxBytes)))
			return false
		}
		util.Debug("Failed to read QUIC command from %s: %v", cc.RemoteAddr, err)
		return false
	}

	finishRead(str)

	resp, fatal := s.ch.Handle(ctx, cc, raw)
	s.reply(str, resp)
	return fatal
}

// finishRead consumes the peer's FIN so the receive side of str completes and
// its stream credit is returned. Unexpected trailing data cancels the read.
func finishRead(str quic.Stream) {
	if n, _ := io.Copy(io.Discard, io.LimitReader(str, 1)); n > 0 {
		str.CancelRead(streamCodeTrailing)
	}
}

func (s *QUICServer) reply(str quic.Stream, resp []byte) {
	if err := util.WriteWithLength(str, resp); err != nil {
		util.Debug("Failed to write QUIC response: %v", err)
	}
}
