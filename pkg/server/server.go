package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/controller"
	"github.com/downfa11-org/rill/pkg/metrics"
	"github.com/downfa11-org/rill/pkg/stream"
	"github.com/downfa11-org/rill/util"
)

const shutdownTimeout = 5 * time.Second

// RunServer starts the enabled transports and the metrics exporter, and
// blocks until ctx is cancelled or a transport fails.
func RunServer(ctx context.Context, cfg *config.Config, sm *stream.Manager) error {
	if !cfg.EnableHTTP && !cfg.EnableQUIC {
		return errors.New("no transport enabled")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.EnableExporter {
		metrics.StartMetricsServer(ctx, cfg.ExporterPort)
	} else {
		util.Info("Exporter disabled")
	}

	ch := controller.NewCommandHandler(sm, cfg)
	errCh := make(chan error, 2)

	var httpSrv *http.Server
	if cfg.EnableHTTP {
		ln, err := net.Listen("tcp", cfg.HTTPAddr())
		if err != nil {
			return fmt.Errorf("listen http: %w", err)
		}
		httpSrv = &http.Server{
			Handler:           NewHTTPHandler(ch, cfg.MaxCommandSize),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		}
		go func() {
			util.Info("HTTP transport listening on %s", ln.Addr())
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	var quicSrv *QUICServer
	if cfg.EnableQUIC {
		tlsConf, err := ServerTLSConfig(cfg.TLSCert)
		if err != nil {
			shutdownHTTP(httpSrv)
			return fmt.Errorf("quic tls: %w", err)
		}
		quicSrv, err = ListenQUIC(cfg.QUICAddr(), tlsConf, ch, cfg.MaxCommandSize)
		if err != nil {
			shutdownHTTP(httpSrv)
			return fmt.Errorf("listen quic: %w", err)
		}
		go func() {
			if err := quicSrv.Serve(ctx); err != nil {
				errCh <- fmt.Errorf("quic: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		util.Info("Shutting down transports")
	case runErr = <-errCh:
		util.Error("Transport failed: %v", runErr)
	}

	cancel()
	shutdownHTTP(httpSrv)
	if quicSrv != nil {
		if err := quicSrv.Close(); err != nil {
			util.Warn("QUIC listener close: %v", err)
		}
	}
	return runErr
}

func shutdownHTTP(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		util.Warn("HTTP shutdown: %v", err)
	}
}
