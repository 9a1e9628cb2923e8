package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
)

// listener is the lifecycle shared by the API and metrics servers.
type listener struct {
	logger     *slog.Logger
	name       string
	port       string
	server     *http.Server
	ready      chan struct{}
	inShutdown atomic.Bool

	mu   sync.Mutex
	addr string
}

func newListener(logger *slog.Logger, name, port string) *listener {
	return &listener{
		logger: logger.With("component", name),
		name:   name,
		port:   port,
		ready:  make(chan struct{}),
	}
}

// Name returns the name of the server component.
func (l *listener) Name() string {
	return l.name
}

// Ready returns a channel that is closed when the server accepts connections.
func (l *listener) Ready() <-chan struct{} {
	return l.ready
}

// Ping returns nil when the server is ready to serve.
func (l *listener) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ready:
		return nil
	default:
		return fmt.Errorf("%s is not ready", l.name)
	}
}

// Addr is the bound address once the server is ready.
func (l *listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.addr
}

func (l *listener) serve(ctx context.Context, handler http.Handler) error {
	if l.inShutdown.Load() {
		l.logger.InfoContext(ctx, "server is shutting down, skipping start")

		return nil
	}

	addr := ":" + l.port
	l.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	lc := &net.ListenConfig{
		KeepAliveConfig: net.KeepAliveConfig{
			Enable: true,
		},
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s tcp: %w", l.name, err)
	}

	l.mu.Lock()
	l.addr = ln.Addr().String()
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "server listening", "addr", ln.Addr().String())

	close(l.ready)

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.ErrorContext(ctx, "server error", "reason", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (l *listener) Shutdown(ctx context.Context) error {
	if !l.inShutdown.CompareAndSwap(false, true) {
		l.logger.ErrorContext(ctx, "server is already shutting down, skipping shutdown")

		return nil
	}

	defer func() {
		l.logger.InfoContext(ctx, "server shut downed")
	}()

	l.logger.InfoContext(ctx, "shutting down server")

	if l.server == nil {
		return nil
	}

	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.ErrorContext(ctx, "error shutting down server", "reason", err)

		return fmt.Errorf("%s shutdown: %w", l.name, err)
	}

	l.logger.InfoContext(ctx, "server closed properly")

	return nil
}
