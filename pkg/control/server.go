package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/sambigeara/relay/pkg/perm"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

var ErrSocketInUse = errors.New("control socket in use by a running coordinator")

// Handler routes the control procedures to svc.
func Handler(svc *Service) http.Handler {
	opts := []connect.HandlerOption{connect.WithCodec(jsonCodec{})}

	mux := http.NewServeMux()
	mux.Handle(StatusProcedure, connect.NewUnaryHandler(StatusProcedure, svc.Status, opts...))
	mux.Handle(RegisterProcedure, connect.NewUnaryHandler(RegisterProcedure, svc.Register, opts...))
	return h2c.NewHandler(mux, &http2.Server{})
}

// Serve listens on the unix socket at path until ctx is done. The socket is
// shared with group. A stale socket left by a dead process is replaced; a
// live one yields ErrSocketInUse.
func Serve(ctx context.Context, svc *Service, path string, group perm.Group) error {
	if _, err := os.Stat(path); err == nil {
		dialCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		conn, dialErr := (&net.Dialer{}).DialContext(dialCtx, "unix", path)
		if dialErr == nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %s", ErrSocketInUse, path)
		}
		_ = os.Remove(path)
	}

	l, err := (&net.ListenConfig{}).Listen(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer os.Remove(path)

	if err := group.Socket(path); err != nil {
		svc.log.Warnw("set socket permissions", "path", path, "err", err)
	}

	server := &http.Server{
		Handler:           Handler(svc),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	svc.log.Infow("control API listening", "socket", path)
	return g.Wait()
}
