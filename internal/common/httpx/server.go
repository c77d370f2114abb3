package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const shutdownGrace = 5 * time.Second

// Server runs an http.Server until the context is cancelled, then drains it.
type Server struct{ *http.Server }

func New(addr string, h http.Handler) *Server {
	return &Server{Server: &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}}
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()
	select {
	case <-ctx.Done():
		drain, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.Shutdown(drain)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
