package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// Server is the loopback status API.
type Server struct {
	Hub *WSHub

	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and prepares the routes; Serve starts answering.
func Listen(addr string, src StateSource, j JournalReader) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("api listen %s: %w", addr, err)
	}
	hub := NewWSHub()
	mux := http.NewServeMux()
	RegisterRoutes(mux, src, j, hub)
	return &Server{
		Hub: hub,
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(s.ln) }()
	log.Printf("status api listening on %s", s.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.Hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
