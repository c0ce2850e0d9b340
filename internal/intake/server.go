package intake

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "hostelrelay/pkg/logx"
)

// ServerConfig controls the intake listener.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type ServerConfig struct {
	Addr          string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg     ServerConfig
	handler http.Handler
	log     logx.Logger

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

func NewServer(cfg ServerConfig, h http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8088"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	return &Server{cfg: cfg, handler: h, log: log}
}

// Listen binds the configured address. It refuses a non-loopback bind
// without a token unless AllowInsecure is set.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if !s.cfg.AllowInsecure && s.cfg.Token == "" && !isLoopbackAddr(addr) {
		s.log.Error("intake refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
		return errors.New("intake refused to start: insecure bind")
	}
	if s.cfg.AllowInsecure && s.cfg.Token == "" && !isLoopbackAddr(addr) {
		s.log.Warn("intake running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return nil
}

// Addr returns the bound address ("" before Listen).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve blocks until ctx is cancelled or the server fails. Listen is
// called first if needed.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln, srv := s.ln, s.srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Keep this bounded; Shutdown(ctx) from the app does the graceful part.
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("intake started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))
	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("intake server exited unexpectedly")
	}
	return err
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	s.log.Info("intake stopped")
	return err
}

func isLoopbackAddr(addr string) bool {
	// addr is expected in host:port (host may be empty).
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
