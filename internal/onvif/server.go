package onvif

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/audit"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/auth"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/config"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/credential"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/metrics"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

const soapContentType = "application/soap+xml; charset=utf-8"

// Service paths
const (
	DeviceServicePath = "/onvif/device_service"
	MediaServicePath  = "/onvif/media_service"
)

// Services are the collaborators the HTTP server routes to.
type Services struct {
	Device *Dispatcher
	Media  *Dispatcher
	Gate   *auth.Gate
	Users  credential.Store
	// Hub serves the admin event feed; optional.
	Hub     *audit.Hub
	Metrics metrics.Recorder
	// MetricsHandler is mounted on the metrics path when set.
	MetricsHandler http.Handler
	// Limiter enables per-client rate limiting of SOAP requests when set.
	Limiter *limiter.Limiter
	Logger  *zap.Logger
}

// Server is the ONVIF HTTP front end
type Server struct {
	cfg        *config.Config
	svc        Services
	logger     *zap.Logger
	maxBody    int64
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates the server and its routes.
func NewServer(cfg *config.Config, svc Services) *Server {
	if svc.Metrics == nil {
		svc.Metrics = metrics.NewNoopMetrics()
	}
	if svc.Logger == nil {
		svc.Logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		logger:  svc.Logger,
		maxBody: cfg.Server.MaxRequestBytes,
	}

	mux := http.NewServeMux()
	s.handleSOAP(mux, DeviceServicePath, svc.Device)
	s.handleSOAP(mux, MediaServicePath, svc.Media)
	if svc.MetricsHandler != nil {
		mux.Handle(cfg.Metrics.Path, svc.MetricsHandler)
	}
	if cfg.Admin.Enabled() && svc.Users != nil && svc.Gate != nil {
		s.registerAdmin(mux)
	}
	s.handler = mux

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(cfg.Server.BindAddress, fmt.Sprint(cfg.Server.Port)),
		Handler:        mux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleSOAP(mux *http.ServeMux, path string, d *Dispatcher) {
	if d == nil {
		return
	}
	var h http.Handler = s.soapHandler(d)
	if s.svc.Limiter != nil {
		h = rateLimit(s.svc.Limiter, s.svc.Metrics, path, h)
	}
	mux.Handle(path, metrics.HTTPMiddleware(s.svc.Metrics, path, h))
}

func (s *Server) soapHandler(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
		if err != nil {
			s.logger.Warn("failed to read request body", zap.String("remote", r.RemoteAddr), zap.Error(err))
			writeSOAP(w, http.StatusBadRequest,
				soap.FaultEnvelope(soap.NewInvalidArgsFault("Failed to read request body")))
			return
		}
		if int64(len(body)) > s.maxBody {
			s.logger.Warn("request body too large", zap.String("remote", r.RemoteAddr), zap.Int64("limit", s.maxBody))
			http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
			return
		}

		resp := d.Handle(r.Context(), body, clientIP(r))
		writeSOAP(w, resp.Status, resp.Body)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener. Connections beyond
// server.max_connections wait in the accept queue.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.Server.MaxConnections)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ONVIF server listening", zap.Stringer("addr", ln.Addr()), zap.String("base_url", s.cfg.Server.BaseURL))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if s.svc.Hub != nil {
		s.svc.Hub.Close()
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("ONVIF server stopped")
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeSOAP(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", soapContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
