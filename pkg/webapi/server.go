package webapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/indi-protocol/indi-go/pkg/registry"
	"github.com/indi-protocol/indi-go/pkg/service"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Server serves the HTTP API of one hub.
type Server struct {
	config   Config
	hub      *service.Hub
	router   chi.Router
	upgrader websocket.Upgrader
}

// NewServer creates a server and registers its routes.
func NewServer(config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.OutboxSize == 0 {
		config.OutboxSize = DefaultOutboxSize
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = wire.DefaultMaxElementSize
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	s := &Server{
		config: config,
		hub:    config.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/sessions", s.handleSessions)
		r.Get("/devices", s.handleDevices)
		r.Get("/devices/{device}", s.handleDevice)
		r.Get("/devices/{device}/{property}", s.handleProperty)
		r.Post("/messages", s.handleMessage)
	})
	r.Get("/ws", s.handleWebSocket)

	if s.config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Protocol: wire.ProtocolVersion,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.hub.Sessions()
	out := make([]SessionView, len(infos))
	for i, info := range infos {
		out[i] = sessionView(info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	reg := s.hub.Registry()
	names := reg.Devices()
	out := make([]DeviceView, 0, len(names))
	for _, name := range names {
		dv := DeviceView{Name: name, Properties: len(reg.List(name))}
		if owner, ok := s.hub.Owner(name); ok {
			dv.Owner = owner
		}
		out = append(out, dv)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")
	snaps := s.hub.Registry().List(device)
	if len(snaps) == 0 {
		writeError(w, http.StatusNotFound, registry.ErrUnknownDevice.Error()+": "+device)
		return
	}
	out := make([]VectorView, len(snaps))
	for i, snap := range snaps {
		out[i] = vectorView(snap)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	snap, err := s.hub.Registry().Lookup(chi.URLParam(r, "device"), chi.URLParam(r, "property"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrUnknownDevice) || errors.Is(err, registry.ErrUnknownProperty) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, vectorView(snap))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	n := s.hub.Message(req.Device, req.Text)
	writeJSON(w, http.StatusOK, MessageResponse{Delivered: n})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.config.Logger != nil {
			s.config.Logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		}
		return
	}

	wc := newWSConn(conn, s.config)
	if _, err := s.hub.HandleConnect(wc); err != nil {
		if s.config.Logger != nil {
			s.config.Logger.Warn("websocket session rejected", "remote", r.RemoteAddr, "error", err)
		}
		wc.Close()
		return
	}
	if s.config.Logger != nil {
		s.config.Logger.Info("websocket peer connected", "conn", wc.ID(), "remote", r.RemoteAddr)
	}

	go wc.writeLoop()
	wc.readLoop(s.hub)
	s.hub.HandleDisconnect(wc)
	if s.config.Logger != nil {
		s.config.Logger.Info("websocket peer disconnected", "conn", wc.ID(), "reason", wc.Err())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
