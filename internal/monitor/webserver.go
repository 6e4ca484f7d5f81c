// Package monitor serves the controller's HTTP status API, debug charts and
// gRPC health service.
package monitor

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/depth-servo/internal/depth"
	"github.com/banshee-data/depth-servo/internal/httputil"
	"github.com/banshee-data/depth-servo/internal/monitoring"
	"github.com/banshee-data/depth-servo/internal/servo"
	"github.com/banshee-data/depth-servo/internal/version"
)

// StateReader reports the scheduler state.
type StateReader interface {
	State() servo.State
}

// WebServer is the HTTP interface of the controller.
type WebServer struct {
	address    string
	server     *http.Server
	ring       *StatusRing
	knobs      *depth.KnobStore
	scheduler  StateReader
	health     *HealthService
	session    string
	controller func() servo.ControllerStats
	pipeline   func() depth.PipelineStats
	started    time.Time
}

// WebServerConfig configures a WebServer. Only Address and Ring are
// required.
type WebServerConfig struct {
	Address    string
	Ring       *StatusRing
	Knobs      *depth.KnobStore
	Scheduler  StateReader
	Health     *HealthService
	Session    string
	Controller func() servo.ControllerStats
	Pipeline   func() depth.PipelineStats
	// Attach mounts extra routes, such as the telemetry debug pages.
	Attach func(mux *http.ServeMux) error
}

// NewWebServer builds the server and its routes.
func NewWebServer(cfg WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address:    cfg.Address,
		ring:       cfg.Ring,
		knobs:      cfg.Knobs,
		scheduler:  cfg.Scheduler,
		health:     cfg.Health,
		session:    cfg.Session,
		controller: cfg.Controller,
		pipeline:   cfg.Pipeline,
		started:    time.Now(),
	}
	if ws.ring == nil {
		ws.ring = NewStatusRing(1)
	}
	mux := ws.setupRoutes()
	if cfg.Attach != nil {
		if err := cfg.Attach(mux); err != nil {
			return nil, err
		}
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws, nil
}

// Handler returns the root handler, for tests.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/knobs", ws.handleKnobs)
	mux.HandleFunc("/api/version", ws.handleVersion)
	mux.HandleFunc("/debug/ticks", ws.handleTicksChart)
	return mux
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", ws.address)
	if err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() {
		monitoring.Opsf("HTTP server listening on %s", lis.Addr())
		if err := ws.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Opsf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Opsf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Diagf("HTTP server stopped")
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if ws.health == nil {
		httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
		return
	}
	body, err := ws.health.CheckJSON()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

type statusResponse struct {
	State      string                 `json:"state"`
	Session    string                 `json:"session_id,omitempty"`
	Uptime     string                 `json:"uptime"`
	Latest     *servo.Status          `json:"latest,omitempty"`
	Controller *servo.ControllerStats `json:"controller,omitempty"`
	Pipeline   *depth.PipelineStats   `json:"pipeline,omitempty"`
	Knobs      *knobsJSON             `json:"knobs,omitempty"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{
		State:   "UNKNOWN",
		Session: ws.session,
		Uptime:  time.Since(ws.started).Truncate(time.Second).String(),
	}
	if ws.scheduler != nil {
		resp.State = ws.scheduler.State().String()
	}
	if st, ok := ws.ring.Latest(); ok {
		resp.Latest = &st
	}
	if ws.controller != nil {
		cs := ws.controller()
		resp.Controller = &cs
	}
	if ws.pipeline != nil {
		ps := ws.pipeline()
		resp.Pipeline = &ps
	}
	if ws.knobs != nil {
		k := toKnobsJSON(ws.knobs.Knobs())
		resp.Knobs = &k
	}
	httputil.WriteJSONOK(w, resp)
}

func (ws *WebServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Get())
}

// knobsJSON is the wire form of the live-tunable pipeline parameters.
type knobsJSON struct {
	MinDepth uint16  `json:"min_depth"`
	MaxDepth uint16  `json:"max_depth"`
	MinArea  float64 `json:"min_area"`
	MaxArea  float64 `json:"max_area"`
}

// knobsUpdate carries a partial update; absent fields keep their value.
type knobsUpdate struct {
	MinDepth *uint16  `json:"min_depth"`
	MaxDepth *uint16  `json:"max_depth"`
	MinArea  *float64 `json:"min_area"`
	MaxArea  *float64 `json:"max_area"`
}

func toKnobsJSON(k depth.Knobs) knobsJSON {
	return knobsJSON{MinDepth: k.Band.Min, MaxDepth: k.Band.Max, MinArea: k.Window.Min, MaxArea: k.Window.Max}
}

func (ws *WebServer) handleKnobs(w http.ResponseWriter, r *http.Request) {
	if ws.knobs == nil {
		httputil.NotFound(w, "knobs are not tunable in this mode")
		return
	}
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, toKnobsJSON(ws.knobs.Knobs()))
	case http.MethodPost:
		var upd knobsUpdate
		if err := httputil.DecodeJSONBody(w, r, 4096, &upd); err != nil {
			httputil.BadRequest(w, "invalid knobs: "+err.Error())
			return
		}
		k := ws.knobs.Knobs()
		if upd.MinDepth != nil {
			k.Band.Min = *upd.MinDepth
		}
		if upd.MaxDepth != nil {
			k.Band.Max = *upd.MaxDepth
		}
		if upd.MinArea != nil {
			k.Window.Min = *upd.MinArea
		}
		if upd.MaxArea != nil {
			k.Window.Max = *upd.MaxArea
		}
		if math.IsNaN(k.Window.Min) || math.IsNaN(k.Window.Max) {
			httputil.BadRequest(w, "area bounds must be numbers")
			return
		}
		if k.Band.Min > k.Band.Max {
			monitoring.Opsf("knobs: depth band [%d, %d] is empty, mask will be blank", k.Band.Min, k.Band.Max)
		}
		ws.knobs.Set(k)
		monitoring.Opsf("knobs updated: depth [%d, %d] area (%.0f, %.0f)", k.Band.Min, k.Band.Max, k.Window.Min, k.Window.Max)
		httputil.WriteJSONOK(w, toKnobsJSON(k))
	default:
		httputil.MethodNotAllowed(w)
	}
}
