// Package statusapi is a small read-only HTTP surface an operator or
// monitoring tool polls for driver/interface state: no control
// endpoints live here, since every state-changing operation belongs to
// the driver facade's own API, not a REST shim over it.
//
// Structured as a struct holding the handler's dependencies, a
// constructor, and a Run(ctx) that starts an *http.Server and shuts it
// down on context cancellation. Routing uses github.com/gorilla/mux
// over four unauthenticated read-only JSON routes (/healthz, /v1/driver,
// /v1/interfaces, /v1/console) plus /metrics, since this surface has
// nothing to protect or rate-limit.
package statusapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Infineon/whd-expansion/internal/whd/driver"
)

// Server exposes read-only JSON views of a Driver's state over HTTP.
type Server struct {
	addr   string
	driver *driver.Driver
	srv    *http.Server
}

// New builds a Server bound to d, listening on addr once Run is called.
func New(addr string, d *driver.Driver) *Server {
	return &Server{addr: addr, driver: d}
}

// Run starts the HTTP server and blocks until ctx is canceled, at which
// point it shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/v1/driver", s.handleDriver).Methods(http.MethodGet)
	router.HandleFunc("/v1/interfaces", s.handleInterfaces).Methods(http.MethodGet)
	router.HandleFunc("/v1/console", s.handleConsole).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("status surface shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("status surface shutdown error", "error", err)
		}
	}()

	slog.Info("status surface listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type driverView struct {
	State  string `json:"state"`
	ChipID uint32 `json:"chip_id"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDriver(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, driverView{
		State:  s.driver.State().String(),
		ChipID: s.driver.ChipID(),
	})
}

type interfaceView struct {
	Name              string `json:"name"`
	MAC               string `json:"mac"`
	ReadyToTransceive bool   `json:"ready_to_transceive"`
}

func (s *Server) handleInterfaces(w http.ResponseWriter, _ *http.Request) {
	ifaces := s.driver.Interfaces()
	out := make([]interfaceView, 0, len(ifaces))
	for _, iface := range ifaces {
		out = append(out, interfaceView{
			Name:              iface.Name(),
			MAC:               iface.GetMACAddress().String(),
			ReadyToTransceive: iface.IsReadyToTransceive(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	lines, err := s.driver.ReadConsole(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"console": string(lines)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
