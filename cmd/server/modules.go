package main

import (
	"encoding/json"
	"net/http"

	"github.com/Algorithm-App/eval-med-app/internal/api"
	"github.com/Algorithm-App/eval-med-app/internal/config"
	"github.com/Algorithm-App/eval-med-app/internal/infrastructure"
	"github.com/Algorithm-App/eval-med-app/pkg/middleware"
	"github.com/Algorithm-App/eval-med-app/pkg/module"
)

type Modules struct {
	API *module.Module
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Modules{API: apiModule}, nil
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

type probe struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func buildRouter(infra *infrastructure.Infrastructure, version string) *module.Router {
	router := module.NewRouter()
	router.Use(middleware.Recover(infra.Logger.With("system", "router")))

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, http.StatusOK, probe{Status: "ok", Version: version})
	})

	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		p := probe{Status: "ready", Checks: infra.Lifecycle.Status()}
		if !infra.Lifecycle.Ready() {
			p.Status = "not ready"
			writeProbe(w, http.StatusServiceUnavailable, p)
			return
		}
		writeProbe(w, http.StatusOK, p)
	})

	return router
}

func writeProbe(w http.ResponseWriter, code int, p probe) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(p)
}
