package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/assuredfarming/assured-farming-backend/api/responses"
	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

const (
	envHeader          = "X-Assured-Env"
	readinessTimeout   = 2 * time.Second
	dependencyHealthy  = "ok"
	dependencyDegraded = "unavailable"
)

// Pinger is any dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and reports 503 when any
// is unreachable.
func HealthReady(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		type check struct {
			name string
			err  error
		}
		results := make(chan check, len(names))
		for _, name := range names {
			go func(name string, p Pinger) {
				results <- check{name: name, err: p.Ping(ctx)}
			}(name, deps[name])
		}

		checks := make(map[string]string, len(names))
		failed := false
		for range names {
			res := <-results
			if res.err != nil {
				failed = true
				checks[res.name] = dependencyDegraded
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": res.name, "error": res.err.Error()}), "health.dependency_unavailable")
				}
				continue
			}
			checks[res.name] = dependencyHealthy
		}

		if failed {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
