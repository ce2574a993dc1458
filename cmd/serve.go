package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/engine"
	"github.com/sells-group/campaign-engine/internal/events"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign control API with an in-process worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		go env.Pool.Run(ctx)
		startStaleRequeuer(ctx, env.Queue)

		a := &api{store: env.Store, lifecycle: env.Lifecycle, hub: env.Hub}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: a.router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api is the campaign control surface.
type api struct {
	store     store.Store
	lifecycle *engine.Lifecycle
	hub       *events.Hub
}

func (a *api) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", a.health)
	r.Get("/events", a.streamEvents)

	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", a.listCampaigns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getCampaign)
			r.Get("/transitions", a.listTransitions)
			r.Get("/leads", a.listLeads)
			r.Post("/start", a.startCampaign)
			r.Post("/restart", a.restartCampaign)
			r.Post("/cancel", a.cancelCampaign)
		})
	})

	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) startCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.lifecycle.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// restartCampaign behaves like start but surfaces the failure reason the
// previous run ended with, so callers can show why a re-queue was needed.
func (a *api) restartCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	prev, err := a.store.GetCampaign(r.Context(), id)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	c, err := a.lifecycle.Start(r.Context(), id)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campaign":                c,
		"previous_status":         prev.Status,
		"previous_failure_reason": prev.FailureReason,
	})
}

func (a *api) cancelCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.store.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) listTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := a.store.ListTransitions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

func (a *api) listLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := a.store.ListLeads(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (a *api) listCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	campaigns, err := a.store.ListCampaigns(r.Context(), store.CampaignFilter{
		TenantID: q.Get("tenant"),
		Status:   model.CampaignStatus(q.Get("status")),
		Type:     model.CampaignType(q.Get("type")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

// streamEvents is the live push channel: one SSE stream per subscriber,
// optionally filtered to a tenant.
func (a *api) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := a.hub.Subscribe(r.URL.Query().Get("tenant"))
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				zap.L().Error("marshal event for sse", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLifecycleError maps store errors to API statuses: unknown campaign
// is 404, an illegal transition (double start, cancel of a terminal run)
// is 409.
func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "campaign not found")
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
