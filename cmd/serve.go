package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prep-service/internal/model"
	"github.com/sells-group/prep-service/internal/pipeline"
	"github.com/sells-group/prep-service/internal/store"
)

// userHeader carries the caller identity. Authentication proper lives in
// the gateway in front of this service.
const userHeader = "X-User-ID"

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prep API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
			// Prep generation runs two agent loops synchronously.
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 15 * time.Minute,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !eris.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "serve")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the API routes over the shared environment.
func newRouter(env *prepEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", userHeader},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/preps", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/", handleCreatePrep(env))
		r.Get("/", handleListPreps(env))
		r.Get("/{prepID}", handleGetPrep(env))
		r.Post("/{prepID}/outcome", handleUpsertOutcome(env))
		r.Get("/{prepID}/outcome", handleGetOutcome(env))
	})

	r.Route("/profile", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", handleGetProfile(env))
		r.Put("/", handlePutProfile(env))
	})

	r.Get("/cache/stats", handleCacheStats(env))
	r.Get("/stats", handleStats(env))

	return r
}

func handleStats(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := env.Metrics.Collect(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// requireUser rejects requests without a caller identity.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(userHeader) == "" {
			writeError(w, http.StatusUnauthorized, eris.Errorf("%s header is required", userHeader))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleCreatePrep(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.PrepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
			return
		}

		prep, err := env.Pipeline.Run(r.Context(), r.Header.Get(userHeader), req)
		if err != nil {
			switch {
			case eris.Is(err, pipeline.ErrInvalidRequest):
				writeError(w, http.StatusBadRequest, err)
			case eris.Is(err, pipeline.ErrNoUserProfile):
				writeError(w, http.StatusNotFound, err)
			case eris.Is(err, pipeline.ErrResearchFailed):
				writeError(w, http.StatusBadGateway, err)
			default:
				zap.L().Error("prep request failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, err)
			}
			return
		}
		writeJSON(w, http.StatusCreated, prep)
	}
}

func handleListPreps(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		preps, err := env.Store.ListMeetingPreps(r.Context(), r.Header.Get(userHeader), 0, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if preps == nil {
			preps = []model.MeetingPrep{}
		}
		writeJSON(w, http.StatusOK, preps)
	}
}

func handleGetPrep(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prep, err := env.Store.GetMeetingPrep(r.Context(), chi.URLParam(r, "prepID"), r.Header.Get(userHeader))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, eris.New("prep not found"))
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prep)
	}
}

func handleUpsertOutcome(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prepID := chi.URLParam(r, "prepID")

		// Ownership check before the write.
		if _, err := env.Store.GetMeetingPrep(r.Context(), prepID, r.Header.Get(userHeader)); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, eris.New("prep not found"))
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		var outcome model.MeetingOutcome
		if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
			return
		}
		outcome.PrepID = prepID
		if err := outcome.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		saved, err := env.Store.UpsertMeetingOutcome(r.Context(), outcome)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func handleGetOutcome(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prepID := chi.URLParam(r, "prepID")

		if _, err := env.Store.GetMeetingPrep(r.Context(), prepID, r.Header.Get(userHeader)); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, eris.New("prep not found"))
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		outcome, err := env.Store.GetMeetingOutcome(r.Context(), prepID)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, eris.New("no outcome recorded"))
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func handleGetProfile(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := env.Store.GetUserProfile(r.Context(), r.Header.Get(userHeader))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, eris.New("profile not found"))
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func handlePutProfile(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var profile model.UserProfile
		if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
			return
		}
		if profile.CompanyName == "" {
			writeError(w, http.StatusBadRequest, eris.New("company_name is required"))
			return
		}
		if err := env.Store.PutUserProfile(r.Context(), r.Header.Get(userHeader), profile); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func handleCacheStats(env *prepEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := env.Cache.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
