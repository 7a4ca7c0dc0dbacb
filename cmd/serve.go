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

	"github.com/sells-group/builder-radar/internal/config"
	"github.com/sells-group/builder-radar/internal/scheduler"
	"github.com/sells-group/builder-radar/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server and in-process schedule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		sched, err := newSchedule(ctx, env, cfg.Schedule)
		if err != nil {
			return err
		}
		if sched.Len() > 0 {
			sched.Start()
			defer sched.Stop(30 * time.Second)
		}

		return startServer(ctx, buildRouter(env), resolvePort(servePort, cfg.Server.Port))
	},
}

// newSchedule registers the discover and digest jobs whose cron specs are set.
func newSchedule(ctx context.Context, env *appEnv, sc config.ScheduleConfig) (*scheduler.Scheduler, error) {
	sched := scheduler.New(ctx)
	if env.Pipeline != nil {
		if _, err := sched.Add("discover", sc.Discover, func(ctx context.Context) error {
			_, err := env.Pipeline.Run(ctx)
			return err
		}); err != nil {
			return nil, err
		}
	}
	if _, err := sched.Add("digest", sc.Digest, func(ctx context.Context) error {
		_, err := env.Digest.Run(ctx, false)
		return err
	}); err != nil {
		return nil, err
	}
	return sched, nil
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h on port until ctx is done, then shuts down gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// buildRouter mounts the trigger and read endpoints. Every response is JSON
// with a success flag; run-level failures return 500.
func buildRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := env.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/discover", handleDiscover(env))
		r.Post("/discover", handleDiscover(env))
		r.Get("/daily-report", handleDailyReport(env))
		r.Post("/daily-report", handleDailyReport(env))
		r.Post("/init", handleInit(env))
		r.Get("/opportunities", handleOpportunities(env))
		r.Post("/score/{id}", handleScore(env))
	})

	return r
}

func handleDiscover(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if env.Pipeline == nil {
			writeError(w, http.StatusServiceUnavailable, "discovery not configured")
			return
		}
		result, err := env.Pipeline.Run(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleDailyReport(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
		result, err := env.Digest.Run(r.Context(), dryRun)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleInit(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := env.Store.Migrate(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "schema ready"})
	}
}

func handleOpportunities(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := parseListOpts(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opps, err := env.Store.ListTop(r.Context(), opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"count":         len(opps),
			"opportunities": opps,
		})
	}
}

func handleScore(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid opportunity id")
			return
		}
		if env.Scorer == nil {
			writeError(w, http.StatusServiceUnavailable, "scoring not configured")
			return
		}

		result, err := scoreOne(r.Context(), env, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, result)
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, result)
		default:
			writeJSON(w, http.StatusOK, result)
		}
	}
}

// parseListOpts reads limit, offset, min_score, and scored from the query string.
func parseListOpts(r *http.Request) (store.ListOpts, error) {
	q := r.URL.Query()
	var opts store.ListOpts

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, eris.Errorf("invalid limit %q", v)
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, eris.Errorf("invalid offset %q", v)
		}
		opts.Offset = n
	}
	if v := q.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, eris.Errorf("invalid min_score %q", v)
		}
		opts.MinScore = &f
	}
	if v := q.Get("scored"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, eris.Errorf("invalid scored %q", v)
		}
		opts.ScoredOnly = b
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
