package main

import (
	"context"
	"encoding/json"
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
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/crm-resolver/internal/batch"
	"github.com/sells-group/crm-resolver/internal/config"
	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/review"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runner := newRunner(pool)
		queue := review.NewQueue(crm.NewPostgresStore(pool))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(cfg.Server, runner, queue),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// newRouter builds the admin API. The single-deal resolve endpoint runs the
// pipeline inline with the request, so it sits behind a rate limiter.
func newRouter(sc config.ServerConfig, runner *batch.Runner, queue *review.Queue) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: sc.AllowOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/reviews", func(w http.ResponseWriter, req *http.Request) {
			limit := 50
			if s := req.URL.Query().Get("limit"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "invalid limit")
					return
				}
				limit = n
			}

			pending, err := queue.Pending(req.Context(), limit)
			if err != nil {
				zap.L().Error("list reviews failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "list reviews failed")
				return
			}
			if pending == nil {
				pending = []crm.ReviewRecord{}
			}
			writeJSON(w, http.StatusOK, pending)
		})

		r.Post("/reviews/{id}/resolve", func(w http.ResponseWriter, req *http.Request) {
			reviewID, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid review id")
				return
			}

			var body struct {
				CompanyID int64  `json:"company_id"`
				ContactID int64  `json:"contact_id"`
				Resolver  string `json:"resolver"`
				Notes     string `json:"notes"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.CompanyID == 0 || body.ContactID == 0 || body.Resolver == "" {
				writeError(w, http.StatusBadRequest, "company_id, contact_id and resolver are required")
				return
			}

			if err := queue.Resolve(req.Context(), reviewID, body.CompanyID, body.ContactID, body.Resolver, body.Notes); err != nil {
				zap.L().Warn("resolve review failed", zap.Int64("review_id", reviewID), zap.Error(err))
				writeError(w, http.StatusConflict, "resolve failed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"review_id": reviewID, "status": "resolved"})
		})

		limiter := rate.NewLimiter(rate.Limit(sc.RatePerSec), sc.RateBurst)
		r.With(rateLimit(limiter)).Post("/deals/{id}/resolve", func(w http.ResponseWriter, req *http.Request) {
			dealID, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid deal id")
				return
			}

			res, err := runner.ResolveOne(req.Context(), dealID)
			if err != nil {
				zap.L().Warn("inline resolve failed", zap.Int64("deal_id", dealID), zap.Error(err))
				writeError(w, http.StatusUnprocessableEntity, "resolve failed")
				return
			}
			if !res.OK() {
				writeJSON(w, http.StatusOK, map[string]any{
					"success": false,
					"reason":  res.Failure,
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success":    true,
				"company_id": res.CompanyID,
				"contact_id": res.ContactID,
			})
		})
	})

	return r
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, req)
		})
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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
