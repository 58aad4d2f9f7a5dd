package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recipeflow/internal/config"
	"recipeflow/internal/model"
	"recipeflow/internal/pipeline"
	"recipeflow/internal/upstream/openai"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/semaphore"
)

type PipelineService interface {
	Run(ctx context.Context, videoURL string) pipeline.Result
}

type UpstreamChecker interface {
	CheckModels(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	IncRunsRejected()
}

type Dependencies struct {
	Pipeline       PipelineService
	Upstream       UpstreamChecker
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	pipeline     PipelineService
	upstream     UpstreamChecker
	metrics      MetricsObserver
	metricsRoute http.Handler
	runs         *semaphore.Weighted
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	serviceName      = "RecipeFlow"
	videoURLParam    = "youtube_url"
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pipeline == nil || deps.Upstream == nil {
		panic("httpapi: pipeline and upstream dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		pipeline:     deps.Pipeline,
		upstream:     deps.Upstream,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}
	if cfg.MaxConcurrentRuns > 0 {
		s.runs = semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns))
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(cfg.CORSAllowedOrigins)))
	}

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}
	r.Get("/generate-recipe", s.handleGenerateRecipe)

	return r
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.RootResponse{Message: serviceName + " API is running!"})
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.UpstreamAPIKey == "" {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "language model credential is not configured", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.upstream.CheckModels(ctx); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "upstream check failed", detailsForError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: serviceName})
}

func (s *server) handleGenerateRecipe(w http.ResponseWriter, r *http.Request) {
	videoURL := strings.TrimSpace(r.URL.Query().Get(videoURLParam))
	if videoURL == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", fmt.Sprintf("query parameter '%s' is required", videoURLParam), nil)
		return
	}

	if s.runs != nil {
		if !s.runs.TryAcquire(1) {
			if s.metrics != nil {
				s.metrics.IncRunsRejected()
			}
			s.writeError(w, r, http.StatusServiceUnavailable, "busy", "too many recipe generations in progress, retry later", nil)
			return
		}
		defer s.runs.Release(1)
	}

	result := s.pipeline.Run(r.Context(), videoURL)
	switch result.Kind {
	case pipeline.KindSuccess:
		writeJSON(w, http.StatusOK, model.RecipeResponse{
			Success:    true,
			Transcript: result.Transcript,
			Recipe:     *result.Recipe,
		})
	case pipeline.KindParseFailure:
		writeJSON(w, http.StatusOK, model.RecipeParseFailureResponse{
			Success:     false,
			Error:       result.ParseError,
			RawResponse: result.RawResponse,
			Transcript:  result.Transcript,
		})
	default:
		s.writeStageFailure(w, r, result)
	}
}

func (s *server) writeStageFailure(w http.ResponseWriter, r *http.Request, result pipeline.Result) {
	failure := result.Failure
	if failure == nil {
		failure = &pipeline.StageError{Stage: pipeline.StageUnknown, Kind: pipeline.ErrUnexpected, Message: "pipeline returned no result"}
	}

	status := http.StatusInternalServerError
	code := string(failure.Stage) + "_failed"
	details := detailsForError(failure.Err)
	if details == nil {
		details = map[string]any{}
	}
	details["stage"] = string(failure.Stage)
	details["run_id"] = result.RunID

	var upstreamErr *openai.Error
	switch {
	case errors.Is(failure, pipeline.ErrEmptyVideoURL):
		status = http.StatusBadRequest
		code = "invalid_request"
	case errors.Is(failure, pipeline.ErrPrecondition):
		code = "precondition_failed"
	case errors.Is(failure, pipeline.ErrUnexpected):
		code = "internal_error"
		delete(details, "error")
	case errors.As(failure, &upstreamErr):
		status = http.StatusBadGateway
		code = "upstream_request_failed"
	case errors.Is(failure, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
	case errors.Is(failure, context.Canceled):
		status = 499
		code = "canceled"
	}

	s.writeError(w, r, status, code, "recipe generation failed: "+failure.Error(), details)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsOptions echoes the request origin for a wildcard so credentialed browser
// requests are accepted.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	for _, origin := range origins {
		if origin == "*" {
			opts.AllowedOrigins = nil
			opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
			break
		}
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func detailsForError(err error) map[string]any {
	if err == nil {
		return nil
	}
	details := map[string]any{"error": err.Error()}
	var upstreamErr *openai.Error
	if errors.As(err, &upstreamErr) {
		details["upstream_status"] = upstreamErr.StatusCode
		if upstreamErr.Body != "" {
			details["upstream_body"] = upstreamErr.Body
		}
	}
	return details
}
