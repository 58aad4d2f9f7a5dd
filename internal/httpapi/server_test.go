package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"recipeflow/internal/config"
	"recipeflow/internal/model"
	"recipeflow/internal/pipeline"
	"recipeflow/internal/recipe"
	"recipeflow/internal/upstream/openai"
)

type stubPipeline struct {
	result pipeline.Result
	urls   []string
	block  chan struct{}
	mu     sync.Mutex
}

func (s *stubPipeline) Run(_ context.Context, videoURL string) pipeline.Result {
	s.mu.Lock()
	s.urls = append(s.urls, videoURL)
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.result
}

type stubUpstream struct {
	err   error
	calls int
}

func (s *stubUpstream) CheckModels(context.Context) error {
	s.calls++
	return s.err
}

type stubMetrics struct {
	mu       sync.Mutex
	routes   []string
	rejected int
}

func (s *stubMetrics) ObserveHTTP(route, _ string, _ int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, route)
}

func (s *stubMetrics) IncRunsRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

func testConfig() config.Config {
	return config.Config{
		UpstreamAPIKey:     "x",
		UpstreamBaseURL:    "http://example.com",
		MaxConcurrentRuns:  2,
		CORSAllowedOrigins: []string{"*"},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Upstream == nil {
		deps.Upstream = &stubUpstream{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger, deps)
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v body=%s", err, w.Body.String())
	}
	return resp
}

func TestRootAndHealthz(t *testing.T) {
	h := newTestHandler(t, testConfig(), Dependencies{Pipeline: &stubPipeline{}})

	w := serve(h, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"message":"RecipeFlow API is running!"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = serve(h, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected healthz: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestGenerateRecipeSuccess(t *testing.T) {
	r := recipe.Recipe{
		Title:       "Kimchi fried rice",
		Description: "Quick rice",
		Ingredients: []recipe.Ingredient{{Name: "kimchi", Unit: "g", Amount: "100"}},
		Steps:       []recipe.Step{{Description: "Fry kimchi"}},
		VideoURL:    "https://youtu.be/abc",
	}
	pipe := &stubPipeline{result: pipeline.Result{
		Kind:       pipeline.KindSuccess,
		Transcript: "fry the kimchi",
		Recipe:     &r,
	}}
	h := newTestHandler(t, testConfig(), Dependencies{Pipeline: pipe})

	w := serve(h, http.MethodGet, "/generate-recipe?youtube_url=https://youtu.be/abc")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	if len(pipe.urls) != 1 || pipe.urls[0] != "https://youtu.be/abc" {
		t.Fatalf("unexpected pipeline input: %v", pipe.urls)
	}

	var resp model.RecipeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Transcript != "fry the kimchi" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Recipe.Title != "Kimchi fried rice" || resp.Recipe.VideoURL != "https://youtu.be/abc" {
		t.Fatalf("unexpected recipe: %+v", resp.Recipe)
	}
	if !strings.Contains(w.Body.String(), `"isImportant":false`) {
		t.Fatalf("expected step flags in body: %s", w.Body.String())
	}
}

func TestGenerateRecipeParseFailureIsNotAnError(t *testing.T) {
	pipe := &stubPipeline{result: pipeline.Result{
		Kind:        pipeline.KindParseFailure,
		Transcript:  "some transcript",
		RawResponse: "not json",
		ParseError:  "failed to parse recipe JSON from model response: bad",
	}}
	h := newTestHandler(t, testConfig(), Dependencies{Pipeline: pipe})

	w := serve(h, http.MethodGet, "/generate-recipe?youtube_url=u")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	var resp model.RecipeParseFailureResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.RawResponse != "not json" || resp.Transcript != "some transcript" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Error, "failed to parse recipe JSON") {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestGenerateRecipeRequiresURL(t *testing.T) {
	pipe := &stubPipeline{}
	h := newTestHandler(t, testConfig(), Dependencies{Pipeline: pipe})

	w := serve(h, http.MethodGet, "/generate-recipe?youtube_url=%20%20")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if got := decodeError(t, w).Error.Code; got != "invalid_request" {
		t.Fatalf("unexpected code: %q", got)
	}
	if len(pipe.urls) != 0 {
		t.Fatal("pipeline should not run without a url")
	}
}

func TestGenerateRecipeStageFailureMapping(t *testing.T) {
	cases := []struct {
		name    string
		failure *pipeline.StageError
		status  int
		code    string
	}{
		{
			name:    "missing credential",
			failure: &pipeline.StageError{Stage: pipeline.StagePrecondition, Kind: pipeline.ErrPrecondition, Message: "no key", Err: pipeline.ErrMissingCredential},
			status:  http.StatusInternalServerError,
			code:    "precondition_failed",
		},
		{
			name:    "empty url",
			failure: &pipeline.StageError{Stage: pipeline.StagePrecondition, Kind: pipeline.ErrPrecondition, Message: "no url", Err: pipeline.ErrEmptyVideoURL},
			status:  http.StatusBadRequest,
			code:    "invalid_request",
		},
		{
			name:    "fetch failed",
			failure: &pipeline.StageError{Stage: pipeline.StageFetch, Kind: pipeline.ErrStageFailed, Message: "audio download failed", Err: io.ErrUnexpectedEOF},
			status:  http.StatusInternalServerError,
			code:    "fetch_failed",
		},
		{
			name:    "upstream rejected",
			failure: &pipeline.StageError{Stage: pipeline.StageSynthesize, Kind: pipeline.ErrStageFailed, Message: "recipe generation failed", Err: fmt.Errorf("chat: %w", &openai.Error{StatusCode: 429, Body: "slow down"})},
			status:  http.StatusBadGateway,
			code:    "upstream_request_failed",
		},
		{
			name:    "deadline",
			failure: &pipeline.StageError{Stage: pipeline.StageTranscribe, Kind: pipeline.ErrStageFailed, Message: "transcription failed", Err: context.DeadlineExceeded},
			status:  http.StatusGatewayTimeout,
			code:    "timeout",
		},
		{
			name:    "unexpected",
			failure: &pipeline.StageError{Stage: pipeline.StageTranscribe, Kind: pipeline.ErrUnexpected, Message: "unexpected fault: boom", Err: fmt.Errorf("boom")},
			status:  http.StatusInternalServerError,
			code:    "internal_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pipe := &stubPipeline{result: pipeline.Result{Kind: pipeline.KindStageFailure, RunID: "run-1", Failure: tc.failure}}
			h := newTestHandler(t, testConfig(), Dependencies{Pipeline: pipe})

			w := serve(h, http.MethodGet, "/generate-recipe?youtube_url=u")
			if w.Code != tc.status {
				t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Error.Code != tc.code {
				t.Fatalf("unexpected code: %q", resp.Error.Code)
			}
			if resp.Error.Details["stage"] != string(tc.failure.Stage) {
				t.Fatalf("unexpected stage detail: %v", resp.Error.Details)
			}
			if resp.Error.Details["run_id"] != "run-1" {
				t.Fatalf("unexpected run id detail: %v", resp.Error.Details)
			}
		})
	}
}

func TestGenerateRecipeUpstreamDetails(t *testing.T) {
	failure := &pipeline.StageError{
		Stage:   pipeline.StageSynthesize,
		Kind:    pipeline.ErrStageFailed,
		Message: "recipe generation failed",
		Err:     &openai.Error{StatusCode: 401, Body: `{"error":"bad key"}`},
	}
	h := newTestHandler(t, testConfig(), Dependencies{Pipeline: &stubPipeline{result: pipeline.Result{Kind: pipeline.KindStageFailure, Failure: failure}}})

	w := serve(h, http.MethodGet, "/generate-recipe?youtube_url=u")
	resp := decodeError(t, w)
	if resp.Error.Details["upstream_status"] != float64(401) {
		t.Fatalf("unexpected details: %v", resp.Error.Details)
	}
	if resp.Error.Details["upstream_body"] != `{"error":"bad key"}` {
		t.Fatalf("unexpected details: %v", resp.Error.Details)
	}
}

func TestGenerateRecipeRejectsOverAdmissionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentRuns = 1
	pipe := &stubPipeline{
		result: pipeline.Result{Kind: pipeline.KindParseFailure, RawResponse: "x"},
		block:  make(chan struct{}),
	}
	metrics := &stubMetrics{}
	h := newTestHandler(t, cfg, Dependencies{Pipeline: pipe, Metrics: metrics})

	done := make(chan int)
	go func() {
		done <- serve(h, http.MethodGet, "/generate-recipe?youtube_url=first").Code
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		pipe.mu.Lock()
		started := len(pipe.urls) == 1
		pipe.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first run did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w := serve(h, http.MethodGet, "/generate-recipe?youtube_url=second")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	if got := decodeError(t, w).Error.Code; got != "busy" {
		t.Fatalf("unexpected code: %q", got)
	}

	close(pipe.block)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first run status: %d", code)
	}
	metrics.mu.Lock()
	rejected := metrics.rejected
	metrics.mu.Unlock()
	if rejected != 1 {
		t.Fatalf("expected one rejection, got %d", rejected)
	}

	w = serve(h, http.MethodGet, "/generate-recipe?youtube_url=third")
	if w.Code != http.StatusOK {
		t.Fatalf("slot should be released, got %d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	t.Run("missing credential skips upstream", func(t *testing.T) {
		cfg := testConfig()
		cfg.UpstreamAPIKey = ""
		up := &stubUpstream{}
		h := newTestHandler(t, cfg, Dependencies{Pipeline: &stubPipeline{}, Upstream: up})

		w := serve(h, http.MethodGet, "/readyz")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("unexpected status: %d", w.Code)
		}
		if up.calls != 0 {
			t.Fatal("upstream should not be checked without a credential")
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		up := &stubUpstream{err: &openai.Error{StatusCode: 503}}
		h := newTestHandler(t, testConfig(), Dependencies{Pipeline: &stubPipeline{}, Upstream: up})

		w := serve(h, http.MethodGet, "/readyz")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("unexpected status: %d", w.Code)
		}
		if decodeError(t, w).Error.Details["upstream_status"] != float64(503) {
			t.Fatalf("unexpected body: %s", w.Body.String())
		}
	})

	t.Run("ready", func(t *testing.T) {
		h := newTestHandler(t, testConfig(), Dependencies{Pipeline: &stubPipeline{}})
		w := serve(h, http.MethodGet, "/readyz")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"service_name":"RecipeFlow"`) {
			t.Fatalf("unexpected readyz: %d %s", w.Code, w.Body.String())
		}
	})
}

func TestCORSEchoesOriginWithCredentials(t *testing.T) {
	h := newTestHandler(t, testConfig(), Dependencies{Pipeline: &stubPipeline{}})

	req := httptest.NewRequest(http.MethodOptions, "/generate-recipe", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("unexpected allow-credentials: %q", got)
	}
}

func TestMetricsRouteAndObservation(t *testing.T) {
	metrics := &stubMetrics{}
	h := newTestHandler(t, testConfig(), Dependencies{
		Pipeline: &stubPipeline{},
		Metrics:  metrics,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}),
	})

	w := serve(h, http.MethodGet, "/metrics")
	if w.Body.String() != "metrics" {
		t.Fatalf("unexpected metrics body: %q", w.Body.String())
	}
	serve(h, http.MethodGet, "/healthz")
	if len(metrics.routes) != 2 || metrics.routes[1] != "/healthz" {
		t.Fatalf("unexpected observed routes: %v", metrics.routes)
	}
}

func TestNotFoundUsesErrorEnvelope(t *testing.T) {
	h := newTestHandler(t, testConfig(), Dependencies{Pipeline: &stubPipeline{}})
	w := serve(h, http.MethodGet, "/v1/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if decodeError(t, w).Error.Code != "not_found" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
