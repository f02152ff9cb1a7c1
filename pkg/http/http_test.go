package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPostJSON(t *testing.T) {
	var gotBody, gotCT, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotCT, gotAuth = string(b), r.Header.Get("Content-Type"), r.Header.Get("X-Token")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	status, err := NewClient().PostJSON(context.Background(), srv.URL, []map[string]any{{"text": "hi"}},
		map[string]string{"Content-Type": "application/json", "X-Token": "abc"}, time.Second)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("status = %d", status)
	}
	if gotBody != `[{"text":"hi"}]` || gotCT != "application/json" || gotAuth != "abc" {
		t.Fatalf("body=%s ct=%s token=%s", gotBody, gotCT, gotAuth)
	}
}

func TestPostJSONNon2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	status, err := NewClient().PostJSON(context.Background(), srv.URL, "{}", nil, time.Second)
	if err != nil || status != http.StatusInternalServerError {
		t.Fatalf("status = %d, err = %v", status, err)
	}
}

func TestPostJSONTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient().PostJSON(context.Background(), srv.URL, "{}", nil, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "AAPL" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("missing symbol"))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"AAPL","price":187.5}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		QueryParams: map[string][]string{"symbol": {"AAPL"}},
	}, &out)
	if err != nil {
		t.Fatalf("SendAndParse: %v", err)
	}
	if out["price"] != 187.5 {
		t.Fatalf("out = %v", out)
	}

	err = NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &out)
	if err == nil || !strings.Contains(err.Error(), "missing symbol") {
		t.Fatalf("err = %v", err)
	}
}

type panicRoutes struct{}

func (panicRoutes) RegisterRoutes(e *echo.Echo) {
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })
	e.GET("/ok", func(c echo.Context) error { return AcceptedResponse(c, "queued") })
}

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewServer([]Handler{panicRoutes{}}, WithMetrics("/metrics", reg, reg)), reg
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServerHealthAndMetrics(t *testing.T) {
	s, reg := newTestServer(t)

	if rec := serve(s, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec := serve(s, http.MethodGet, "/ok")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ok = %d", rec.Code)
	}
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Status != 202 || resp.Data != "queued" {
		t.Fatalf("resp = %+v, %v", resp, err)
	}

	if n, err := testutil.GatherAndCount(reg, "pipekit_http_requests_total"); err != nil || n == 0 {
		t.Fatalf("expected request metrics, got %d (%v)", n, err)
	}
	rec = serve(s, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pipekit_http_requests_total") {
		t.Fatalf("metrics endpoint = %d", rec.Code)
	}
}

func TestServerRecoversPanics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, http.MethodGet, "/boom")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	if err := AppErrorResponse(c, BadRequestErrorf("ERR_INVALID_TRADE", "bad %s", "event")); err != nil {
		t.Fatalf("AppErrorResponse: %v", err)
	}
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "bad event") {
		t.Fatalf("response = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	if err := AppErrorResponse(c, errors.New("boom")); err != nil {
		t.Fatalf("AppErrorResponse: %v", err)
	}
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("plain error response = %d %s", rec.Code, rec.Body.String())
	}
}

type sampleRequest struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" default:"3" validate:"min=1,max=5"`
}

func TestReadAndValidateRequest(t *testing.T) {
	e := echo.New()
	newCtx := func(body string) echo.Context {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return e.NewContext(req, httptest.NewRecorder())
	}

	var ok sampleRequest
	if errs := ReadAndValidateRequest(newCtx(`{"name":"x"}`), &ok); errs != nil {
		t.Fatalf("errs = %v", errs)
	}
	if ok.Count != 3 {
		t.Fatalf("default not applied: %d", ok.Count)
	}

	var bad sampleRequest
	errs := ReadAndValidateRequest(newCtx(`{"count":9}`), &bad)
	if len(errs) != 2 {
		t.Fatalf("errs = %+v", errs)
	}
	if errs[0].Field != "name" || errs[0].Code != "ERR_REQUIRED" {
		t.Fatalf("first error = %+v", errs[0])
	}
}
