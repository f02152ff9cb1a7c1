package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"PipeKit/internal/domain/models"
	xhttp "PipeKit/pkg/http"
)

type fakeDispatcher struct {
	sent   []models.Batch
	trades []models.Record
}

func (d *fakeDispatcher) Send(_ context.Context, b models.Batch) { d.sent = append(d.sent, b) }

func (d *fakeDispatcher) SendTradeSimulation(_ context.Context, r models.Record) {
	d.trades = append(d.trades, r)
}

func post(t *testing.T, d *fakeDispatcher, path, body string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	t.Helper()
	e := echo.New()
	NewOutputsHandler(nil, d).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp xhttp.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestOutputsAccepted(t *testing.T) {
	d := &fakeDispatcher{}
	rec, resp := post(t, d, "/api/v1/outputs", `{"records":[{"text":"a"},{"text":"b","score":1}]}`)

	if rec.Code != http.StatusAccepted || resp.Status != http.StatusAccepted {
		t.Fatalf("status = %d %+v", rec.Code, resp)
	}
	if len(d.sent) != 1 || len(d.sent[0]) != 2 || d.sent[0][1]["score"] != float64(1) {
		t.Fatalf("sent = %v", d.sent)
	}
}

func TestOutputsRejectsBadBodies(t *testing.T) {
	var tooMany strings.Builder
	tooMany.WriteString(`{"records":[`)
	for i := 0; i <= models.MaxIngestRecords; i++ {
		if i > 0 {
			tooMany.WriteString(",")
		}
		fmt.Fprintf(&tooMany, `{"text":"%d"}`, i)
	}
	tooMany.WriteString(`]}`)

	tests := []struct {
		name string
		body string
	}{
		{"missing", `{}`},
		{"empty", `{"records":[]}`},
		{"too many", tooMany.String()},
		{"malformed", `{"records":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			rec, _ := post(t, d, "/api/v1/outputs", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if len(d.sent) != 0 {
				t.Fatalf("nothing should be dispatched")
			}
		})
	}
}

func TestPaperTrades(t *testing.T) {
	d := &fakeDispatcher{}
	rec, _ := post(t, d, "/api/v1/paper-trades",
		`{"symbol":"AAPL","action":"buy","quantity":10,"price":187.5,"timestamp":1700000000}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(d.trades) != 1 || d.trades[0]["symbol"] != "AAPL" {
		t.Fatalf("trades = %v", d.trades)
	}

	rec, resp := post(t, d, "/api/v1/paper-trades", `{"symbol":"AAPL","action":"HOLD","quantity":1,"price":1,"timestamp":1}`)
	if rec.Code != http.StatusBadRequest || resp.Status != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"ERR_INVALID_TRADE"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if len(d.trades) != 1 {
		t.Fatalf("invalid trade dispatched")
	}

	rec, _ = post(t, d, "/api/v1/paper-trades", `["not","an","object"]`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"code":"ERR_UNKNOWN"`) {
		t.Fatalf("bad body = %d %s", rec.Code, rec.Body.String())
	}
	if len(d.trades) != 1 {
		t.Fatalf("bad body dispatched")
	}
}
