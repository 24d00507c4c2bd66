package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/overlapai/voicelink/internal/health"
)

func serve(t *testing.T, h *health.Handler, path string) (*http.Response, map[string]any) {
	t.Helper()

	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	res := rec.Result()
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decoding %s body: %v", path, err)
	}
	return res, body
}

// ─── TestHealthz_AlwaysOK ────────────────────────────────────────────────────

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	h := health.NewHandler()
	h.Add("broken", func(context.Context) error { return errors.New("down") })

	res, body := serve(t, h, "/healthz")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf(`body status = %v, want "ok"`, body["status"])
	}
	if _, ok := body["uptime"]; !ok {
		t.Fatal("healthz body missing uptime")
	}
}

// ─── TestReadyz_AllChecksPass ────────────────────────────────────────────────

func TestReadyz_AllChecksPass(t *testing.T) {
	t.Parallel()

	h := health.NewHandler()
	h.Add("room", func(context.Context) error { return nil })
	h.Add("retrieval", func(context.Context) error { return nil })

	res, body := serve(t, h, "/readyz")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	checks := body["checks"].(map[string]any)
	for _, name := range []string{"room", "retrieval"} {
		c := checks[name].(map[string]any)
		if c["status"] != "ok" {
			t.Errorf("check %q status = %v, want ok", name, c["status"])
		}
	}
}

// ─── TestReadyz_FailingCheckReports503 ───────────────────────────────────────

func TestReadyz_FailingCheckReports503(t *testing.T) {
	t.Parallel()

	h := health.NewHandler()
	h.Add("room", func(context.Context) error { return nil })
	h.Add("retrieval", func(context.Context) error { return errors.New("pool closed") })

	res, body := serve(t, h, "/readyz")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", res.StatusCode)
	}
	if body["status"] != "fail" {
		t.Fatalf(`body status = %v, want "fail"`, body["status"])
	}

	checks := body["checks"].(map[string]any)
	retr := checks["retrieval"].(map[string]any)
	if retr["status"] != "fail" {
		t.Errorf("retrieval status = %v, want fail", retr["status"])
	}
	if retr["error"] != "pool closed" {
		t.Errorf("retrieval error = %v, want pool closed", retr["error"])
	}
	room := checks["room"].(map[string]any)
	if room["status"] != "ok" {
		t.Errorf("room status = %v, want ok", room["status"])
	}
}

// ─── TestReadyz_NoChecksIsReady ──────────────────────────────────────────────

func TestReadyz_NoChecksIsReady(t *testing.T) {
	t.Parallel()

	res, body := serve(t, health.NewHandler(), "/readyz")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf(`body status = %v, want "ok"`, body["status"])
	}
}

// ─── TestReadyz_CheckTimeout ─────────────────────────────────────────────────

func TestReadyz_CheckTimeout(t *testing.T) {
	t.Parallel()

	h := health.NewHandler(health.WithTimeout(20 * time.Millisecond))
	h.Add("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	res, _ := serve(t, h, "/readyz")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 for timed-out check", res.StatusCode)
	}
}

// ─── TestProbes_RejectNonGET ─────────────────────────────────────────────────

func TestProbes_RejectNonGET(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	health.NewHandler().Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/readyz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /readyz status = %d, want 405", rec.Code)
	}
}
