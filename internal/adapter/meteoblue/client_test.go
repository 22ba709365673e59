package meteoblue_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weathervane/weathervane/internal/adapter/meteoblue"
	"github.com/weathervane/weathervane/internal/domain"
	"github.com/weathervane/weathervane/internal/resilience"
)

const dayJSON = `{
	"metadata": {"latitude": 59.3293, "longitude": 18.0686, "modelrun_utc": "2026-03-14 00:00"},
	"units": {"temperature": "C", "precipitation": "mm"},
	"data_day": {
		"time": ["2026-03-14", "2026-03-15"],
		"pictocode": [8, 2],
		"temperature_max": [6.1, 8.4],
		"temperature_min": [-1.2, 0.3],
		"precipitation": [4.5, 0.0],
		"precipitation_probability": [80, 10],
		"predictability": [45, 70]
	}
}`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/packages/basic-day" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "59.3293" || q.Get("lon") != "18.0686" {
			t.Fatalf("unexpected coordinates: lat=%s lon=%s", q.Get("lat"), q.Get("lon"))
		}
		if q.Get("apikey") != "test-key" {
			t.Fatalf("unexpected apikey: %q", q.Get("apikey"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(dayJSON))
	}))
	defer srv.Close()

	client := meteoblue.NewClient(srv.URL, "test-key")
	payload, raw, err := client.Fetch(context.Background(), 59.3293, 18.0686)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected raw body bytes")
	}
	if !payload.HasForecast() {
		t.Fatal("expected a day forecast")
	}

	day := payload.FirstDay()
	if day.Pictocode != 8 {
		t.Fatalf("pictocode = %d, want 8", day.Pictocode)
	}
	if day.RainProbability != 80 {
		t.Fatalf("rain probability = %d, want 80", day.RainProbability)
	}
	if day.Predictability != 45 {
		t.Fatalf("predictability = %d, want 45", day.Predictability)
	}
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := meteoblue.NewClient(srv.URL, "bad-key")
	_, _, err := client.Fetch(context.Background(), 1, 2)

	var statusErr *meteoblue.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403", statusErr.Code)
	}
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatal("status errors must match domain.ErrUnavailable")
	}
}

func TestFetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	client := meteoblue.NewClient(srv.URL, "test-key")
	_, _, err := client.Fetch(context.Background(), 1, 2)

	var decodeErr *meteoblue.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %T: %v", err, err)
	}
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatal("decode errors must match domain.ErrUnavailable")
	}
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused

	client := meteoblue.NewClient(srv.URL, "test-key")
	_, _, err := client.Fetch(context.Background(), 1, 2)

	var netErr *meteoblue.NetError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetError, got %T: %v", err, err)
	}
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatal("network errors must match domain.ErrUnavailable")
	}
}

func TestFetch_BreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := meteoblue.NewClient(srv.URL, "test-key")
	client.SetBreaker(resilience.New(2, time.Minute))

	_, _, _ = client.Fetch(context.Background(), 1, 2)
	_, _, _ = client.Fetch(context.Background(), 1, 2)

	_, _, err := client.Fetch(context.Background(), 1, 2)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected rejected call after breaker opened, got %v", err)
	}
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatal("breaker rejection must still match domain.ErrUnavailable")
	}
}
