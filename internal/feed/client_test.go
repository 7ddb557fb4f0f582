package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("default timeout", func(t *testing.T) {
		c := NewClient("http://receiver.local/data/aircraft.json")
		if c.httpClient.Timeout != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
		}
		if c.URL() != "http://receiver.local/data/aircraft.json" {
			t.Errorf("URL = %q", c.URL())
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("http://x", WithTimeout(2*time.Second))
		if c.httpClient.Timeout != 2*time.Second {
			t.Errorf("Timeout = %v, want 2s", c.httpClient.Timeout)
		}
	})

	t.Run("zero timeout keeps default", func(t *testing.T) {
		c := NewClient("http://x", WithTimeout(0))
		if c.httpClient.Timeout != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		hc := &http.Client{Timeout: time.Second}
		c := NewClient("http://x", WithHTTPClient(hc))
		if c.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"now": 1760000000.1,
			"messages": 42,
			"aircraft": [
				{"hex":"7c6ca3","lat":-33.9,"lon":151.1,"flight":"QFA9    ","squawk":"4521","alt_baro":3000,"category":"A5","track":90.5},
				{"hex":"7c1234","alt_baro":"ground"},
				{"hex":"7c9999","lat":null,"lon":150.0}
			]
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	f, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(f.Aircraft) != 3 {
		t.Fatalf("len(Aircraft) = %d, want 3", len(f.Aircraft))
	}

	a := f.Aircraft[0]
	if a.Hex == nil || *a.Hex != "7c6ca3" {
		t.Errorf("Hex = %v, want 7c6ca3", a.Hex)
	}
	if a.Lat == nil || *a.Lat != -33.9 {
		t.Errorf("Lat = %v, want -33.9", a.Lat)
	}
	if a.AltBaro == nil || a.AltBaro.Float64() != 3000 {
		t.Errorf("AltBaro = %v, want 3000", a.AltBaro)
	}
	if a.Track == nil || *a.Track != 90.5 {
		t.Errorf("Track = %v, want 90.5", a.Track)
	}

	ground := f.Aircraft[1]
	if ground.AltBaro == nil || ground.AltBaro.Float64() != 0 {
		t.Errorf("ground AltBaro = %v, want 0", ground.AltBaro)
	}
	if ground.Lat != nil || ground.Lon != nil {
		t.Error("expected missing coordinates to decode as nil")
	}

	if f.Aircraft[2].Lat != nil {
		t.Error("expected null lat to decode as nil")
	}
}

func TestFetchMissingAircraftArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"now": 1}`))
	}))
	defer server.Close()

	f, err := NewClient(server.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(f.Aircraft) != 0 {
		t.Errorf("len(Aircraft) = %d, want 0", len(f.Aircraft))
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"aircraft": [`))
			},
		},
		{
			name: "wrong shape",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"aircraft": "nope"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewClient(server.URL).Fetch(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("error type = %T, want *FetchError", err)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.wantStatus)
			}
			if fe.Error() == "" {
				t.Error("expected a human-readable message")
			}
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(server.URL, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch took %v, expected to time out quickly", elapsed)
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error type = %T, want *FetchError", err)
	}
}

func TestFetchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if fe.URL != url {
		t.Errorf("URL = %q, want %q", fe.URL, url)
	}
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{`3000`, 3000},
		{`-125`, -125},
		{`37000.5`, 37000.5},
		{`"ground"`, 0},
		{`"1500"`, 1500},
		{`""`, 0},
		{`true`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f FlexFloat
			if err := json.Unmarshal([]byte(tt.input), &f); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if f.Float64() != tt.want {
				t.Errorf("FlexFloat(%s) = %v, want %v", tt.input, f.Float64(), tt.want)
			}
		})
	}
}
