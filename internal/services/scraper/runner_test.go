package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/campscout/pipeline/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func testRunner(interpreter string) *ExecRunner {
	return NewExecRunner(Config{
		Interpreter:  interpreter,
		UserAgent:    "CampScoutBot/1.0 (test)",
		ProbeTimeout: 5 * time.Second,
	}, arbor.NewLogger())
}

func TestProbe_SurfacesClassifiableStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected health.FailureClass
	}{
		{"not found", http.StatusNotFound, health.FailureNotFound},
		{"rate limited", http.StatusTooManyRequests, health.FailureRateLimited},
		{"server error", http.StatusInternalServerError, health.FailureGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			r := testRunner("sh")
			_, err := r.Run(context.Background(), srv.URL, "echo '[]'")
			require.Error(t, err)

			// The error text is the only channel to the health engine's
			// classifier; it must carry the right signal.
			assert.Equal(t, tt.expected, health.Classify(err.Error()))
		})
	}
}

func TestProbe_SendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := testRunner("sh")
	_, err := r.Run(context.Background(), srv.URL, "echo '[]'")
	require.NoError(t, err)
	assert.Equal(t, "CampScoutBot/1.0 (test)", gotUA)
}

func TestRun_ParsesScraperOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	program := `echo '[{"name":"Forest Camp Week 1","url":"https://camps.example.com/s/1","start_date":"2026-06-15","price":"$395"}]'`

	r := testRunner("sh")
	result, err := r.Run(context.Background(), srv.URL, program)
	require.NoError(t, err)
	require.Len(t, result.Sessions, 1)
	assert.Equal(t, "Forest Camp Week 1", result.Sessions[0].Name)
	assert.Equal(t, "$395", result.Sessions[0].Price)
}

func TestRun_ScraperStderrInError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	program := `echo 'selector matched nothing' >&2; exit 1`

	r := testRunner("sh")
	_, err := r.Run(context.Background(), srv.URL, program)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selector matched nothing")
}

func TestRun_InvalidOutputRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := testRunner("sh")
	_, err := r.Run(context.Background(), srv.URL, "echo 'not json'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON session array")
}

func TestRun_EmptyProgramRejected(t *testing.T) {
	r := testRunner("sh")
	_, err := r.Run(context.Background(), "https://camps.example.com", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scraper program")
}
