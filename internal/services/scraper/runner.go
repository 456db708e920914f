// -----------------------------------------------------------------------
// Scraper runner - executes a generated scraper program as a subprocess and
// parses its JSON output. The program is opaque to the pipeline; the runner
// only enforces the output contract and surfaces classifiable error text.
// -----------------------------------------------------------------------

package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
)

// Config tunes scraper execution.
type Config struct {
	// Interpreter is the command that runs a scraper program. The program
	// path and the target URL are appended as arguments.
	Interpreter string
	UserAgent   string
	// ProbeTimeout bounds the pre-flight reachability check.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the standard runner settings.
func DefaultConfig() Config {
	return Config{
		Interpreter:  "node",
		UserAgent:    "CampScoutBot/1.0 (+https://campscout.example/bot)",
		ProbeTimeout: 30 * time.Second,
	}
}

// ExecRunner runs scraper programs through a configured interpreter.
type ExecRunner struct {
	config Config
	client *http.Client
	logger arbor.ILogger
}

// NewExecRunner creates a subprocess-backed scraper runner.
func NewExecRunner(config Config, logger arbor.ILogger) *ExecRunner {
	if config.Interpreter == "" {
		config.Interpreter = "node"
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 30 * time.Second
	}
	return &ExecRunner{
		config: config,
		client: &http.Client{Timeout: config.ProbeTimeout},
		logger: logger,
	}
}

// Run probes the target URL, executes the scraper program against it and
// parses the extracted records. Probe failures carry the HTTP status in the
// error text so the health engine can classify 404 and 429 responses; the
// scraper itself is not consulted for an unreachable site.
func (r *ExecRunner) Run(ctx context.Context, url string, scraperCode string) (*interfaces.ScrapeResult, error) {
	if strings.TrimSpace(scraperCode) == "" {
		return nil, fmt.Errorf("no scraper program provided")
	}

	if err := r.probe(ctx, url); err != nil {
		return nil, err
	}

	sessions, err := r.executeProgram(ctx, url, scraperCode)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("url", url).
		Int("sessions", len(sessions)).
		Msg("Scraper execution completed")

	return &interfaces.ScrapeResult{Sessions: sessions}, nil
}

// probe performs the pre-flight reachability check.
func (r *ExecRunner) probe(ctx context.Context, url string) error {
	probeCtx, cancel := context.WithTimeout(ctx, r.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}
	if r.config.UserAgent != "" {
		req.Header.Set("User-Agent", r.config.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("source unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return nil
}

// executeProgram writes the program to a scratch file, runs it through the
// interpreter with the URL as its argument and decodes the JSON array it
// prints to stdout.
func (r *ExecRunner) executeProgram(ctx context.Context, url string, scraperCode string) ([]models.RawSession, error) {
	dir, err := os.MkdirTemp("", "campscout-scraper-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	programPath := filepath.Join(dir, "scraper.js")
	if err := os.WriteFile(programPath, []byte(scraperCode), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write scraper program: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.config.Interpreter, programPath, url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Scraper stderr is the most useful signal; prefer it over the bare
		// exit status.
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("scraper execution failed: %s", msg)
	}

	var sessions []models.RawSession
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &sessions); err != nil {
		return nil, fmt.Errorf("scraper output is not a JSON session array: %w", err)
	}

	return sessions, nil
}
