// -----------------------------------------------------------------------
// Claude code generator - produces candidate scraper programs from a URL
// plus accumulated feedback. Output is stored verbatim by the caller; trust
// is established by the development workflow's test cycle, never here.
// -----------------------------------------------------------------------

package codegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/campscout/pipeline/internal/common"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/ternarybob/arbor"
)

const systemPrompt = `You are an expert web scraper developer. You write standalone scraper
programs that extract camp session listings from a provider's website.

Each extracted record must include at minimum: the session name and a URL
for details or registration. Include start date, end date, price, age range,
location and description whenever the page exposes them. Dates use
YYYY-MM-DD. Output one JSON array of records and nothing else.

Return only the scraper program source. Do not wrap it in markdown fences
and do not add commentary.`

// ClaudeGenerator implements code generation using the Anthropic Claude API.
type ClaudeGenerator struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// NewClaudeGenerator creates a Claude-backed code generator.
func NewClaudeGenerator(claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeGenerator, error) {
	if claudeConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for scraper generation (set via ANTHROPIC_API_KEY, CAMPSCOUT_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", claudeConfig.Timeout, err)
	}

	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(claudeConfig.APIKey),
	)

	generator := &ClaudeGenerator{
		config:    claudeConfig,
		logger:    logger,
		client:    client,
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude code generator initialized")

	return generator, nil
}

// GenerateScraper produces a candidate scraper program for the given site.
// Regenerations carry the previous candidate, the full feedback history and
// the last test error so the model can correct rather than start over.
func (g *ClaudeGenerator) GenerateScraper(ctx context.Context, input *interfaces.GenerationInput) (string, error) {
	if input.URL == "" {
		return "", fmt.Errorf("target URL is required for scraper generation")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := buildPrompt(input)

	startTime := time.Now()
	g.logger.Debug().
		Str("url", input.URL).
		Int("feedback_entries", len(input.FeedbackHistory)).
		Msg("Starting scraper code generation")

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.config.Model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	}
	if g.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(g.config.Temperature))
	}

	resp, err := g.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	code := stripCodeFences(response.String())
	if code == "" {
		return "", fmt.Errorf("no scraper code generated from Claude API")
	}

	g.logger.Debug().
		Str("url", input.URL).
		Int("code_length", len(code)).
		Dur("duration", time.Since(startTime)).
		Msg("Scraper code generation completed")

	return code, nil
}

// buildPrompt assembles the user message from the request context. The
// newest feedback entry is highlighted as the instruction to incorporate.
func buildPrompt(input *interfaces.GenerationInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a scraper for the camp provider %q.\nTarget URL: %s\n", input.OrganizationName, input.URL)

	if input.Notes != "" {
		fmt.Fprintf(&b, "\nOperator notes:\n%s\n", input.Notes)
	}

	if input.PreviousCode != "" {
		fmt.Fprintf(&b, "\nThe previous candidate is below. Improve it rather than starting from scratch.\n\n%s\n", input.PreviousCode)
	}

	if input.LastTestError != "" {
		fmt.Fprintf(&b, "\nThe last test run failed with:\n%s\n", input.LastTestError)
	}

	if len(input.FeedbackHistory) > 0 {
		b.WriteString("\nReviewer feedback, oldest first:\n")
		for _, entry := range input.FeedbackHistory {
			fmt.Fprintf(&b, "- (against v%d) %s\n", entry.ScraperVersionBefore, entry.FeedbackText)
		}
		latest := input.FeedbackHistory[len(input.FeedbackHistory)-1]
		fmt.Fprintf(&b, "\nThe most recent feedback must be addressed in this revision:\n%s\n", latest.FeedbackText)
	}

	return b.String()
}

// stripCodeFences removes a surrounding markdown fence when the model wraps
// its output despite instructions.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}

	// Drop the opening fence line (which may carry a language tag) and a
	// trailing fence line when present.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
