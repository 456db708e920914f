package health

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected FailureClass
	}{
		{"http 429", "HTTP 429 Too Many Requests", FailureRateLimited},
		{"rate limit text", "provider rate limit exceeded", FailureRateLimited},
		{"hyphenated rate-limit", "Rate-Limit hit, backing off", FailureRateLimited},
		{"http 404", "HTTP 404 Not Found", FailureNotFound},
		{"not found text", "page Not Found", FailureNotFound},
		{"bare status code", "server returned 404", FailureNotFound},
		{"generic parse error", "selector matched nothing", FailureGeneric},
		{"timeout", "context deadline exceeded", FailureGeneric},
		{"empty message", "", FailureGeneric},
		{"mixed case", "TOO MANY REQUESTS", FailureRateLimited},
		// A throttled request that also mentions 404 must never feed the
		// URL-rot accounting.
		{"rate limit wins over 404", "429 on https://example.com/404", FailureRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.message); got != tt.expected {
				t.Errorf("Classify(%q) = %v, want %v", tt.message, got, tt.expected)
			}
		})
	}
}
