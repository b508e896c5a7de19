// ABOUTME: Tests for NormalizeBaseURL: strips trailing /v1 to prevent double-path issues
// ABOUTME: Covers vLLM, OpenAI, empty string, and trailing slash variants

package httputil

import "testing"

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"strips trailing /v1", "http://host:8000/v1", "http://host:8000"},
		{"strips trailing /v1/", "http://host:8000/v1/", "http://host:8000"},
		{"no change without /v1", "http://host:8000", "http://host:8000"},
		{"no change for openai", "https://api.openai.com", "https://api.openai.com"},
		{"empty string", "", ""},
		{"strips trailing slash only", "http://host:8000/", "http://host:8000"},
		{"preserves path before /v1", "http://host:8000/api/v1", "http://host:8000/api/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeBaseURL(tt.input); got != tt.want {
				t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"plain", "https://api.openai.com", "/v1/chat/completions", "https://api.openai.com/v1/chat/completions"},
		{"base with /v1", "http://host:8000/v1", "/v1/chat/completions", "http://host:8000/v1/chat/completions"},
		{"trailing slash", "http://host:8000/", "v1/models", "http://host:8000/v1/models"},
		{"nested base", "http://host/api/v1", "/chat", "http://host/api/v1/chat"},
		{"empty path", "http://host/", "", "http://host"},
		{"absolute path", "http://host", "https://other/x", "https://other/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ResolveEndpoint(tt.base, tt.path); got != tt.want {
				t.Errorf("ResolveEndpoint(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
			}
		})
	}
}
