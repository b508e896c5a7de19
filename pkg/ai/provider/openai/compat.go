// ABOUTME: Compatibility flags for local inference servers (Ollama, vLLM)
// ABOUTME: Adjusts request format for API differences in local deployments

package openai

import (
	"net/url"
	"strings"
)

// CompatMode defines compatibility adjustments for different API servers.
type CompatMode int

const (
	CompatStandard CompatMode = iota // Standard OpenAI API
	CompatOllama                     // Ollama: no stream_options
	CompatVLLM                       // vLLM: standard wire format
)

const ollamaPort = "11434"

// DetectCompat determines the compatibility mode from the base URL.
func DetectCompat(baseURL string) CompatMode {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return CompatStandard
	}
	switch {
	case u.Port() == ollamaPort || strings.Contains(u.Hostname(), "ollama"):
		return CompatOllama
	case strings.Contains(u.Hostname(), "vllm"):
		return CompatVLLM
	default:
		return CompatStandard
	}
}
