package worker

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/zepwave/inferlb/internal/config"
)

// openAIRequest is the wire body for DialectOpenAI's "v1/completions"
// endpoint, per spec.md §6.
type openAIRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt,omitempty"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	Stop             []string `json:"stop,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	Stream           bool     `json:"stream"`
}

// clusterChatRequest is the wire body for DialectCluster's chat-completions
// endpoint.
type clusterChatRequest struct {
	Model            string              `json:"model"`
	Messages         []clusterChatMessage `json:"messages"`
	MaxTokens        int                  `json:"max_tokens"`
	Temperature      float64              `json:"temperature"`
	TopP             float64              `json:"top_p"`
	Stop             []string             `json:"stop,omitempty"`
	FrequencyPenalty float64              `json:"frequency_penalty"`
	Stream           bool                 `json:"stream"`
}

type clusterChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// nativeOptions mirrors the "options" sub-object of DialectNative's request.
type nativeOptions struct {
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	NumPredict       int      `json:"num_predict"`
	Stop             []string `json:"stop,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
}

// nativeRequest is the wire body for DialectNative endpoints.
type nativeRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options nativeOptions `json:"options"`
}

// BuildRequestBody marshals a dialect-appropriate completion request body
// for this worker, per the wire shapes in spec.md §6.
func (w *Worker) BuildRequestBody(prompt string, p Params) ([]byte, error) {
	switch w.Dialect {
	case config.DialectOpenAI:
		return json.Marshal(openAIRequest{
			Model:            w.Model,
			Prompt:           prompt,
			MaxTokens:        p.MaxTokens,
			Temperature:      p.Temperature,
			TopP:             p.TopP,
			Stop:             p.Stop,
			FrequencyPenalty: p.FrequencyPenalty,
			Stream:           false,
		})
	case config.DialectCluster:
		return json.Marshal(clusterChatRequest{
			Model: w.Model,
			Messages: []clusterChatMessage{
				{Role: "user", Content: prompt},
			},
			MaxTokens:        p.MaxTokens,
			Temperature:      p.Temperature,
			TopP:             p.TopP,
			Stop:             p.Stop,
			FrequencyPenalty: p.FrequencyPenalty,
			Stream:           false,
		})
	case config.DialectNative:
		return json.Marshal(nativeRequest{
			Model:  w.Model,
			Prompt: prompt,
			Stream: false,
			Options: nativeOptions{
				Temperature:      p.Temperature,
				TopP:             p.TopP,
				NumPredict:       p.MaxTokens,
				Stop:             p.Stop,
				FrequencyPenalty: p.FrequencyPenalty,
			},
		})
	default:
		return nil, fmt.Errorf("worker %q: unknown dialect %q", w.ID, w.Dialect)
	}
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type nativeResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// NormalizeResponse parses a dialect-specific response body and extracts
// the model name and generated text, per spec.md §6's response-shape table.
func (w *Worker) NormalizeResponse(body []byte) (model string, text string, err error) {
	switch w.Dialect {
	case config.DialectOpenAI, config.DialectCluster:
		var resp openAIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", "", fmt.Errorf("worker %q: malformed %s response: %w", w.ID, w.Dialect, err)
		}
		if len(resp.Choices) == 0 {
			return "", "", fmt.Errorf("worker %q: %s response has no choices", w.ID, w.Dialect)
		}
		text = resp.Choices[0].Text
		if text == "" {
			text = resp.Choices[0].Message.Content
		}
		return resp.Model, text, nil
	case config.DialectNative:
		var resp nativeResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", "", fmt.Errorf("worker %q: malformed native response: %w", w.ID, err)
		}
		return resp.Model, resp.Response, nil
	default:
		return "", "", fmt.Errorf("worker %q: unknown dialect %q", w.ID, w.Dialect)
	}
}
