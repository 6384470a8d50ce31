package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/guidely/guidely-api/internal/config"
	"github.com/guidely/guidely-api/internal/models"
)

// ErrProviderNotConfigured indicates no API key is set for the backend that
// serves the requested bucket.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Message is a single turn in a completion request.
type Message struct {
	Role    models.MessageRole
	Content string
	Images  []models.MessageImage
}

// Request is a completion request for a resolved bucket.
type Request struct {
	Bucket      models.ModelBucket
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Completion is the provider's response.
type Completion struct {
	Content string
	Images  []models.MessageImage
	Usage   models.TokenUsage
}

// Completer produces completions for a bucket. The registry implements it;
// services depend on the interface so tests can stub the backends.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	GenerateTitle(ctx context.Context, firstMessage string) (string, error)
}

// Registry holds one OpenAI-compatible client per configured backend.
type Registry struct {
	clients map[string]*openai.Client
	logger  *slog.Logger
}

// NewRegistry builds clients for every backend with an API key. Backends
// without a key are left unregistered and fail with
// ErrProviderNotConfigured at call time.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	r := &Registry{
		clients: make(map[string]*openai.Client),
		logger:  logger,
	}

	r.register(ProviderGroq, cfg.GroqAPIKey, cfg.GroqBaseURL)
	r.register(ProviderDeepseek, cfg.DeepseekAPIKey, cfg.DeepseekBaseURL)
	r.register(ProviderGemini, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	r.register(ProviderOpenAI, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)

	return r
}

func (r *Registry) register(name, apiKey, baseURL string) {
	if apiKey == "" {
		r.logger.Warn("provider disabled, no API key", "provider", name)
		return
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	r.clients[name] = openai.NewClientWithConfig(clientCfg)
	r.logger.Debug("provider registered", "provider", name)
}

// Complete resolves the bucket's backend and runs a chat completion.
func (r *Registry) Complete(ctx context.Context, req Request) (*Completion, error) {
	res, err := ResolveBucket(req.Bucket)
	if err != nil {
		return nil, err
	}

	client, ok := r.clients[res.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, res.Provider)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    res.ProviderModelID,
		Messages: buildMessages(req.Messages, res.SupportsImages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		perr := ClassifyError(err, res.Provider, res.ProviderModelID)
		r.logger.Warn("completion failed",
			"provider", res.Provider,
			"model", res.ProviderModelID,
			"category", perr.Category,
			"status", perr.StatusCode,
			"error", perr.RawMessage,
		)
		return nil, perr
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Err:         ErrEmptyCompletion,
			Provider:    res.Provider,
			Model:       res.ProviderModelID,
			Category:    "empty_completion",
			UserMessage: "The model returned an empty response. Please try again.",
			Retryable:   true,
		}
	}

	content := resp.Choices[0].Message.Content
	completion := &Completion{
		Content: content,
		Usage: models.TokenUsage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
			Total:  resp.Usage.TotalTokens,
		},
	}

	// Image-generating models return their output inline as data URLs.
	if res.GeneratesImages {
		completion.Images, completion.Content = extractDataURLs(content)
	}

	return completion, nil
}

// buildMessages converts internal messages to the wire format. Image parts
// are attached as data URLs when the backend accepts them and dropped
// otherwise.
func buildMessages(msgs []Message, supportsImages bool) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if supportsImages && len(m.Images) > 0 {
			parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
			if m.Content != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: m.Content,
				})
			}
			for _, img := range m.Images {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:         string(m.Role),
				MultiContent: parts,
			})
			continue
		}

		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// extractDataURLs splits inline data URLs out of completion content,
// returning the decoded images and the remaining text.
func extractDataURLs(content string) ([]models.MessageImage, string) {
	var images []models.MessageImage
	var text []string

	for _, token := range strings.Fields(content) {
		if !strings.HasPrefix(token, "data:image/") {
			text = append(text, token)
			continue
		}
		rest, ok := strings.CutPrefix(token, "data:")
		if !ok {
			text = append(text, token)
			continue
		}
		mime, payload, ok := strings.Cut(rest, ";base64,")
		if !ok {
			text = append(text, token)
			continue
		}
		images = append(images, models.MessageImage{
			MimeType: mime,
			Data:     payload,
		})
	}

	return images, strings.Join(text, " ")
}
