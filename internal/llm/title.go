package llm

import (
	"context"
	"strings"

	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/models"
)

const titleSystemPrompt = "You generate short titles for chat conversations. " +
	"Reply with a title of at most six words summarizing the user's message. " +
	"Reply with the title only: no quotes, no punctuation at the end, no markdown."

// titlePromptMaxChars bounds how much of the first message is sent to the
// title model.
const titlePromptMaxChars = 2000

// GenerateTitle asks the cheapest backend for a short conversation title
// based on the first user message. The result is sanitized and bounded to
// constants.MaxTitleLength.
func (r *Registry) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	prompt := firstMessage
	if runes := []rune(prompt); len(runes) > titlePromptMaxChars {
		prompt = string(runes[:titlePromptMaxChars])
	}

	completion, err := r.Complete(ctx, Request{
		Bucket: models.BucketLlama,
		Messages: []Message{
			{Role: models.RoleSystem, Content: titleSystemPrompt},
			{Role: models.RoleUser, Content: prompt},
		},
		MaxTokens:   30,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}

	title := SanitizeTitle(completion.Content)
	if title == "" {
		return models.DefaultSessionTitle, nil
	}
	return title, nil
}

// SanitizeTitle normalizes model-generated titles: quotes and markdown
// heading markers are stripped, whitespace collapsed, and the result is
// truncated to constants.MaxTitleLength without splitting a word when
// possible.
func SanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)

	// Models occasionally wrap titles in quotes or emit them as headings.
	title = strings.Trim(title, "\"'`“”‘’")
	title = strings.TrimLeft(title, "# ")
	title = strings.TrimSpace(title)

	title = strings.Join(strings.Fields(title), " ")

	runes := []rune(title)
	if len(runes) <= constants.MaxTitleLength {
		return title
	}

	cut := string(runes[:constants.MaxTitleLength])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
