package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/plan"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// descriptionGenerator writes exercise descriptions with the OpenAI API.
type descriptionGenerator struct {
	client openai.Client
}

func newDescriptionGenerator(openaiAPIKey string) *descriptionGenerator {
	return &descriptionGenerator{
		client: openai.NewClient(option.WithAPIKey(openaiAPIKey)),
	}
}

const descriptionSystemPrompt = `You are a strength coach writing short exercise guides for a training log app.
Answer in GitHub flavoured markdown without a top level heading.`

// Generate returns a markdown description of the exercise.
func (g *descriptionGenerator) Generate(ctx context.Context, ex plan.Exercise) (string, error) {
	if strings.TrimSpace(ex.Name) == "" {
		return "", errors.New("exercise name cannot be empty")
	}

	prompt := fmt.Sprintf(`Describe the exercise %q following this exact structure:

## Instructions
[3-5 numbered steps explaining how to perform the exercise correctly]

## Common Mistakes
[3-4 common form errors as bullet points]

Keep it around 150 words and use simple language that beginners understand.`, ex.Name)

	chat, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{ //nolint:exhaustruct // defaults.
		Model:    openai.ChatModelGPT4o,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(descriptionSystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	markdown := strings.TrimSpace(chat.Choices[0].Message.Content)
	if markdown == "" {
		return "", errors.New("chat completion returned an empty description")
	}
	return markdown, nil
}

// minimalDescription is stored when generation is unavailable. The plan notes are rendered next to it.
func minimalDescription(ex plan.Exercise) string {
	return fmt.Sprintf("No description available for %s yet.\n", ex.Name)
}
