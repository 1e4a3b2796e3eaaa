package qa

import (
	"context"

	client "transcript-chat-service/internal/clients/openai"
)

// OpenAILLM completes chats with the OpenAI chat completions endpoint.
type OpenAILLM struct {
	client      *client.Client
	model       string
	temperature float64
}

// NewOpenAILLM creates an LLM for model at the given temperature.
func NewOpenAILLM(c *client.Client, model string, temperature float64) *OpenAILLM {
	return &OpenAILLM{client: c, model: model, temperature: temperature}
}

func (l *OpenAILLM) Complete(ctx context.Context, messages []Message) (string, error) {
	msgs := make([]client.Message, len(messages))
	for i, m := range messages {
		msgs[i] = client.Message{Role: m.Role, Content: m.Content}
	}
	out, err := l.client.Chat(ctx, l.model, l.temperature, msgs)
	if err != nil {
		if client.IsRateLimited(err) {
			return "", &RateLimitError{Err: err}
		}
		return "", err
	}
	return out, nil
}
