package llm

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const DefaultSystemInstructions = "你是一个友好的聊天助手，请用简短的中文回复用户。"

// DefaultMaxHistory is the number of user and assistant messages kept after
// the system message.
const DefaultMaxHistory = 20

// OpenAIClient is the reply source of one conversation.
type OpenAIClient struct {
	Client             *openai.Client
	SystemInstructions string
	Model              string
	MaxHistory         int

	mu       sync.Mutex
	Messages []openai.ChatCompletionMessage
}

var _ Replier = &OpenAIClient{}

func NewOpenAIClient(apiKey string, systemInstructions string, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	return NewOpenAIClientWithConfig(openai.DefaultConfig(apiKey), systemInstructions, model)
}

func NewOpenAIClientWithConfig(cfg openai.ClientConfig, systemInstructions string, model string) (*OpenAIClient, error) {
	if model == "" {
		return nil, errors.New("openai: model is required")
	}
	return newConversation(openai.NewClientWithConfig(cfg), systemInstructions, model), nil
}

// NewOpenAIFactory shares one API client between conversations. Every
// client it builds starts with an empty history.
func NewOpenAIFactory(cfg openai.ClientConfig, systemInstructions string, model string) (Factory, error) {
	if model == "" {
		return nil, errors.New("openai: model is required")
	}
	api := openai.NewClientWithConfig(cfg)
	return func() (Replier, error) {
		return newConversation(api, systemInstructions, model), nil
	}, nil
}

func newConversation(api *openai.Client, systemInstructions string, model string) *OpenAIClient {
	if systemInstructions == "" {
		systemInstructions = DefaultSystemInstructions
	}
	return &OpenAIClient{
		Client:             api,
		SystemInstructions: systemInstructions,
		Model:              model,
		MaxHistory:         DefaultMaxHistory,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstructions},
		},
	}
}

// Reply streams a completion for the user's message and returns the whole
// answer. The exchange is kept in the client's history.
func (c *OpenAIClient) Reply(ctx context.Context, m model.Message) (string, error) {
	input := UserText(m)
	if input == "" {
		return "", errors.New("openai: empty input")
	}
	question := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: input}

	c.mu.Lock()
	messages := append(append([]openai.ChatCompletionMessage(nil), c.Messages...), question)
	c.mu.Unlock()

	stream, err := c.Client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", errors.Wrap(err, "openai: create stream")
	}
	defer stream.Close()

	answer, err := readAll(stream)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", errors.New("openai: empty completion")
	}

	c.mu.Lock()
	c.Messages = trimHistory(append(c.Messages, question, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: answer,
	}), c.MaxHistory)
	history := len(c.Messages)
	c.mu.Unlock()
	log.Debug().Str("component", "llm").Str("message_id", m.ID).Int("history", history).Msg("openai reply")
	return answer, nil
}

// trimHistory keeps the system message and the newest exchanges, at most
// limit messages after the system message. A limit of zero keeps everything.
func trimHistory(history []openai.ChatCompletionMessage, limit int) []openai.ChatCompletionMessage {
	if limit <= 0 {
		return history
	}
	limit -= limit % 2
	if len(history)-1 <= limit {
		return history
	}
	kept := make([]openai.ChatCompletionMessage, 0, limit+1)
	kept = append(kept, history[0])
	return append(kept, history[len(history)-limit:]...)
}

func readAll(stream *openai.ChatCompletionStream) (string, error) {
	buffer := &strings.Builder{}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "openai: receive")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		buffer.WriteString(resp.Choices[0].Delta.Content)
	}
	return strings.TrimSpace(buffer.String()), nil
}
