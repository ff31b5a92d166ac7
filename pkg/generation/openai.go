package generation

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/pkg/composables"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI calls an OpenAI-compatible chat completions API. Like Remote it
// reports API failures as an empty reply.
type OpenAI struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
	}
}

func (o *OpenAI) messages(req Request) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"adapter": "openai",
		"model":   o.model,
	})

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       o.model,
		Messages:    o.messages(req),
		Temperature: openai.Float(req.Config.Temperature),
		TopP:        openai.Float(req.Config.TopP),
	}
	if req.Config.MaxResponse > 0 {
		params.MaxTokens = openai.Int(int64(req.Config.MaxResponse))
	}

	resp, err := o.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		logger.WithError(err).Warn("generation request failed")
		return "", nil
	}
	if len(resp.Choices) == 0 {
		logger.Warn("generation returned no choices")
		return "", nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", nil
	}
	used := int(resp.Usage.PromptTokens + resp.Usage.CompletionTokens)
	if req.Quota != nil && used > 0 {
		if err := req.Quota.Deduct(used); err != nil {
			return "", err
		}
	}
	return content, nil
}
