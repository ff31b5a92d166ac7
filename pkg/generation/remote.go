package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/pkg/composables"
)

type RemoteConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

// Remote talks to an Ollama-style chat endpoint. Transport and HTTP failures
// are logged and reported as an empty reply.
type Remote struct {
	url     string
	model   string
	timeout time.Duration
	client  *http.Client
}

func NewRemote(cfg RemoteConfig) *Remote {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Remote{url: cfg.URL, model: cfg.Model, timeout: timeout, client: client}
}

type remoteMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type remoteOptions struct {
	NumPredict    int     `json:"num_predict,omitempty"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

type remoteRequest struct {
	Model    string          `json:"model"`
	Messages []remoteMessage `json:"messages"`
	Options  remoteOptions   `json:"options"`
	Stream   bool            `json:"stream"`
}

type remoteResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func (r *Remote) payload(req Request) remoteRequest {
	messages := make([]remoteMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, remoteMessage{Role: string(RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, remoteMessage{Role: string(m.Role), Content: m.Content})
	}
	return remoteRequest{
		Model:    r.model,
		Messages: messages,
		Options: remoteOptions{
			NumPredict:    req.Config.MaxResponse,
			Temperature:   req.Config.Temperature,
			TopP:          req.Config.TopP,
			TopK:          req.Config.TopK,
			RepeatPenalty: req.Config.RepetitionPenalty,
		},
		Stream: false,
	}
}

func (r *Remote) Generate(ctx context.Context, req Request) (string, error) {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"adapter": "remote",
		"model":   r.model,
	})

	resp, err := r.call(ctx, req)
	if err != nil {
		logger.WithError(err).Warn("generation request failed")
		return "", nil
	}

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		logger.Warn("generation returned empty content")
		return "", nil
	}

	used := resp.PromptEvalCount + resp.EvalCount
	if req.Quota != nil && used > 0 {
		if err := req.Quota.Deduct(used); err != nil {
			return "", err
		}
	}
	return content, nil
}

func (r *Remote) call(ctx context.Context, req Request) (*remoteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(r.payload(req))
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, snippet)
	}

	var out remoteResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &out, nil
}
