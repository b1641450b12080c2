package openai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/resilience"
)

const defaultTimeout = 60 * time.Second

// Options configures one OpenAI-compatible endpoint. Name distinguishes the
// breakers of clients that share a resilience executor.
type Options struct {
	Name               string
	APIKey             string
	BaseURL            string
	Model              string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	api      *openai.Client
	name     string
	model    string
	executor *resilience.Executor
}

func New(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "chat"
	}
	return &Client{
		api:      openai.NewClientWithConfig(cfg),
		name:     name,
		model:    opts.Model,
		executor: opts.ResilienceExecutor,
	}
}

func (c *Client) Model() string {
	return c.model
}

// Complete runs one chat completion, offering tools when the request has any.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	resp, err := c.createChatCompletion(ctx, "complete", toChatRequest(c.model, req))
	if err != nil {
		return domain.Completion{}, err
	}

	message := resp.Choices[0].Message
	out := domain.Completion{
		Text:      message.Content,
		ToolCalls: make([]domain.ToolCall, 0, len(message.ToolCalls)),
	}
	for _, call := range message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}

func (c *Client) createChatCompletion(
	ctx context.Context,
	operation string,
	req openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	op := "llm." + c.name + "." + operation
	call := func(callCtx context.Context) (openai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(callCtx, req)
	}

	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	if c.executor != nil {
		resp, err = resilience.Call(ctx, c.executor, op, call, classifyOpenAIError)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return openai.ChatCompletionResponse{}, wrapTemporaryIfNeeded(op, describeAPIError(op, err))
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionResponse{}, fmt.Errorf("%s: empty choices", op)
	}

	slog.Debug("llm_usage",
		"operation", op,
		"model", c.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp, nil
}

func toChatRequest(model string, req domain.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: temperature(req.Temperature),
	}
	if len(req.Tools) == 0 {
		return out
	}

	out.Tools = make([]openai.Tool, 0, len(req.Tools))
	for _, spec := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	if req.ToolChoice != "" {
		out.ToolChoice = req.ToolChoice
	}
	return out
}

// temperature keeps an explicit zero on the wire; the SDK omits zero values.
func temperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
