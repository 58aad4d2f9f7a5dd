package synthesis

import (
	"context"
	"strings"

	"recipeflow/internal/recipe"
	"recipeflow/internal/upstream/openai"
)

const DefaultMaxTokens = 1200

type ChatClient interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Validator inspects a decoded recipe. A non-nil error turns the reply into
// a parse failure.
type Validator func(recipe.Recipe) error

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is the outcome of one synthesis call that reached the model.
// Exactly one of Recipe and ParseErr is set.
type Result struct {
	Recipe      *recipe.Recipe
	RawResponse string
	ParseErr    error
	Usage       *TokenUsage
}

// Parsed reports whether the reply decoded into a recipe.
func (r Result) Parsed() bool {
	return r.Recipe != nil
}

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Validator   Validator
}

type Service struct {
	client      ChatClient
	model       string
	temperature float64
	maxTokens   int
	validator   Validator
}

func New(client ChatClient, opts Options) *Service {
	s := &Service{
		client:      client,
		model:       strings.TrimSpace(opts.Model),
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		validator:   opts.Validator,
	}
	if s.maxTokens <= 0 {
		s.maxTokens = DefaultMaxTokens
	}
	return s
}

// Synthesize asks the model for a recipe and decodes the reply. Backend
// failures are returned as errors; undecodable replies are not errors and
// come back as a Result with ParseErr set.
func (s *Service) Synthesize(ctx context.Context, transcript, videoURL string) (Result, error) {
	chatResp, err := s.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		N:           1,
		Messages: []openai.ChatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildUserPrompt(transcript, videoURL)},
		},
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{RawResponse: strings.TrimSpace(chatResp.Content)}
	if chatResp.Usage != nil {
		result.Usage = &TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		}
	}

	parsed, err := recipe.Decode(result.RawResponse, videoURL)
	if err == nil && s.validator != nil {
		err = s.validator(parsed)
	}
	if err != nil {
		result.ParseErr = err
		return result, nil
	}
	result.Recipe = &parsed
	return result, nil
}
