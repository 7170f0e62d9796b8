package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/pavelanni/autograde/internal/llm/prompts"
	"github.com/pavelanni/autograde/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// GradeResult holds the LLM's assessment of a single short answer.
type GradeResult struct {
	Score     float64 `json:"score"`
	MaxPoints int     `json:"max_points"`
	Feedback  string  `json:"feedback"`
	IsCorrect bool    `json:"is_correct"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client and loads the grading prompt templates.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
	}, nil
}

// Ping checks that the endpoint is reachable and answers the models listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// GradeShortAnswer asks the LLM to score a short answer. The score is
// clamped to [0, MaxPoints].
func (c *Client) GradeShortAnswer(ctx context.Context, question model.Question, answer string) (model.ShortAnswerGrade, error) {
	systemPrompt, err := prompts.BuildShortAnswerPrompt(c.variant, question, answer)
	if err != nil {
		return model.ShortAnswerGrade{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Grade the answer in <student-answer>."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return model.ShortAnswerGrade{}, fmt.Errorf("LLM grading API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return model.ShortAnswerGrade{}, fmt.Errorf("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question_id", question.ID, "raw", raw)

	var result GradeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return model.ShortAnswerGrade{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}

	return model.ShortAnswerGrade{
		Score:     clampScore(result.Score, question.MaxPoints),
		Feedback:  result.Feedback,
		IsCorrect: result.IsCorrect,
	}, nil
}

func clampScore(score float64, maxPoints int) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if limit := float64(maxPoints); score > limit {
		return limit
	}
	return score
}
