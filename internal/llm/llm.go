// Package llm talks to an OpenAI-compatible generative model: structured
// extraction of achievement standards from evaluation-plan text, and
// free-text synthesis of per-student report-card comments.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yunseol/pyeongeo/internal/llm/prompts"
	"github.com/yunseol/pyeongeo/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps an OpenAI-compatible API client for one model endpoint.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a client from resolved settings. Fails fast with
// ErrNotConfigured before any call can be attempted.
func New(settings model.ModelSettings) (*Client, error) {
	if !settings.Configured() {
		return nil, ErrNotConfigured
	}
	config := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		config.BaseURL = settings.BaseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: settings.Model,
	}, nil
}

// subjectEvaluation is one subject's extracted standards as returned by the model.
type subjectEvaluation struct {
	Subject   string                      `json:"subject"`
	Standards []model.AchievementStandard `json:"standards"`
}

type extractionResponse struct {
	Subjects []subjectEvaluation `json:"subjects"`
}

// ExtractEvaluationData sends the raw PDF text to the model and folds the
// schema-validated response into EvaluationData. Returns ErrEmptyResult when
// the model recovers zero subjects.
func (c *Client) ExtractEvaluationData(ctx context.Context, rawText string) (model.EvaluationData, error) {
	prompt := prompts.BuildExtractionPrompt(rawText)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return model.EvaluationData{}, fmt.Errorf("extraction API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.EvaluationData{}, fmt.Errorf("extraction: model returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("extraction response", "raw", raw)

	return parseExtraction([]byte(raw))
}

// parseExtraction validates the raw model response against the extraction
// schema and folds it into EvaluationData, preserving model-returned order.
func parseExtraction(raw []byte) (model.EvaluationData, error) {
	if err := validateJSONAgainstSchema(ExtractionSchema(), raw); err != nil {
		return model.EvaluationData{}, fmt.Errorf("extraction response: %w", err)
	}

	var parsed extractionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return model.EvaluationData{}, fmt.Errorf("parse extraction response: %w", err)
	}

	data := model.EvaluationData{
		Standards: make(map[string][]model.AchievementStandard),
	}
	for _, se := range parsed.Subjects {
		data.Subjects = append(data.Subjects, se.Subject)
		data.Standards[se.Subject] = se.Standards
	}

	if len(data.Subjects) == 0 {
		return model.EvaluationData{}, ErrEmptyResult
	}
	return data, nil
}

// GenerateComment synthesizes one student's report-card comment from their
// selected standards. Returns an empty string without a model call when the
// student has no selections. Selected ids that no longer resolve against the
// catalog are skipped silently.
func (c *Client) GenerateComment(ctx context.Context, student model.StudentData, data model.EvaluationData) (string, error) {
	if len(student.StandardEvaluations) == 0 {
		return "", nil
	}

	entries := commentEntries(student, data)
	prompt := prompts.BuildCommentPrompt(student.Subject, entries)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		// Sampling stays warm so repeated generations phrase things
		// differently across students.
		Temperature: 0.9,
	})
	if err != nil {
		return "", fmt.Errorf("comment API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("comment: model returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func commentEntries(student model.StudentData, data model.EvaluationData) []prompts.CommentEntry {
	var entries []prompts.CommentEntry
	for _, se := range student.StandardEvaluations {
		standard := data.FindStandard(student.Subject, se.StandardID)
		if standard == nil {
			continue
		}
		entries = append(entries, prompts.CommentEntry{
			Index:            len(entries) + 1,
			StandardText:     standard.Text,
			AchievementLevel: se.AchievementLevel,
			Attitude:         se.Attitude,
			GenerationFocus:  se.GenerationFocus,
			AdditionalInfo:   se.AdditionalInfo,
		})
	}
	return entries
}
