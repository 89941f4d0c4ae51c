// Package gemini implements integration with Google's Gemini AI API.
// It generates persona-steered replies for mention conversations.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/database"
)

// Client defines the interface for AI operations used by the mention
// handler. Implementations steer the model with the active persona's
// system prompt and priming dialogs.
type Client interface {
	GenerateReply(ctx context.Context, persona *database.Persona, history []database.DialogTurn, platformName, senderName, text string) (string, error)
}

type sdkClient struct {
	genaiClient        *genai.Client
	log                *slog.Logger
	contentConfig      *genai.GenerateContentConfig
	defaultInstruction string
	defaultModelName   string
	maxRetries         int
	retryDelay         time.Duration
}

// NewClient creates a new Gemini AI client with the provided configuration.
// It initializes the connection to the Gemini API and sets up necessary parameters.
func NewClient(
	ctx context.Context,
	cfg config.GeminiConfig,
	log *slog.Logger,
) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:        gi,
		log:                logger,
		contentConfig:      baseCfg,
		defaultInstruction: cfg.DefaultInstruction,
		defaultModelName:   cfg.ModelName,
		maxRetries:         cfg.MaxRetries,
		retryDelay:         time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

// GenerateReply produces the bot's answer to text, primed with the
// persona's begin dialogs and the conversation history. A nil persona
// falls back to the configured default instruction.
func (c *sdkClient) GenerateReply(ctx context.Context, persona *database.Persona, history []database.DialogTurn, platformName, senderName, text string) (string, error) {
	c.log.DebugContext(ctx, "Generating reply",
		"persona_id", personaID(persona), "history_len", len(history), "platform", platformName)

	contents := buildContents(persona, history, senderName, text)

	copyCfg := *c.contentConfig
	copyCfg.Tools = append(copyCfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	copyCfg.Tools = append(copyCfg.Tools, &genai.Tool{URLContext: &genai.URLContext{}})
	copyCfg.SystemInstruction = &genai.Content{
		Parts: []*genai.Part{{Text: c.systemInstruction(persona, platformName)}},
	}

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini reply generation failed", "error", err)
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

// systemInstruction composes the full system prompt: the reply header plus
// the persona's system prompt or the configured default.
func (c *sdkClient) systemInstruction(persona *database.Persona, platformName string) string {
	instruction := c.defaultInstruction
	if persona != nil && persona.SystemPrompt != "" {
		instruction = persona.SystemPrompt
	}
	return fmt.Sprintf(ReplyInstructionHeader, platformName) + instruction
}

// buildContents assembles the model input: persona begin dialogs first,
// then stored history, then the triggering message.
func buildContents(persona *database.Persona, history []database.DialogTurn, senderName, text string) []*genai.Content {
	var contents []*genai.Content

	if persona != nil {
		for i, dialog := range persona.BeginDialogs {
			role := genai.RoleUser
			if i%2 == 1 {
				role = genai.RoleModel
			}
			contents = append(contents, genai.NewContentFromText(dialog, role))
		}
	}

	for _, turn := range history {
		role := genai.RoleUser
		if turn.Role == database.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	contents = append(contents, genai.NewContentFromText(formatSenderMessage(senderName, text), genai.RoleUser))
	return contents
}

// formatSenderMessage prefixes the message with its sender so the model can
// track speakers across a group chat history.
func formatSenderMessage(senderName, text string) string {
	if senderName == "" {
		return text
	}
	return fmt.Sprintf("%s: %s", senderName, text)
}

func personaID(persona *database.Persona) string {
	if persona == nil {
		return ""
	}
	return persona.ID
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) { // Retriable HTTP codes
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", apiErr.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError", "error", err, "code", apiErr.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	return nil, err
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	op := "gemini_operation"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			parts := strings.Split(fn.Name(), ".")
			if len(parts) >= 2 {
				op = parts[len(parts)-1]
			}
		}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)

		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonStop {
			return "", fmt.Errorf("%s returned no content, finish reason: %s", op, finishReason)
		}

		return "", fmt.Errorf("%s returned empty content", op)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.log.WarnContext(ctx, "Gemini response text is empty", "operation", op)
		return "", fmt.Errorf("%s returned empty text", op)
	}

	return text, nil
}
