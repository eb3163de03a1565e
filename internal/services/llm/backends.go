package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"google.golang.org/genai"
)

type claudeBackend struct {
	config *common.ClaudeConfig
	kv     interfaces.KeyValueStorage

	mu     sync.Mutex
	client *anthropic.Client
}

func (b *claudeBackend) available(ctx context.Context) bool {
	_, err := common.ResolveAPIKey(ctx, b.kv, "anthropic_api_key", b.config.APIKey)
	return err == nil
}

func (b *claudeBackend) clientFor(ctx context.Context) (*anthropic.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, b.kv, "anthropic_api_key", b.config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	b.client = &client
	return b.client, nil
}

func (b *claudeBackend) generate(ctx context.Context, request *ContentRequest, model string, run attemptRunner) (string, string, error) {
	client, err := b.clientFor(ctx)
	if err != nil {
		return "", "", err
	}
	if model == "" {
		model = b.config.Model
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
	}
	if temp := firstPositive(request.Temperature, b.config.Temperature); temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	// Claude has no response schema parameter; the schema goes into the system prompt
	system := request.SystemInstruction
	if len(request.OutputSchema) > 0 {
		schema, err := json.Marshal(request.OutputSchema)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode output schema: %w", err)
		}
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this schema and nothing else:\n" + string(schema))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var resp *anthropic.Message
	err = run(func(ctx context.Context) error {
		var callErr error
		resp, callErr = client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return "", "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", "", fmt.Errorf("empty response from Claude")
	}
	return text.String(), model, nil
}

func (b *claudeBackend) close() {
	b.mu.Lock()
	b.client = nil
	b.mu.Unlock()
}

type geminiBackend struct {
	config *common.GeminiConfig
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger

	mu     sync.Mutex
	client *genai.Client
}

func (b *geminiBackend) available(ctx context.Context) bool {
	_, err := common.ResolveAPIKey(ctx, b.kv, "gemini_api_key", b.config.APIKey)
	return err == nil
}

func (b *geminiBackend) clientFor(ctx context.Context) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, b.kv, "gemini_api_key", b.config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	b.client = client
	return client, nil
}

func (b *geminiBackend) generate(ctx context.Context, request *ContentRequest, model string, run attemptRunner) (string, string, error) {
	client, err := b.clientFor(ctx)
	if err != nil {
		return "", "", err
	}
	if model == "" {
		model = b.config.Model
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(firstPositive(request.Temperature, b.config.Temperature)),
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	if request.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemInstruction, genai.RoleUser)
	}
	if len(request.OutputSchema) > 0 {
		schema, err := convertToGenaiSchema(request.OutputSchema)
		if err != nil {
			b.logger.Warn().Err(err).Msg("Output schema not convertible, requesting free text")
		} else if schema != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = schema
		}
	}

	contents := []*genai.Content{genai.NewContentFromText(request.Prompt, genai.RoleUser)}

	var resp *genai.GenerateContentResponse
	err = run(func(ctx context.Context) error {
		var callErr error
		resp, callErr = client.Models.GenerateContent(ctx, model, contents, config)
		return callErr
	})
	if err != nil {
		return "", "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", "", fmt.Errorf("empty response from Gemini")
	}
	text := resp.Text()
	if text == "" {
		return "", "", fmt.Errorf("empty text in Gemini response")
	}
	return text, model, nil
}

func (b *geminiBackend) close() {
	b.mu.Lock()
	b.client = nil
	b.mu.Unlock()
}

func firstPositive(values ...float32) float32 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

var schemaTypes = map[string]genai.Type{
	"object":  genai.TypeObject,
	"array":   genai.TypeArray,
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
}

// convertToGenaiSchema converts the JSON schema subset used by classification prompts
func convertToGenaiSchema(m map[string]interface{}) (*genai.Schema, error) {
	if len(m) == 0 {
		return nil, nil
	}

	schema := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		gt, known := schemaTypes[strings.ToLower(t)]
		if !known {
			return nil, fmt.Errorf("unsupported schema type %q", t)
		}
		schema.Type = gt
	}
	schema.Description, _ = m["description"].(string)
	schema.Enum, _ = m["enum"].([]string)
	schema.Required, _ = m["required"].([]string)
	if v, ok := m["minimum"].(float64); ok {
		schema.Minimum = &v
	}
	if v, ok := m["maximum"].(float64); ok {
		schema.Maximum = &v
	}

	if items, ok := m["items"].(map[string]interface{}); ok {
		itemSchema, err := convertToGenaiSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		schema.Items = itemSchema
	}

	if props, ok := m["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			propSchema, err := convertToGenaiSchema(prop)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			schema.Properties[name] = propSchema
		}
	}

	return schema, nil
}
