// Package genai provides AI-assisted responses using the OpenAI API.
package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// maxResponseLength caps AI answers before they reach WhatsApp.
const maxResponseLength = 800

// systemPrompt steers the model toward short, direct Spanish answers.
const systemPrompt = `Eres el asistente experto de AVANS especializado en muchas areas como SAP, manuales, bases de datos, entre otras mas.

INSTRUCCIONES CRÍTICAS:
- RESPONDE SIEMPRE EN ESPAÑOL
- Da una respuesta COMPLETA y útil
- Máximo 200 palabras
- Si son pasos: incluye TODOS los pasos necesarios (máximo 6)
- Sé específico y claro
- NO uses frases como "Como asistente", "En resumen", etc.
- Empieza directamente con la información útil`

// ErrNoChoicesReturned is returned when the API answers with no completion
// choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsService adapts the OpenAI SDK client to chatService.
type completionsService struct {
	client openai.Client
}

func (s *completionsService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI chat completion service. A nil *Client is a valid
// disabled client: every ask returns an error, which callers translate into
// the static fallback message.
type Client struct {
	chat  chatService
	model string
}

// Opts holds configuration applied via Option.
type Opts struct {
	APIKey string
	Model  string
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// NewClient initializes the AI client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{chat: &completionsService{client: cli}, model: model}, nil
}

// Enabled reports whether the client can serve requests.
func (c *Client) Enabled() bool {
	return c != nil && c.chat != nil
}

// Ask sends a direct question and returns the cleaned answer.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("genai client not configured")
	}
	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(question),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return CleanResponse(resp.Choices[0].Message.Content), nil
}

// AskWithContext asks a question with additional grounding text prepended.
func (c *Client) AskWithContext(ctx context.Context, question, additionalContext string) (string, error) {
	if additionalContext == "" {
		return c.Ask(ctx, question)
	}
	prompt := fmt.Sprintf("%s\n\nPregunta del usuario: %s", additionalContext, question)
	return c.Ask(ctx, prompt)
}

// AnalyzeImageData sends the image itself to the model as a vision request.
// The caption and any related context ride along as the text part.
func (c *Client) AnalyzeImageData(ctx context.Context, data []byte, mimeType, caption, relatedContext string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("genai client not configured")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty image data")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	prompt := "Analiza esta imagen como experto AVANS en SAP."
	if caption != "" && caption != "imagen" {
		prompt = fmt.Sprintf("Analiza esta imagen como experto AVANS en SAP. El usuario la envió con el texto: '%s'.", caption)
	}
	if relatedContext != "" {
		prompt = fmt.Sprintf("%s Contexto relacionado: %s", prompt, relatedContext)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("image completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return CleanResponse(resp.Choices[0].Message.Content), nil
}

// AnalyzeImage asks the model to interpret an image from its textual
// description, optionally grounded on related context. Used when the media
// content itself is not retrievable.
func (c *Client) AnalyzeImage(ctx context.Context, description, relatedContext string) (string, error) {
	var prompt string
	if relatedContext != "" {
		prompt = fmt.Sprintf("Imagen descrita como: '%s'. Contexto relacionado: %s. Analiza como experto AVANS en SAP.", description, relatedContext)
	} else {
		prompt = fmt.Sprintf("Como experto AVANS en SAP, analiza esta imagen: %s", description)
	}
	return c.Ask(ctx, prompt)
}

var (
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
	spaceRunsRe = regexp.MustCompile(`[ \t]{3,}`)
)

// CleanResponse normalizes a raw model answer for WhatsApp: markdown bold
// becomes WhatsApp bold, whitespace runs collapse, and overlong answers are
// cut at a sentence boundary.
func CleanResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	if cleaned == "" {
		return "No se pudo generar una respuesta."
	}

	cleaned = boldRe.ReplaceAllString(cleaned, "*$1*")
	cleaned = blankRunsRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = spaceRunsRe.ReplaceAllString(cleaned, " ")

	if len(cleaned) > maxResponseLength {
		// Back the cut off to a rune boundary so accented text stays whole.
		limit := maxResponseLength
		for limit > 0 && !utf8.RuneStart(cleaned[limit]) {
			limit--
		}
		cut := strings.LastIndex(cleaned[:limit], ".")
		if cut > maxResponseLength*7/10 {
			cleaned = cleaned[:cut+1]
		} else if cut = strings.LastIndex(cleaned[:limit], "\n"); cut > maxResponseLength*7/10 {
			cleaned = cleaned[:cut]
		} else {
			cleaned = cleaned[:limit] + "..."
		}
	}

	cleaned = strings.TrimSpace(cleaned)
	if !strings.HasSuffix(cleaned, ".") && !strings.HasSuffix(cleaned, "!") &&
		!strings.HasSuffix(cleaned, "?") && !strings.HasSuffix(cleaned, ":") {
		cleaned += "."
	}
	return cleaned
}
