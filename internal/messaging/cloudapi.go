package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/avans-mx/avanbot/internal/models"
	"github.com/avans-mx/avanbot/internal/util"
)

// DefaultHTTPTimeout bounds Cloud API calls.
const DefaultHTTPTimeout = 15 * time.Second

var phoneDigitsRe = regexp.MustCompile(`^\d{10,15}$`)

// CloudAPIService implements Service against the Meta WhatsApp Cloud API.
// Inbound traffic arrives through the HTTP webhook, so Events never emits.
type CloudAPIService struct {
	apiURL     string
	token      string
	httpClient *http.Client
	events     chan models.MessageContext
}

// CloudAPIOpts holds configuration applied via CloudAPIOption.
type CloudAPIOpts struct {
	APIURL     string
	Token      string
	HTTPClient *http.Client
}

// CloudAPIOption configures a CloudAPIService.
type CloudAPIOption func(*CloudAPIOpts)

// WithAPIURL sets the messages endpoint URL for the business phone number.
func WithAPIURL(url string) CloudAPIOption {
	return func(o *CloudAPIOpts) {
		o.APIURL = url
	}
}

// WithToken sets the bearer access token.
func WithToken(token string) CloudAPIOption {
	return func(o *CloudAPIOpts) {
		o.Token = token
	}
}

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) CloudAPIOption {
	return func(o *CloudAPIOpts) {
		o.HTTPClient = c
	}
}

// NewCloudAPIService creates a Cloud API transport.
func NewCloudAPIService(opts ...CloudAPIOption) (*CloudAPIService, error) {
	var cfg CloudAPIOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("cloud API URL not set")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("cloud API token not set")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	slog.Debug("CloudAPIService created", "url", cfg.APIURL)
	return &CloudAPIService{
		apiURL:     cfg.APIURL,
		token:      cfg.Token,
		httpClient: client,
		events:     make(chan models.MessageContext),
	}, nil
}

// ValidateAndCanonicalizeRecipient strips a leading plus, applies country
// prefix normalization, and requires a bare digit string.
func (s *CloudAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(strings.TrimPrefix(recipient, "+"))
	if r == "" {
		return "", models.ErrEmptyRecipient
	}
	r = util.NormalizePhone(r)
	if !phoneDigitsRe.MatchString(r) {
		return "", fmt.Errorf("invalid recipient %q: must be 10-15 digits", recipient)
	}
	return r, nil
}

// SendText sends a plain text message.
func (s *CloudAPIService) SendText(ctx context.Context, to string, body string) error {
	if body == "" {
		return models.ErrEmptyBody
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return s.post(ctx, payload)
}

// SendInteractive sends a pre-built interactive payload, stamping the
// recipient into it.
func (s *CloudAPIService) SendInteractive(ctx context.Context, to string, payloadJSON string) error {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		slog.Error("CloudAPIService invalid interactive payload", "error", err)
		return fmt.Errorf("invalid interactive payload: %w", err)
	}
	payload["to"] = to
	return s.post(ctx, payload)
}

// maxMediaBytes bounds an inbound media download.
const maxMediaBytes = 10 * 1024 * 1024

// FetchMedia resolves a media ID through the Graph API and downloads the
// content. Returns the raw bytes and the reported MIME type.
func (s *CloudAPIService) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	if mediaID == "" {
		return nil, "", fmt.Errorf("empty media ID")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.mediaEndpoint(mediaID), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media lookup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media lookup returned status %d", resp.StatusCode)
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("failed to decode media metadata: %w", err)
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("media %s has no download URL", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build download request: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+s.token)

	dlResp, err := s.httpClient.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("media download failed: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode < 200 || dlResp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media download returned status %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(dlResp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media content: %w", err)
	}
	slog.Debug("CloudAPIService media fetched", "mediaID", mediaID, "bytes", len(data), "mime", meta.MimeType)
	return data, meta.MimeType, nil
}

// mediaEndpoint derives the media URL from the messages endpoint: the phone
// number and "/messages" segments are replaced by the media ID.
func (s *CloudAPIService) mediaEndpoint(mediaID string) string {
	base := s.apiURL
	if trimmed := strings.TrimSuffix(base, "/messages"); trimmed != base {
		base = trimmed
		if i := strings.LastIndex(base, "/"); i >= 0 {
			base = base[:i]
		}
	}
	return base + "/" + mediaID
}

// MarkRead marks an inbound message as read.
func (s *CloudAPIService) MarkRead(ctx context.Context, _ string, messageID string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	return s.post(ctx, payload)
}

func (s *CloudAPIService) post(ctx context.Context, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("CloudAPIService request failed", "error", err)
		return fmt.Errorf("cloud API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		slog.Error("CloudAPIService request rejected", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("cloud API returned status %d", resp.StatusCode)
	}
	slog.Debug("CloudAPIService request succeeded", "type", payload["type"])
	return nil
}

// Start is a no-op: inbound traffic reaches this transport via the webhook.
func (s *CloudAPIService) Start(ctx context.Context) error {
	slog.Debug("CloudAPIService Start invoked")
	return nil
}

// Stop closes the (unused) events channel.
func (s *CloudAPIService) Stop() error {
	slog.Info("CloudAPIService stopped")
	close(s.events)
	return nil
}

// Events never emits for this transport.
func (s *CloudAPIService) Events() <-chan models.MessageContext {
	return s.events
}
