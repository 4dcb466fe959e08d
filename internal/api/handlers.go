package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avans-mx/avanbot/internal/models"
	"github.com/avans-mx/avanbot/internal/util"
)

// defaultInteractionsLimit caps the /interactions listing.
const defaultInteractionsLimit = 50

// webhookPayload mirrors the WhatsApp Cloud API webhook envelope, down to the
// fields the bot reads.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Button struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
	Interactive struct {
		Type      string `json:"type"`
		ListReply struct {
			Title string `json:"title"`
		} `json:"list_reply"`
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
	Image struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image"`
}

// extractText pulls the working text out of an inbound message, lowercased.
// Media messages reduce to a type marker the router recognizes.
func extractText(msg inboundMessage) string {
	switch msg.Type {
	case "text":
		return strings.ToLower(strings.TrimSpace(msg.Text.Body))
	case "button":
		if msg.Button.Payload != "" {
			return strings.ToLower(msg.Button.Payload)
		}
		if msg.Button.Text != "" {
			return strings.ToLower(msg.Button.Text)
		}
		return "mensaje no procesado"
	case "interactive":
		switch msg.Interactive.Type {
		case "list_reply":
			return strings.ToLower(msg.Interactive.ListReply.Title)
		case "button_reply":
			return strings.ToLower(msg.Interactive.ButtonReply.Title)
		}
		return "mensaje no procesado"
	case "image":
		if caption := strings.TrimSpace(msg.Image.Caption); caption != "" {
			return strings.ToLower(caption)
		}
		return "imagen"
	case "document":
		return "documento"
	case "audio":
		return "audio"
	case "video":
		return "video"
	}
	return "mensaje no procesado"
}

func messageTypeOf(raw string) models.MessageType {
	switch raw {
	case "text":
		return models.MessageTypeText
	case "button":
		return models.MessageTypeButton
	case "interactive":
		return models.MessageTypeInteractive
	case "image":
		return models.MessageTypeImage
	case "document":
		return models.MessageTypeDocument
	case "audio":
		return models.MessageTypeAudio
	case "video":
		return models.MessageTypeVideo
	}
	return models.MessageTypeUnknown
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Endpoint no encontrado"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"service": "avanbot",
		"status":  "running",
	}))
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verifyWebhook answers the Cloud API subscription handshake: the challenge
// echoes back as plain text when the verify token matches.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if s.verifyToken == "" || token != s.verifyToken || challenge == "" {
		slog.Warn("Server.verifyWebhook: verification rejected")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	slog.Info("Server.verifyWebhook: verification accepted")
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte(challenge)); err != nil {
		slog.Error("Server.verifyWebhook: failed to write challenge", "error", err)
	}
}

func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.receiveWebhook: processing webhook", "path", r.URL.Path)

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server.receiveWebhook: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Contenido debe ser JSON válido"))
		return
	}

	mc, ok := s.extractMessageContext(payload)
	if !ok {
		// Delivery/read status events arrive on the same webhook.
		slog.Debug("Server.receiveWebhook: no messages in webhook")
		writeJSONResponse(w, http.StatusOK, models.WebhookAccepted("Evento de status procesado"))
		return
	}

	// The platform retries on slow acks, so processing runs off-request.
	go s.router.HandleMessage(context.Background(), mc)

	writeJSONResponse(w, http.StatusOK, models.WebhookAccepted("Mensaje procesado correctamente"))
}

// extractMessageContext pulls the first message of the webhook into the
// router's inbound shape. False means the webhook carried no messages.
func (s *Server) extractMessageContext(payload webhookPayload) (models.MessageContext, bool) {
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return models.MessageContext{}, false
	}
	value := payload.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return models.MessageContext{}, false
	}

	msg := value.Messages[0]
	name := "Usuario"
	if len(value.Contacts) > 0 && value.Contacts[0].Profile.Name != "" {
		name = value.Contacts[0].Profile.Name
	}

	var ts int64
	if msg.Timestamp != "" {
		if parsed, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
			ts = parsed
		}
	}

	return models.MessageContext{
		Text:        extractText(msg),
		UserID:      util.NormalizePhone(msg.From),
		MessageID:   msg.ID,
		DisplayName: name,
		Type:        messageTypeOf(msg.Type),
		MediaID:     msg.Image.ID,
		Timestamp:   ts,
	}, true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "ok"
	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		slog.Error("Server.healthHandler: store ping failed", "error", err)
		status = "partial"
		dbStatus = err.Error()
	}

	writeJSONResponse(w, code, map[string]interface{}{
		"status": status,
		"components": map[string]string{
			"database": dbStatus,
		},
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snapshot := s.router.Sessions().Snapshot()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	summary, err := s.store.InventorySummary(ctx)
	if err != nil {
		slog.Error("Server.statsHandler: inventory summary failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to collect stats"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"active_sessions":   snapshot.ActiveSessions,
		"total_sessions":    snapshot.TotalSessions,
		"sessions_by_state": snapshot.ByState,
		"inventory":         summary,
	}))
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.router.Sessions().Snapshot()))
}

func (s *Server) ordersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := defaultInteractionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	orders, err := s.store.RecentOrders(ctx, limit)
	if err != nil {
		slog.Error("Server.ordersHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load orders"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(orders))
}

func (s *Server) lowStockHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	threshold := 0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("threshold must be a non-negative integer"))
			return
		}
		threshold = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	parts, err := s.store.LowStockParts(ctx, threshold)
	if err != nil {
		slog.Error("Server.lowStockHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load low-stock parts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(parts))
}

func (s *Server) interactionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := defaultInteractionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	interactions, err := s.store.RecentInteractions(ctx, limit)
	if err != nil {
		slog.Error("Server.interactionsHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load interactions"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(interactions))
}
