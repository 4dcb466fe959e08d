// Package router drives the conversation: it takes one inbound message,
// consults the session state, the inventory store, the vector memory, and the
// AI client, and delivers the resulting responses through the messaging
// transport.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/avans-mx/avanbot/internal/genai"
	"github.com/avans-mx/avanbot/internal/intent"
	"github.com/avans-mx/avanbot/internal/inventory"
	"github.com/avans-mx/avanbot/internal/messaging"
	"github.com/avans-mx/avanbot/internal/models"
	"github.com/avans-mx/avanbot/internal/rag"
	"github.com/avans-mx/avanbot/internal/ratelimit"
	"github.com/avans-mx/avanbot/internal/respond"
	"github.com/avans-mx/avanbot/internal/session"
)

// memorySearchK is how many memory snippets ground a fallback or AI answer.
const memorySearchK = 3

// MediaFetcher retrieves inbound media content by its provider reference.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaID string) (data []byte, mimeType string, err error)
}

// Router routes inbound WhatsApp messages to the right handler and sends the
// responses back through the transport.
type Router struct {
	sessions *session.Store
	guard    *ratelimit.Guard
	store    inventory.Store
	ai       *genai.Client
	memory   *rag.Memory
	media    MediaFetcher
	service  messaging.Service
	delivery *messaging.Coordinator
}

// Opts holds the router's collaborators. Service and Store are required; the
// rest default to working zero-configuration instances (sessions, guard) or
// stay disabled (AI, memory).
type Opts struct {
	Sessions *session.Store
	Guard    *ratelimit.Guard
	AI       *genai.Client
	Memory   *rag.Memory
	Media    MediaFetcher
	Delivery *messaging.Coordinator
}

// Option configures optional router collaborators.
type Option func(*Opts)

// WithSessions overrides the session store.
func WithSessions(s *session.Store) Option {
	return func(o *Opts) { o.Sessions = s }
}

// WithGuard overrides the rate-limit guard.
func WithGuard(g *ratelimit.Guard) Option {
	return func(o *Opts) { o.Guard = g }
}

// WithAI enables AI answers for free text and images.
func WithAI(c *genai.Client) Option {
	return func(o *Opts) { o.AI = c }
}

// WithMemory enables the RAG memory for knowledge commands and fallbacks.
func WithMemory(m *rag.Memory) Option {
	return func(o *Opts) { o.Memory = m }
}

// WithMedia enables downloading inbound media for image analysis.
func WithMedia(f MediaFetcher) Option {
	return func(o *Opts) { o.Media = f }
}

// WithDelivery overrides the delivery coordinator, e.g. to disable pacing in
// tests.
func WithDelivery(c *messaging.Coordinator) Option {
	return func(o *Opts) { o.Delivery = c }
}

// NewRouter wires a router around the given transport and inventory store.
func NewRouter(service messaging.Service, store inventory.Store, opts ...Option) (*Router, error) {
	if service == nil {
		return nil, fmt.Errorf("messaging service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("inventory store is required")
	}

	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Sessions == nil {
		o.Sessions = session.NewStore()
	}
	if o.Guard == nil {
		o.Guard = ratelimit.NewGuard()
	}
	if o.Delivery == nil {
		o.Delivery = messaging.NewCoordinator(service)
	}

	return &Router{
		sessions: o.Sessions,
		guard:    o.Guard,
		store:    store,
		ai:       o.AI,
		memory:   o.Memory,
		media:    o.Media,
		service:  service,
		delivery: o.Delivery,
	}, nil
}

// Sessions exposes the session store for status endpoints.
func (r *Router) Sessions() *session.Store {
	return r.sessions
}

// HandleMessage is the entry point for one inbound message. Suppressed
// messages are dropped silently; everything else gets marked read, routed,
// answered, and recorded.
func (r *Router) HandleMessage(ctx context.Context, mc models.MessageContext) {
	slog.Info("Router HandleMessage received", "from", mc.UserID, "type", mc.Type)

	if r.guard.ShouldSuppress(mc.UserID, mc.Text) {
		slog.Info("Router HandleMessage suppressed", "from", mc.UserID)
		return
	}
	if !r.guard.MarkProcessing(mc.UserID) {
		slog.Info("Router HandleMessage dropped, user already in flight", "from", mc.UserID)
		return
	}
	defer r.guard.UnmarkProcessing(mc.UserID)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Router HandleMessage panicked", "from", mc.UserID, "panic", rec)
			if err := r.service.SendText(ctx, mc.UserID, respond.ErrorMessage()); err != nil {
				slog.Error("Router failed to send error message", "error", err)
			}
		}
	}()

	if mc.MessageID != "" {
		if err := r.service.MarkRead(ctx, mc.UserID, mc.MessageID); err != nil {
			slog.Warn("Router failed to mark message read", "error", err, "messageID", mc.MessageID)
		}
	}

	responses := r.route(ctx, mc)
	r.delivery.Deliver(ctx, mc.UserID, responses)
	r.saveInteraction(ctx, mc, responses)
}

func (r *Router) route(ctx context.Context, mc models.MessageContext) []string {
	if mc.Type == models.MessageTypeImage {
		return r.handleImage(ctx, mc)
	}
	if strings.HasPrefix(mc.Text, "memoria:") || strings.HasPrefix(mc.Text, "agregar:") {
		return r.handleMemoryCommand(ctx, mc)
	}

	if state, ok := r.sessions.Get(mc.UserID); ok {
		return r.handleStateful(ctx, mc, state)
	}
	return r.handleStateless(ctx, mc)
}

func (r *Router) handleStateful(ctx context.Context, mc models.MessageContext, state models.SessionState) []string {
	switch state {
	case models.StateAwaitingPartSearch:
		return r.handlePartSearch(ctx, mc)
	case models.StateAwaitingStatusSearch:
		return r.handleStatusSearch(ctx, mc)
	case models.StateAwaitingOrderNumber:
		return r.handleOrderSearch(ctx, mc)
	case models.StatePostConsultation, models.StatePostStatus, models.StatePostOrder:
		return r.handlePostAction(mc, state)
	default:
		slog.Warn("Router unknown session state, resetting", "from", mc.UserID, "state", state)
		r.sessions.Clear(mc.UserID)
		return r.greeting(mc)
	}
}

func (r *Router) handleStateless(ctx context.Context, mc models.MessageContext) []string {
	switch mc.Text {
	case "hola", "ayuda", "empezar", "menu":
		return r.greeting(mc)
	case "consulta", "menubtn1":
		return r.startPartConsultation(mc)
	case "estatus", "menubtn2":
		return r.startStatusConsultation(mc)
	case "ordenes", "órdenes", "menubtn3":
		return r.startOrderConsultation(mc)
	case "sí", "si", "no":
		// Yes/no with no pending question goes back to the menu.
		return r.greeting(mc)
	default:
		return r.handleFreeText(ctx, mc)
	}
}

func (r *Router) greeting(mc models.MessageContext) []string {
	r.sessions.Clear(mc.UserID)
	return []string{respond.MainMenu()}
}

func (r *Router) startPartConsultation(mc models.MessageContext) []string {
	r.sessions.Set(mc.UserID, models.StateAwaitingPartSearch, nil)
	return []string{respond.PartSearchPrompt()}
}

func (r *Router) startStatusConsultation(mc models.MessageContext) []string {
	r.sessions.Set(mc.UserID, models.StateAwaitingStatusSearch, nil)
	return []string{respond.StatusSearchPrompt()}
}

func (r *Router) startOrderConsultation(mc models.MessageContext) []string {
	r.sessions.Set(mc.UserID, models.StateAwaitingOrderNumber, nil)
	return []string{respond.OrderNumberPrompt()}
}

func (r *Router) handlePartSearch(ctx context.Context, mc models.MessageContext) []string {
	parts, err := r.store.SearchParts(ctx, mc.Text)
	if err != nil {
		slog.Error("Router part search failed", "error", err, "term", mc.Text)
		return []string{respond.ErrorMessage()}
	}

	if len(parts) == 0 {
		// The vector memory may still know the part. State stays put so the
		// user can retry.
		memCtx, err := r.memory.Search(ctx, "pieza "+mc.Text, memorySearchK)
		if err != nil {
			slog.Warn("Router memory fallback failed", "error", err)
		}
		if memCtx != "" {
			return []string{respond.PartNotFoundWithMemory(memCtx)}
		}
		return []string{respond.PartSearchMiss()}
	}

	responses := respond.PartsMessages(mc.Text, parts)
	responses = append(responses, respond.YesNo("¿Consultar otra pieza?", "postconsulta"))
	r.sessions.Set(mc.UserID, models.StatePostConsultation, nil)
	return responses
}

func (r *Router) handleStatusSearch(ctx context.Context, mc models.MessageContext) []string {
	parts, err := r.store.SearchPartsForStatus(ctx, mc.Text)
	if err != nil {
		slog.Error("Router status search failed", "error", err, "term", mc.Text)
		return []string{respond.ErrorMessage()}
	}
	if len(parts) == 0 {
		return []string{respond.StatusSearchMiss()}
	}

	responses := respond.StatusMessages(mc.Text, parts)
	responses = append(responses, respond.YesNo("¿Consultar otra pieza?", "poststatus"))
	r.sessions.Set(mc.UserID, models.StatePostStatus, nil)
	return responses
}

func (r *Router) handleOrderSearch(ctx context.Context, mc models.MessageContext) []string {
	docNum, err := parseOrderNumber(mc.Text)
	if err != nil {
		return []string{respond.InvalidOrderNumber()}
	}

	order, err := r.store.GetOrder(ctx, docNum)
	if err != nil {
		slog.Error("Router order lookup failed", "error", err, "docNum", docNum)
		return []string{respond.ErrorMessage()}
	}
	if order == nil {
		return []string{respond.OrderNotFound()}
	}

	responses := []string{respond.OrderMessage(*order)}
	responses = append(responses, respond.YesNo("¿Consultar otra orden?", "postorden"))
	r.sessions.Set(mc.UserID, models.StatePostOrder, nil)
	return responses
}

func parseOrderNumber(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, models.ErrInvalidOrderInput
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, models.ErrInvalidOrderInput
		}
	}
	return strconv.ParseInt(text, 10, 64)
}

func (r *Router) handlePostAction(mc models.MessageContext, state models.SessionState) []string {
	switch mc.Text {
	case "sí", "si":
		switch state {
		case models.StatePostConsultation:
			return r.startPartConsultation(mc)
		case models.StatePostStatus:
			return r.startStatusConsultation(mc)
		case models.StatePostOrder:
			return r.startOrderConsultation(mc)
		}
	case "no":
		r.sessions.Clear(mc.UserID)
		return []string{respond.FarewellMessage()}
	}
	// Anything else falls back to the menu.
	return r.greeting(mc)
}

func (r *Router) handleMemoryCommand(ctx context.Context, mc models.MessageContext) []string {
	_, content, _ := strings.Cut(mc.Text, ":")
	content = strings.TrimSpace(content)

	text, source, found := strings.Cut(content, " | ")
	if !found {
		source = fmt.Sprintf("WhatsApp (%s)", mc.DisplayName)
	}
	text = strings.TrimSpace(text)
	source = strings.TrimSpace(source)

	if err := r.memory.Save(ctx, text, source); err != nil {
		slog.Error("Router memory save failed", "error", err)
		return []string{respond.MemorySaveFailed()}
	}
	return []string{respond.MemorySaved(text, source)}
}

func (r *Router) handleImage(ctx context.Context, mc models.MessageContext) []string {
	if !r.ai.Enabled() {
		return []string{respond.ImageReceived()}
	}

	memCtx, err := r.memory.Search(ctx, mc.Text, memorySearchK)
	if err != nil {
		slog.Warn("Router image memory lookup failed", "error", err)
	}

	if r.media != nil && mc.MediaID != "" {
		data, mimeType, err := r.media.FetchMedia(ctx, mc.MediaID)
		if err != nil {
			slog.Warn("Router media download failed", "error", err, "mediaID", mc.MediaID)
		} else {
			analysis, err := r.ai.AnalyzeImageData(ctx, data, mimeType, mc.Text, memCtx)
			if err != nil {
				slog.Error("Router image analysis failed", "error", err, "mediaID", mc.MediaID)
				return []string{respond.ImageAnalysisFailed()}
			}
			return []string{respond.ImageAnalysis(analysis)}
		}
	}

	// No downloadable media: fall back to analyzing the caption text.
	analysis, err := r.ai.AnalyzeImage(ctx, mc.Text, memCtx)
	if err != nil {
		slog.Error("Router image analysis failed", "error", err)
		return []string{respond.ImageAnalysisFailed()}
	}
	return []string{respond.ImageAnalysis(analysis)}
}

// handleFreeText works down a chain: structured intent against the database,
// then a customer-name order lookup, then the AI with memory context, then
// static help.
func (r *Router) handleFreeText(ctx context.Context, mc models.MessageContext) []string {
	dbResult := r.automaticQuery(ctx, mc.Text)

	if dbResult == "" {
		parts, err := r.store.SearchParts(ctx, mc.Text)
		if err != nil {
			slog.Warn("Router direct part lookup failed", "error", err, "term", mc.Text)
		} else if len(parts) > 0 {
			dbResult = respond.AutoPartResult(mc.Text, parts)
		}
	}

	if dbResult == "" && looksLikeClientName(mc.Text) {
		orders, err := r.store.SearchOrdersByClient(ctx, mc.Text)
		if err != nil {
			slog.Warn("Router client order lookup failed", "error", err, "name", mc.Text)
		} else if len(orders) > 0 {
			return []string{respond.ClientOrdersMessage(mc.Text, orders)}
		}
	}

	if dbResult != "" {
		if !r.ai.Enabled() {
			return []string{respond.AIMessage(dbResult)}
		}
		prompt := fmt.Sprintf("Usuario preguntó: '%s'. Base de datos encontró: %s. Proporciona información adicional útil sobre SAP.", mc.Text, dbResult)
		extra, err := r.ai.Ask(ctx, prompt)
		if err != nil {
			slog.Warn("Router AI supplement failed", "error", err)
			return []string{respond.AIMessage(dbResult)}
		}
		return []string{respond.CombinedMessage(dbResult, extra)}
	}

	if r.ai.Enabled() {
		memCtx, err := r.memory.Search(ctx, mc.Text, memorySearchK)
		if err != nil {
			slog.Warn("Router free-text memory lookup failed", "error", err)
		}
		answer, err := r.ai.AskWithContext(ctx, mc.Text, memCtx)
		if err != nil {
			slog.Error("Router AI answer failed", "error", err)
			return []string{respond.FreeTextFallback()}
		}
		return []string{respond.AIMessage(answer)}
	}

	return []string{respond.HelpMessage()}
}

// looksLikeClientName accepts short letter-and-space text, the shape of a
// company or person name typed on its own.
func looksLikeClientName(text string) bool {
	if len(text) < 3 {
		return false
	}
	words := 0
	for _, field := range strings.Fields(text) {
		words++
		for _, r := range field {
			if !unicode.IsLetter(r) && r != '.' && r != '&' {
				return false
			}
		}
	}
	return words >= 1 && words <= 5
}

// automaticQuery resolves a structured intent against the database and
// returns the rendered result, or "" when the text carries no intent.
func (r *Router) automaticQuery(ctx context.Context, text string) string {
	in := intent.Detect(text)
	if in.Type == models.IntentNone {
		return ""
	}
	slog.Info("Router automatic query detected", "type", in.Type, "term", in.Term, "number", in.Number)

	switch in.Type {
	case models.IntentPart:
		parts, err := r.store.SearchParts(ctx, in.Term)
		if err != nil {
			slog.Error("Router automatic part query failed", "error", err, "term", in.Term)
			return respond.AutoQueryFailed(in.Term)
		}
		return respond.AutoPartResult(in.Term, parts)

	case models.IntentOrder:
		docNum, err := strconv.ParseInt(in.Number, 10, 64)
		if err != nil {
			return ""
		}
		order, err := r.store.GetOrder(ctx, docNum)
		if err != nil {
			slog.Error("Router automatic order query failed", "error", err, "docNum", docNum)
			return respond.AutoQueryFailed(in.Number)
		}
		return respond.AutoOrderResult(in.Number, order)

	case models.IntentStatus:
		parts, err := r.store.SearchPartsForStatus(ctx, in.Term)
		if err != nil {
			slog.Error("Router automatic status query failed", "error", err, "term", in.Term)
			return respond.AutoQueryFailed(in.Term)
		}
		return respond.AutoStatusResult(in.Term, parts)
	}
	return ""
}

func (r *Router) saveInteraction(ctx context.Context, mc models.MessageContext, responses []string) {
	record := models.Interaction{
		Type:      string(mc.Type) + "-whatsapp",
		Message:   mc.Text,
		Response:  strings.Join(responses, " | "),
		Context:   mc.UserID,
		Timestamp: time.Now(),
	}
	if err := r.store.AddInteraction(ctx, record); err != nil {
		slog.Warn("Router failed to save interaction", "error", err)
	}
}
