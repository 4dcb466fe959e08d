package router

import (
	"context"
	"crypto/sha256"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/avans-mx/avanbot/internal/inventory"
	"github.com/avans-mx/avanbot/internal/messaging"
	"github.com/avans-mx/avanbot/internal/models"
	"github.com/avans-mx/avanbot/internal/rag"
	"github.com/avans-mx/avanbot/internal/ratelimit"
	"github.com/avans-mx/avanbot/internal/session"
)

// testEmbedding derives a deterministic normalized vector from the text so
// memory tests run without a real embedding backend.
func testEmbedding(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, len(sum))
	var norm float64
	for i, b := range sum {
		v := float64(b) - 127.5
		vec[i] = float32(v)
		norm += v * v
	}
	scale := float32(1.0)
	if norm > 0 {
		scale = float32(1.0 / math.Sqrt(norm))
	}
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

const testUser = "524771234567"

type fixture struct {
	router   *Router
	mock     *messaging.MockService
	store    *inventory.InMemoryStore
	sessions *session.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mock := messaging.NewMockService()
	store := inventory.NewInMemoryStore()
	sessions := session.NewStore()

	base := []Option{
		WithSessions(sessions),
		WithGuard(ratelimit.NewGuard(ratelimit.WithCooldown(0))),
		WithDelivery(messaging.NewCoordinator(mock, messaging.WithPacing(time.Millisecond))),
	}
	r, err := NewRouter(mock, store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	return &fixture{router: r, mock: mock, store: store, sessions: sessions}
}

func (f *fixture) send(text string) {
	f.sendTyped(text, models.MessageTypeText)
}

func (f *fixture) sendTyped(text string, msgType models.MessageType) {
	f.router.HandleMessage(context.Background(), models.MessageContext{
		Text:        text,
		UserID:      testUser,
		MessageID:   "wamid." + text,
		DisplayName: "Ana",
		Type:        msgType,
	})
}

func (f *fixture) lastBody(t *testing.T) string {
	t.Helper()
	if len(f.mock.Sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.mock.Sent[len(f.mock.Sent)-1].Body
}

func (f *fixture) reset() {
	f.mock.Sent = nil
}

func seedPart(store *inventory.InMemoryStore, name, code string, warehouse string, qty int) {
	store.AddPart(models.Part{
		Name:         name,
		Code:         code,
		Availability: []models.Availability{{Warehouse: warehouse, Quantity: qty}},
	})
}

func TestGreetingShowsMainMenu(t *testing.T) {
	f := newFixture(t)

	for _, greeting := range []string{"hola", "ayuda", "empezar", "menu"} {
		f.reset()
		f.send(greeting)

		if len(f.mock.Sent) != 1 {
			t.Fatalf("%q: expected 1 message, got %d", greeting, len(f.mock.Sent))
		}
		if !f.mock.Sent[0].Interactive {
			t.Errorf("%q: main menu should be interactive", greeting)
		}
		if !strings.Contains(f.mock.Sent[0].Body, "menubtn1") {
			t.Errorf("%q: menu missing buttons: %s", greeting, f.mock.Sent[0].Body)
		}
	}
}

func TestPartConsultationFlow(t *testing.T) {
	f := newFixture(t)
	seedPart(f.store, "Tornillo M8", "TOR-M8", "Almacén A", 120)

	f.send("consulta")
	if state, _ := f.sessions.Get(testUser); state != models.StateAwaitingPartSearch {
		t.Fatalf("expected awaiting_part_search, got %s", state)
	}
	if !strings.Contains(f.lastBody(t), "nombre o código") {
		t.Errorf("unexpected part prompt: %s", f.lastBody(t))
	}

	f.reset()
	f.send("tornillo")
	if state, _ := f.sessions.Get(testUser); state != models.StatePostConsultation {
		t.Fatalf("expected post_consultation, got %s", state)
	}
	bodies := f.mock.SentBodies()
	if len(bodies) != 2 {
		t.Fatalf("expected part detail plus yes/no, got %d messages", len(bodies))
	}
	if !strings.Contains(bodies[0], "Tornillo M8") || !strings.Contains(bodies[0], "120 unidades") {
		t.Errorf("part detail missing availability: %s", bodies[0])
	}
	if !f.mock.Sent[1].Interactive || !strings.Contains(bodies[1], "postconsulta_yes") {
		t.Errorf("expected yes/no question, got: %s", bodies[1])
	}

	f.reset()
	f.send("no")
	if _, ok := f.sessions.Get(testUser); ok {
		t.Error("session should be cleared after no")
	}
	if !strings.Contains(f.lastBody(t), "Gracias") {
		t.Errorf("expected farewell, got: %s", f.lastBody(t))
	}
}

func TestPartSearchMissKeepsState(t *testing.T) {
	f := newFixture(t)

	f.send("consulta")
	f.reset()
	f.send("inexistente")

	if !strings.Contains(f.lastBody(t), "No se encontraron piezas") {
		t.Errorf("expected miss message, got: %s", f.lastBody(t))
	}
	if state, _ := f.sessions.Get(testUser); state != models.StateAwaitingPartSearch {
		t.Errorf("state should stay awaiting_part_search, got %s", state)
	}
}

func TestStatusFlow(t *testing.T) {
	f := newFixture(t)
	f.store.AddPart(models.Part{
		Name:   "Motor X1",
		Code:   "MOT-X1",
		Status: &models.StatusInfo{Stage: "Ensamble", UpdatedAt: "2026-08-01"},
	})

	f.send("estatus")
	if state, _ := f.sessions.Get(testUser); state != models.StateAwaitingStatusSearch {
		t.Fatalf("expected awaiting_status_search, got %s", state)
	}

	f.reset()
	f.send("motor")
	bodies := f.mock.SentBodies()
	if !strings.Contains(bodies[0], "Ensamble") {
		t.Errorf("status detail missing stage: %s", bodies[0])
	}
	if !strings.Contains(bodies[1], "poststatus_yes") {
		t.Errorf("expected poststatus yes/no, got: %s", bodies[1])
	}
	if state, _ := f.sessions.Get(testUser); state != models.StatePostStatus {
		t.Errorf("expected post_status, got %s", state)
	}
}

func TestOrderFlow(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrder(models.Order{
		DocNum:          4521,
		CardName:        "ACME SA",
		PaidToDate:      "80%",
		InvoicedToDate:  "100%",
		DeliveredToDate: "60%",
	})

	f.send("ordenes")
	if state, _ := f.sessions.Get(testUser); state != models.StateAwaitingOrderNumber {
		t.Fatalf("expected awaiting_order_number, got %s", state)
	}

	f.reset()
	f.send("4521")
	bodies := f.mock.SentBodies()
	if !strings.Contains(bodies[0], "ACME SA") || !strings.Contains(bodies[0], "80%") {
		t.Errorf("order detail wrong: %s", bodies[0])
	}
	if state, _ := f.sessions.Get(testUser); state != models.StatePostOrder {
		t.Errorf("expected post_order, got %s", state)
	}

	// sí restarts the order flow
	f.reset()
	f.send("sí")
	if state, _ := f.sessions.Get(testUser); state != models.StateAwaitingOrderNumber {
		t.Errorf("sí should restart order flow, got %s", state)
	}
}

func TestOrderNumberValidation(t *testing.T) {
	f := newFixture(t)

	f.send("ordenes")
	f.reset()
	f.send("orden abc")

	if !strings.Contains(f.lastBody(t), "numérico") {
		t.Errorf("expected numeric validation message, got: %s", f.lastBody(t))
	}
	if state, _ := f.sessions.Get(testUser); state != models.StateAwaitingOrderNumber {
		t.Errorf("state should stay awaiting_order_number, got %s", state)
	}
}

func TestOrderNotFound(t *testing.T) {
	f := newFixture(t)

	f.send("ordenes")
	f.reset()
	f.send("9999")

	if !strings.Contains(f.lastBody(t), "No se encontró una orden") {
		t.Errorf("expected not-found message, got: %s", f.lastBody(t))
	}
}

func TestPostActionUnrecognizedFallsBackToMenu(t *testing.T) {
	f := newFixture(t)
	seedPart(f.store, "Tornillo M8", "TOR-M8", "Almacén A", 120)

	f.send("consulta")
	f.send("tornillo")
	f.reset()
	f.send("qué más tienes")

	if !strings.Contains(f.lastBody(t), "menubtn1") {
		t.Errorf("expected main menu, got: %s", f.lastBody(t))
	}
	if _, ok := f.sessions.Get(testUser); ok {
		t.Error("session should be cleared")
	}
}

func TestBareYesNoWithoutContextShowsMenu(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"sí", "si", "no"} {
		f.reset()
		f.send(text)
		if !strings.Contains(f.lastBody(t), "menubtn1") {
			t.Errorf("%q without pending question should show menu", text)
		}
	}
}

func TestFreeTextAutomaticQuery(t *testing.T) {
	f := newFixture(t)
	seedPart(f.store, "Filtro de aceite", "abc123", "Almacén B", 4)

	f.send("código abc123")

	body := f.lastBody(t)
	if !strings.Contains(body, "Filtro de aceite") {
		t.Errorf("expected database result in answer, got: %s", body)
	}
	if !strings.Contains(body, "Asistente AVANS") {
		t.Errorf("expected assistant header, got: %s", body)
	}
}

func TestFreeTextDirectPartLookup(t *testing.T) {
	f := newFixture(t)
	seedPart(f.store, "Tornillo M8", "TOR-M8", "Almacén A", 120)

	f.send("tornillo")

	body := f.lastBody(t)
	if !strings.Contains(body, "Tornillo M8") {
		t.Errorf("expected direct part match in answer, got: %s", body)
	}
}

func TestFreeTextNoIntentNoAI(t *testing.T) {
	f := newFixture(t)

	f.send("me gustan los gatos")

	if !strings.Contains(f.lastBody(t), "Comandos disponibles") {
		t.Errorf("expected help message, got: %s", f.lastBody(t))
	}
}

func TestFreeTextClientNameFindsOrders(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrder(models.Order{DocNum: 100, CardName: "Aceros del Norte", DeliveredToDate: "50%"})
	f.store.AddOrder(models.Order{DocNum: 101, CardName: "Aceros del Norte", DeliveredToDate: "0%"})

	f.send("aceros del norte")

	body := f.lastBody(t)
	if !strings.Contains(body, "Orden #100") || !strings.Contains(body, "Orden #101") {
		t.Errorf("expected client orders listed, got: %s", body)
	}
}

func TestImageWithoutAI(t *testing.T) {
	f := newFixture(t)

	f.sendTyped("imagen", models.MessageTypeImage)

	if !strings.Contains(f.lastBody(t), "Imagen recibida") {
		t.Errorf("expected image acknowledgement, got: %s", f.lastBody(t))
	}
}

type fakeMediaFetcher struct {
	calls int
}

func (f *fakeMediaFetcher) FetchMedia(_ context.Context, _ string) ([]byte, string, error) {
	f.calls++
	return []byte{0x01}, "image/jpeg", nil
}

func TestImageWithoutAISkipsDownload(t *testing.T) {
	fetcher := &fakeMediaFetcher{}
	f := newFixture(t, WithMedia(fetcher))

	f.router.HandleMessage(context.Background(), models.MessageContext{
		Text:    "imagen",
		UserID:  testUser,
		MediaID: "media-1",
		Type:    models.MessageTypeImage,
	})

	if !strings.Contains(f.lastBody(t), "Imagen recibida") {
		t.Errorf("expected image acknowledgement, got: %s", f.lastBody(t))
	}
	if fetcher.calls != 0 {
		t.Errorf("media must not be downloaded when AI is disabled, got %d fetches", fetcher.calls)
	}
}

func TestMemoryCommand(t *testing.T) {
	mem, err := rag.NewMemory(rag.WithEmbedding(testEmbedding))
	if err != nil {
		t.Fatalf("failed to create memory: %v", err)
	}
	f := newFixture(t, WithMemory(mem))

	f.send("agregar: el filtro fz99 se pide a proveedor externo | Manual interno")

	if !strings.Contains(f.lastBody(t), "Conocimiento guardado") {
		t.Errorf("expected save confirmation, got: %s", f.lastBody(t))
	}
	if !strings.Contains(f.lastBody(t), "Manual interno") {
		t.Errorf("expected source in confirmation, got: %s", f.lastBody(t))
	}
	if mem.Count() != 1 {
		t.Errorf("expected 1 snippet stored, got %d", mem.Count())
	}
}

func TestMemoryCommandDefaultSource(t *testing.T) {
	mem, err := rag.NewMemory(rag.WithEmbedding(testEmbedding))
	if err != nil {
		t.Fatalf("failed to create memory: %v", err)
	}
	f := newFixture(t, WithMemory(mem))

	f.send("memoria: dato sin fuente")

	if !strings.Contains(f.lastBody(t), "WhatsApp (Ana)") {
		t.Errorf("expected display-name source, got: %s", f.lastBody(t))
	}
}

func TestMemoryCommandWithoutMemoryFails(t *testing.T) {
	f := newFixture(t)

	f.send("memoria: algo")

	if !strings.Contains(f.lastBody(t), "No se pudo guardar") {
		t.Errorf("expected failure message, got: %s", f.lastBody(t))
	}
}

func TestPartSearchMemoryFallback(t *testing.T) {
	mem, err := rag.NewMemory(rag.WithEmbedding(testEmbedding))
	if err != nil {
		t.Fatalf("failed to create memory: %v", err)
	}
	if err := mem.Save(context.Background(), "la pieza zx9 fue descontinuada en 2024", "Manual"); err != nil {
		t.Fatalf("failed to seed memory: %v", err)
	}
	f := newFixture(t, WithMemory(mem))

	f.send("consulta")
	f.reset()
	f.send("zx9")

	if !strings.Contains(f.lastBody(t), "Info relacionada") {
		t.Errorf("expected memory fallback, got: %s", f.lastBody(t))
	}
	if !strings.Contains(f.lastBody(t), "descontinuada") {
		t.Errorf("expected snippet content, got: %s", f.lastBody(t))
	}
}

func TestCooldownSuppressesRepeat(t *testing.T) {
	mock := messaging.NewMockService()
	store := inventory.NewInMemoryStore()
	r, err := NewRouter(mock, store,
		WithDelivery(messaging.NewCoordinator(mock, messaging.WithPacing(time.Millisecond))))
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}

	mc := models.MessageContext{Text: "hola", UserID: testUser, Type: models.MessageTypeText}
	r.HandleMessage(context.Background(), mc)
	first := len(mock.Sent)
	r.HandleMessage(context.Background(), mc)

	if first != 1 {
		t.Fatalf("expected 1 message from first send, got %d", first)
	}
	if len(mock.Sent) != 1 {
		t.Errorf("repeat within cooldown should be suppressed, got %d messages", len(mock.Sent))
	}
}

func TestInFlightMessageDropped(t *testing.T) {
	f := newFixture(t)

	// Simulate a message already being processed for this user.
	guard := ratelimit.NewGuard(ratelimit.WithCooldown(0))
	guard.MarkProcessing(testUser)
	r, err := NewRouter(f.mock, f.store,
		WithGuard(guard),
		WithDelivery(messaging.NewCoordinator(f.mock, messaging.WithPacing(time.Millisecond))))
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}

	r.HandleMessage(context.Background(), models.MessageContext{Text: "hola", UserID: testUser, Type: models.MessageTypeText})

	if len(f.mock.Sent) != 0 {
		t.Errorf("in-flight user should be dropped, got %d messages", len(f.mock.Sent))
	}
}

func TestRetryAfterInFlightDropIsAnswered(t *testing.T) {
	mock := messaging.NewMockService()
	store := inventory.NewInMemoryStore()
	guard := ratelimit.NewGuard()
	guard.MarkProcessing(testUser)
	r, err := NewRouter(mock, store,
		WithGuard(guard),
		WithDelivery(messaging.NewCoordinator(mock, messaging.WithPacing(time.Millisecond))))
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}

	mc := models.MessageContext{Text: "hola", UserID: testUser, Type: models.MessageTypeText}
	r.HandleMessage(context.Background(), mc)
	if len(mock.Sent) != 0 {
		t.Fatalf("in-flight user should be dropped, got %d messages", len(mock.Sent))
	}

	// Once the first event finishes, a retry of the same text must go
	// through: the dropped message must not have armed a cooldown.
	guard.UnmarkProcessing(testUser)
	r.HandleMessage(context.Background(), mc)

	if len(mock.Sent) != 1 {
		t.Errorf("retry after in-flight drop should be answered, got %d messages", len(mock.Sent))
	}
}

func TestMarkReadAndInteractionRecorded(t *testing.T) {
	f := newFixture(t)

	f.send("hola")

	if len(f.mock.ReadIDs) != 1 || f.mock.ReadIDs[0] != "wamid.hola" {
		t.Errorf("expected message marked read, got %v", f.mock.ReadIDs)
	}

	recorded, err := f.store.RecentInteractions(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read interactions: %v", err)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected 1 interaction, got %d", len(recorded))
	}
	if recorded[0].Type != "text-whatsapp" {
		t.Errorf("expected type text-whatsapp, got %s", recorded[0].Type)
	}
	if recorded[0].Context != testUser {
		t.Errorf("expected user context, got %s", recorded[0].Context)
	}
}

func TestUnknownStateResets(t *testing.T) {
	f := newFixture(t)
	f.sessions.Set(testUser, models.SessionState("legacy_state"), nil)

	f.send("cualquier cosa")

	if !strings.Contains(f.lastBody(t), "menubtn1") {
		t.Errorf("unknown state should reset to menu, got: %s", f.lastBody(t))
	}
	if _, ok := f.sessions.Get(testUser); ok {
		t.Error("session should be cleared after unknown state")
	}
}
