package respond

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/avans-mx/avanbot/internal/models"
)

func decodeInteractive(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	if !strings.HasPrefix(raw, "{") {
		t.Fatalf("expected interactive JSON, got %q", raw)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("failed to decode interactive message: %v", err)
	}
	return msg
}

func buttonsOf(t *testing.T, msg map[string]interface{}) []interface{} {
	t.Helper()
	interactive := msg["interactive"].(map[string]interface{})
	action := interactive["action"].(map[string]interface{})
	return action["buttons"].([]interface{})
}

func TestMainMenu(t *testing.T) {
	msg := decodeInteractive(t, MainMenu())

	if msg["messaging_product"] != "whatsapp" {
		t.Errorf("expected messaging_product whatsapp, got %v", msg["messaging_product"])
	}
	buttons := buttonsOf(t, msg)
	if len(buttons) != 3 {
		t.Fatalf("expected 3 menu buttons, got %d", len(buttons))
	}
	for i, b := range buttons {
		reply := b.(map[string]interface{})["reply"].(map[string]interface{})
		wantID := fmt.Sprintf("menubtn%d", i+1)
		if reply["id"] != wantID {
			t.Errorf("button %d id = %v, want %s", i, reply["id"], wantID)
		}
		if utf8.RuneCountInString(reply["title"].(string)) > buttonTitleLimit {
			t.Errorf("button %d title exceeds limit: %v", i, reply["title"])
		}
	}
}

func TestYesNoButtonIDs(t *testing.T) {
	msg := decodeInteractive(t, YesNo("¿Consultar otra pieza?", "postconsulta"))
	buttons := buttonsOf(t, msg)
	if len(buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(buttons))
	}
	yes := buttons[0].(map[string]interface{})["reply"].(map[string]interface{})
	no := buttons[1].(map[string]interface{})["reply"].(map[string]interface{})
	if yes["id"] != "postconsulta_yes" || no["id"] != "postconsulta_no" {
		t.Errorf("unexpected button ids: %v / %v", yes["id"], no["id"])
	}
}

func makeParts(n int) []models.Part {
	parts := make([]models.Part, n)
	for i := range parts {
		parts[i] = models.Part{
			ID:   int64(i + 1),
			Name: fmt.Sprintf("Pieza %d", i+1),
			Code: fmt.Sprintf("PZ-%d", i+1),
		}
	}
	return parts
}

func TestPartsMessagesNotFound(t *testing.T) {
	msgs := PartsMessages("tornillo", nil)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0], "tornillo") {
		t.Errorf("not-found message must mention the term, got %q", msgs[0])
	}
}

func TestPartsMessagesSingleDetail(t *testing.T) {
	parts := []models.Part{{
		Name: "Tornillo hexagonal",
		Code: "TH-100",
		Availability: []models.Availability{
			{Warehouse: "GDL", Quantity: 40},
			{Warehouse: "MTY", Quantity: 12},
		},
	}}
	msgs := PartsMessages("tornillo", parts)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	for _, want := range []string{"TH-100", "GDL: 40 unidades", "MTY: 12 unidades"} {
		if !strings.Contains(msgs[0], want) {
			t.Errorf("detail message missing %q:\n%s", want, msgs[0])
		}
	}
}

func TestPartsMessagesSingleWithoutStock(t *testing.T) {
	msgs := PartsMessages("x", []models.Part{{Name: "Pieza", Code: "P-1"}})
	if !strings.Contains(msgs[0], "Sin stock disponible") {
		t.Errorf("expected no-stock notice, got %q", msgs[0])
	}
}

func TestPartsMessagesFewEnumerated(t *testing.T) {
	msgs := PartsMessages("pieza", makeParts(3))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	for i := 1; i <= 3; i++ {
		if !strings.Contains(msgs[0], fmt.Sprintf("%d. *Pieza %d*", i, i)) {
			t.Errorf("expected entry %d in list:\n%s", i, msgs[0])
		}
	}
}

func TestPartsMessagesManyRendersFivePlusRemainder(t *testing.T) {
	msgs := PartsMessages("pieza", makeParts(6))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0], "5. *Pieza 5*") {
		t.Error("expected fifth entry rendered")
	}
	if strings.Contains(msgs[0], "6. *Pieza 6*") {
		t.Error("sixth entry must not be rendered")
	}
	if !strings.Contains(msgs[0], "y 1 más") {
		t.Errorf("expected remainder count notice:\n%s", msgs[0])
	}
}

func TestPartSummaryTruncatesLongNames(t *testing.T) {
	long := strings.Repeat("x", 40)
	got := partSummary(models.Part{Name: long, Code: "C"}, 1)
	if !strings.Contains(got, "...") {
		t.Errorf("expected truncated name, got %q", got)
	}
	if strings.Contains(got, long) {
		t.Error("full name must not appear")
	}
}

func TestPartSummaryAccentedNameStaysValidUTF8(t *testing.T) {
	long := strings.Repeat("ñ", 40)
	got := partSummary(models.Part{Name: long, Code: "C"}, 1)
	if !utf8.ValidString(got) {
		t.Errorf("truncated summary is not valid UTF-8: %q", got)
	}
	if !strings.Contains(got, "...") {
		t.Errorf("expected truncated name, got %q", got)
	}
}

func TestMemorySavedPreviewKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("á", 120)
	got := MemorySaved(long, "Manual")
	if !utf8.ValidString(got) {
		t.Errorf("preview is not valid UTF-8: %q", got)
	}
}

func TestStatusMessages(t *testing.T) {
	one := []models.Part{{
		Name:   "Motor",
		Code:   "MT-9",
		Status: &models.StatusInfo{Stage: "En ensamble", UpdatedAt: "2025-01-15"},
	}}
	msgs := StatusMessages("motor", one)
	if !strings.Contains(msgs[0], "En ensamble") || !strings.Contains(msgs[0], "2025-01-15") {
		t.Errorf("status detail missing fields:\n%s", msgs[0])
	}

	many := StatusMessages("motor", makeParts(3))
	if !strings.Contains(many[0], "Especifica más") {
		t.Errorf("expected narrow-down prompt for multiple matches, got %q", many[0])
	}

	none := StatusMessages("motor", nil)
	if !strings.Contains(none[0], "motor") {
		t.Errorf("not-found message must mention the term, got %q", none[0])
	}
}

func TestOrderMessage(t *testing.T) {
	got := OrderMessage(models.Order{
		DocNum:          4521,
		CardName:        "Aceros del Norte",
		PaidToDate:      "80%",
		InvoicedToDate:  "100%",
		DeliveredToDate: "50%",
	})
	for _, want := range []string{"Aceros del Norte", "80%", "100%", "50%"} {
		if !strings.Contains(got, want) {
			t.Errorf("order message missing %q:\n%s", want, got)
		}
	}
}

func TestPlainMessagesAreNotJSON(t *testing.T) {
	for name, msg := range map[string]string{
		"farewell": FarewellMessage(),
		"error":    ErrorMessage(),
		"help":     HelpMessage(),
		"timeout":  TimeoutMessage(),
	} {
		if strings.HasPrefix(msg, "{") {
			t.Errorf("%s message must be plain text, got %q", name, msg)
		}
	}
}

func TestAIMessageHeader(t *testing.T) {
	got := AIMessage("respuesta")
	if !strings.Contains(got, "Asistente AVANS") {
		t.Errorf("expected brand header, got %q", got)
	}
}

func TestCombinedMessage(t *testing.T) {
	got := CombinedMessage("datos de BD", "nota de IA")
	if !strings.Contains(got, "datos de BD") || !strings.Contains(got, "nota de IA") {
		t.Errorf("combined message missing parts:\n%s", got)
	}
}

func TestAutoPartResult(t *testing.T) {
	if got := AutoPartResult("zz", nil); !strings.Contains(got, "No encontré ninguna pieza con 'zz'") {
		t.Errorf("empty result wrong: %q", got)
	}

	single := AutoPartResult("tornillo", []models.Part{{
		Name:         "Tornillo M8",
		Code:         "TOR-M8",
		Availability: []models.Availability{{Warehouse: "A", Quantity: 3}},
	}})
	if !strings.Contains(single, "Tornillo M8") || !strings.Contains(single, "3 unidades") {
		t.Errorf("single result wrong:\n%s", single)
	}

	parts := make([]models.Part, 7)
	for i := range parts {
		parts[i] = models.Part{Name: "Pieza", Code: "P"}
	}
	many := AutoPartResult("pieza", parts)
	if !strings.Contains(many, "Encontré 7 piezas") || !strings.Contains(many, "y 2 más") {
		t.Errorf("many result wrong:\n%s", many)
	}
	if strings.Count(many, "\n1.") != 1 || strings.Contains(many, "6.") {
		t.Errorf("list should stop at 5 entries:\n%s", many)
	}
}

func TestAutoOrderResult(t *testing.T) {
	if got := AutoOrderResult("99", nil); !strings.Contains(got, "No encontré la orden número 99") {
		t.Errorf("missing order wrong: %q", got)
	}

	got := AutoOrderResult("4521", &models.Order{
		CardName:        "ACME",
		PaidToDate:      "80%",
		InvoicedToDate:  "100%",
		DeliveredToDate: "60%",
	})
	for _, want := range []string{"Orden #4521 - ACME", "80%", "100%", "60%"} {
		if !strings.Contains(got, want) {
			t.Errorf("order result missing %q:\n%s", want, got)
		}
	}
}

func TestAutoStatusResult(t *testing.T) {
	if got := AutoStatusResult("zz", nil); !strings.Contains(got, "No encontré ninguna pieza 'zz'") {
		t.Errorf("empty status wrong: %q", got)
	}

	withStatus := AutoStatusResult("motor", []models.Part{{
		Name:   "Motor X1",
		Code:   "MOT-X1",
		Status: &models.StatusInfo{Stage: "Pintura", UpdatedAt: "2026-08-01"},
	}})
	if !strings.Contains(withStatus, "Pintura") || !strings.Contains(withStatus, "2026-08-01") {
		t.Errorf("status result wrong:\n%s", withStatus)
	}

	noStatus := AutoStatusResult("motor", []models.Part{{Name: "Motor X1", Code: "MOT-X1"}})
	if !strings.Contains(noStatus, "Sin información de estatus") {
		t.Errorf("missing-status result wrong:\n%s", noStatus)
	}

	many := AutoStatusResult("m", []models.Part{{Name: "A"}, {Name: "B"}})
	if !strings.Contains(many, "Especifica más") {
		t.Errorf("ambiguous result wrong:\n%s", many)
	}
}

func TestClientOrdersMessage(t *testing.T) {
	orders := []models.Order{
		{DocNum: 100, CardName: "Aceros del Norte", DeliveredToDate: "50%"},
		{DocNum: 101, CardName: "Aceros del Norte", DeliveredToDate: "0%"},
	}
	got := ClientOrdersMessage("aceros", orders)
	for _, want := range []string{"'aceros'", "Orden #100", "Orden #101", "50%"} {
		if !strings.Contains(got, want) {
			t.Errorf("client orders missing %q:\n%s", want, got)
		}
	}

	many := make([]models.Order, 8)
	for i := range many {
		many[i] = models.Order{DocNum: int64(i + 1), CardName: "C"}
	}
	truncated := ClientOrdersMessage("c", many)
	if !strings.Contains(truncated, "y 3 más") {
		t.Errorf("expected truncation notice:\n%s", truncated)
	}
}
