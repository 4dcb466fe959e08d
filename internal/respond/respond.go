// Package respond builds the user-facing messages sent over WhatsApp.
//
// Every builder is a pure function returning either plain text or, for
// interactive button messages, a JSON document in the Cloud API shape. The
// delivery layer distinguishes the two by the leading '{'.
package respond

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/avans-mx/avanbot/internal/models"
	"github.com/avans-mx/avanbot/internal/util"
)

// BrandName appears in footers and assistant headers.
const BrandName = "AVANS"

const (
	// buttonTitleLimit is the WhatsApp cap on reply button titles.
	buttonTitleLimit = 20
	// maxMenuButtons is the WhatsApp cap on reply buttons per message.
	maxMenuButtons = 3
	// partNameLimit truncates long part names in list summaries.
	partNameLimit = 30
	// maxListedParts bounds how many parts a list message renders.
	maxListedParts = 5
)

// Interactive message payload in the Cloud API shape.

type replyButton struct {
	Type  string      `json:"type"`
	Reply buttonReply `json:"reply"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type interactiveBody struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Buttons []replyButton `json:"buttons"`
}

type interactivePayload struct {
	Type   string            `json:"type"`
	Body   interactiveBody   `json:"body"`
	Footer interactiveBody   `json:"footer"`
	Action interactiveAction `json:"action"`
}

type interactiveMessage struct {
	MessagingProduct string             `json:"messaging_product"`
	RecipientType    string             `json:"recipient_type"`
	Type             string             `json:"type"`
	Interactive      interactivePayload `json:"interactive"`
}

func buildInteractive(body string, buttons []replyButton) string {
	msg := interactiveMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		Type:             "interactive",
		Interactive: interactivePayload{
			Type:   "button",
			Body:   interactiveBody{Text: body},
			Footer: interactiveBody{Text: "Equipo " + BrandName},
			Action: interactiveAction{Buttons: buttons},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		// Static structs cannot fail to marshal; fall back to plain text.
		return body
	}
	return string(data)
}

func clampTitle(s string) string {
	return util.TruncateRunes(s, buttonTitleLimit)
}

// MainMenu builds the greeting menu with the three flow buttons.
func MainMenu() string {
	options := []string{"consulta", "estatus", "ordenes"}
	buttons := make([]replyButton, 0, maxMenuButtons)
	for i, option := range options {
		buttons = append(buttons, replyButton{
			Type:  "reply",
			Reply: buttonReply{ID: fmt.Sprintf("menubtn%d", i+1), Title: clampTitle(option)},
		})
	}
	return buildInteractive("Hola, ¿en qué puedo ayudarte?", buttons)
}

// YesNo builds a yes/no question whose button IDs carry the flow context,
// e.g. "postconsulta_yes".
func YesNo(question, context string) string {
	return buildInteractive(question, []replyButton{
		{Type: "reply", Reply: buttonReply{ID: context + "_yes", Title: "Sí"}},
		{Type: "reply", Reply: buttonReply{ID: context + "_no", Title: "No"}},
	})
}

// PartsMessages renders a part search result. The shape depends on the
// cardinality: not-found text, full detail, an enumerated list, or the first
// five plus a remainder notice.
func PartsMessages(term string, parts []models.Part) []string {
	switch {
	case len(parts) == 0:
		return []string{fmt.Sprintf("⚠️ No encontré ninguna pieza con '%s' en el sistema.", term)}
	case len(parts) == 1:
		return []string{singlePart(parts[0])}
	case len(parts) <= maxListedParts:
		var b strings.Builder
		b.WriteString("🔍 *Piezas encontradas:*\n\n")
		for i, p := range parts {
			b.WriteString(partSummary(p, i+1))
			b.WriteString("\n\n")
		}
		return []string{strings.TrimSpace(b.String())}
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "🔍 Encontré %d piezas relacionadas con '%s'. Aquí están las primeras %d:\n\n", len(parts), term, maxListedParts)
		for i, p := range parts[:maxListedParts] {
			b.WriteString(partSummary(p, i+1))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\n... y %d más.\n\n", len(parts)-maxListedParts)
		b.WriteString("💡 *Sugerencia:* Especifica más detalles para resultados más precisos.")
		return []string{b.String()}
	}
}

func singlePart(p models.Part) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *%s*\n🔢 *Código:* `%s`\n", p.Name, p.Code)
	if len(p.Availability) > 0 {
		b.WriteString("\nℹ️ *Disponibilidad:*\n")
		for _, a := range p.Availability {
			fmt.Fprintf(&b, "• %s: %d unidades\n", a.Warehouse, a.Quantity)
		}
	} else {
		b.WriteString("\n⚠️ Sin stock disponible\n")
	}
	return strings.TrimSpace(b.String())
}

func partSummary(p models.Part, index int) string {
	name := p.Name
	if utf8.RuneCountInString(name) > partNameLimit {
		name = util.TruncateRunes(name, partNameLimit-3) + "..."
	}
	return fmt.Sprintf("%d. *%s* (`%s`)", index, name, p.Code)
}

// StatusMessages renders a status lookup result. A single match shows the
// stage; several matches ask the user to narrow down.
func StatusMessages(term string, parts []models.Part) []string {
	switch {
	case len(parts) == 0:
		return []string{fmt.Sprintf("⚠️ No encontré ninguna pieza '%s' para consultar estatus.", term)}
	case len(parts) == 1:
		p := parts[0]
		var b strings.Builder
		fmt.Fprintf(&b, "📦 *%s*\n🔢 *Código:* `%s`\n", p.Name, p.Code)
		if p.Status != nil {
			fmt.Fprintf(&b, "📊 *Estatus:* %s\n🕐 *Actualizado:* %s", p.Status.Stage, p.Status.UpdatedAt)
		} else {
			b.WriteString("⚠️ Sin información de estatus")
		}
		return []string{b.String()}
	default:
		return []string{fmt.Sprintf("🔍 Encontré %d piezas con '%s'. Especifica más para ver el estatus.", len(parts), term)}
	}
}

// OrderMessage renders one order with its rollup percentages.
func OrderMessage(o models.Order) string {
	var b strings.Builder
	b.WriteString("📄 *Información de Orden*\n\n")
	fmt.Fprintf(&b, "👤 *Cliente:* %s\n", o.CardName)
	fmt.Fprintf(&b, "💰 *Pagado:* %s\n", o.PaidToDate)
	fmt.Fprintf(&b, "🧾 *Facturado:* %s\n", o.InvoicedToDate)
	fmt.Fprintf(&b, "🚚 *Entregado:* %s", o.DeliveredToDate)
	return b.String()
}

// OrderNotFound answers an order lookup that matched nothing.
func OrderNotFound() string {
	return "⚠️ No se encontró una orden con ese número."
}

// InvalidOrderNumber rejects non-numeric order input.
func InvalidOrderNumber() string {
	return "⚠️ El número de orden debe ser numérico. Intenta nuevamente."
}

// Flow prompts.

// PartSearchPrompt asks for a part name or code.
func PartSearchPrompt() string {
	return "🔍 Escribe el nombre o código de la pieza que deseas consultar."
}

// StatusSearchPrompt asks for a part to check status on.
func StatusSearchPrompt() string {
	return "🛠️ Escribe el nombre o código de la pieza para consultar su estatus."
}

// OrderNumberPrompt asks for an order number.
func OrderNumberPrompt() string {
	return "📦 Escribe el número de orden que deseas consultar."
}

// FarewellMessage closes a flow after a "no".
func FarewellMessage() string {
	return "✅ Perfecto. Escribe *hola* si necesitas algo más. ¡Gracias por usar " + BrandName + "!"
}

// ErrorMessage is the generic apology for any routing failure.
func ErrorMessage() string {
	return "❌ Ocurrió un error procesando tu consulta. Escribe *hola* para volver al menú principal."
}

// TimeoutMessage notifies an expired session.
func TimeoutMessage() string {
	return "ℹ️ Tu sesión ha expirado por inactividad. Escribe *hola* para comenzar de nuevo."
}

// HelpMessage lists the available commands.
func HelpMessage() string {
	var b strings.Builder
	b.WriteString("ℹ️ *Comandos disponibles:*\n\n")
	b.WriteString("🔍 *consulta* - Buscar piezas por nombre o código\n")
	b.WriteString("🛠️ *estatus* - Consultar estatus de piezas\n")
	b.WriteString("📄 *ordenes* - Consultar información de órdenes\n")
	b.WriteString("🧠 *memoria: [texto]* - Guardar conocimiento\n\n")
	b.WriteString("💡 También puedes hacer preguntas libres sobre SAP y " + BrandName + ".\n\n")
	b.WriteString("Escribe *hola* para volver al menú principal.")
	return b.String()
}

// AIMessage frames an AI answer with the assistant header.
func AIMessage(response string) string {
	return fmt.Sprintf("🤖 *Asistente %s:*\n\n%s", BrandName, response)
}

// CombinedMessage frames a database result supplemented by an AI note.
func CombinedMessage(dbResult, aiExtra string) string {
	return fmt.Sprintf("🤖 *Asistente %s:*\n\n%s\n\n💡 *Información adicional:*\n%s", BrandName, dbResult, aiExtra)
}

// PartNotFoundWithMemory answers a failed part search that the vector memory
// could still say something about.
func PartNotFoundWithMemory(memoryContext string) string {
	return fmt.Sprintf("⚠️ No encontré esa pieza en la base de datos.\n\n🧠 *Info relacionada:*\n%s", memoryContext)
}

// PartSearchMiss answers a failed part search with nothing in memory either.
func PartSearchMiss() string {
	return "⚠️ No se encontraron piezas con ese nombre o código."
}

// StatusSearchMiss answers a failed status lookup.
func StatusSearchMiss() string {
	return "⚠️ No se encontró esa pieza para consultar estatus."
}

// MemorySaved confirms a stored knowledge snippet.
func MemorySaved(text, source string) string {
	preview := util.TruncateRunes(text, 100)
	return fmt.Sprintf("🧠 Conocimiento guardado:\n*%s...*\n📁 Fuente: %s", preview, source)
}

// MemorySaveFailed reports a failed memory command.
func MemorySaveFailed() string {
	return "⚠️ No se pudo guardar el conocimiento."
}

// ImageReceived acknowledges an image when no analysis backend is available.
func ImageReceived() string {
	return "📷 Imagen recibida. Describe el contenido por texto para ayudarte mejor."
}

// ImageAnalysis frames an AI image analysis.
func ImageAnalysis(analysis string) string {
	return fmt.Sprintf("🖼️ *Análisis de imagen:*\n%s", analysis)
}

// ImageAnalysisFailed reports a failed image analysis.
func ImageAnalysisFailed() string {
	return "⚠️ No se pudo procesar la imagen."
}

// FreeTextFallback is the last resort for free text when everything else
// failed.
func FreeTextFallback() string {
	return "🤖 Error procesando consulta. Escribe 'hola' para ver el menú."
}

// AutoPartResult renders a dispatcher-detected part lookup as one string,
// suitable for combining with an AI supplement.
func AutoPartResult(term string, parts []models.Part) string {
	switch {
	case len(parts) == 0:
		return fmt.Sprintf("❌ No encontré ninguna pieza con '%s' en el sistema.", term)
	case len(parts) == 1:
		return singlePart(parts[0])
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "🔍 Encontré %d piezas relacionadas con '%s':\n\n", len(parts), term)
		for i, p := range parts {
			if i == maxListedParts {
				break
			}
			fmt.Fprintf(&b, "%d. *%s* (`%s`)\n", i+1, p.Name, p.Code)
		}
		if len(parts) > maxListedParts {
			fmt.Fprintf(&b, "\n... y %d más.", len(parts)-maxListedParts)
		}
		return strings.TrimSpace(b.String())
	}
}

// AutoOrderResult renders a dispatcher-detected order lookup.
func AutoOrderResult(number string, order *models.Order) string {
	if order == nil {
		return fmt.Sprintf("❌ No encontré la orden número %s en el sistema.", number)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📄 *Orden #%s - %s*\n", number, order.CardName)
	fmt.Fprintf(&b, "💰 Pagado: *%s*\n", order.PaidToDate)
	fmt.Fprintf(&b, "🧾 Facturado: *%s*\n", order.InvoicedToDate)
	fmt.Fprintf(&b, "🚚 Entregado: *%s*", order.DeliveredToDate)
	return b.String()
}

// AutoStatusResult renders a dispatcher-detected status lookup.
func AutoStatusResult(term string, parts []models.Part) string {
	switch {
	case len(parts) == 0:
		return fmt.Sprintf("❌ No encontré ninguna pieza '%s' para consultar estatus.", term)
	case len(parts) == 1:
		p := parts[0]
		var b strings.Builder
		fmt.Fprintf(&b, "📦 *%s*\n🔢 Código: `%s`", p.Name, p.Code)
		if p.Status != nil {
			fmt.Fprintf(&b, "\n📄 Estatus: *%s*\n🕓 Actualizado: %s", p.Status.Stage, p.Status.UpdatedAt)
		} else {
			b.WriteString("\n⚠️ Sin información de estatus")
		}
		return b.String()
	default:
		return fmt.Sprintf("🔍 Encontré %d piezas con '%s'. Especifica más para ver el estatus.", len(parts), term)
	}
}

// AutoQueryFailed reports a dispatcher lookup that failed at the database.
func AutoQueryFailed(term string) string {
	return fmt.Sprintf("⚠️ Error consultando '%s'. Intenta con el menú principal.", term)
}

// ClientOrdersMessage lists the orders found under a customer name.
func ClientOrdersMessage(name string, orders []models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Órdenes encontradas para '%s':\n", name)
	for i, o := range orders {
		if i == maxListedParts {
			fmt.Fprintf(&b, "\n... y %d más.", len(orders)-maxListedParts)
			break
		}
		fmt.Fprintf(&b, "\n📄 *Orden #%d* - %s (🚚 %s entregado)", o.DocNum, o.CardName, o.DeliveredToDate)
	}
	return b.String()
}
