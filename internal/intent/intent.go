// Package intent classifies free-form Spanish text into structured lookup
// intents.
//
// Detection runs three ordered families of patterns against the lowercased
// text: part lookups, then order lookups, then status lookups. The first
// pattern that matches, in family order then listed order, wins. Detection is
// pure and performs no I/O.
package intent

import (
	"regexp"
	"strings"

	"github.com/avans-mx/avanbot/internal/models"
)

// word matches a search token, including accented letters.
const word = `[\p{L}\d_]+`

// de matches the optional Spanish connective between a trigger and its token.
const de = `(?:de(?:l|\s+la)?\s+)?`

var partPatterns = compile([]string{
	`(?:pieza|parte|componente|item|artículo)\s+(` + word + `)`,
	`código\s+(` + word + `)`,
	`disponibilidad\s+` + de + `(` + word + `)`,
	`stock\s+` + de + `(` + word + `)`,
	`inventario\s+` + de + `(` + word + `)`,
	`cuánt[oa]s?\s+(?:tenemos|hay)\s+` + de + `(` + word + `)`,
	`buscar\s+(` + word + `)`,
	`(` + word + `)\s+disponible`,
	`tenemos\s+(` + word + `)`,
	`hay\s+(` + word + `)`,
	`mostrar\s+(` + word + `)`,
	`información\s+` + de + `(` + word + `)`,
})

var orderPatterns = compile([]string{
	`orden\s+(\d+)`,
	`pedido\s+(\d+)`,
	`número\s+(\d+)`,
	`estado\s+(?:de\s+)?(?:orden\s+)?(\d+)`,
	`facturación\s+(\d+)`,
	`entrega\s+(\d+)`,
	`consultar\s+(\d+)`,
	`ver\s+orden\s+(\d+)`,
})

var statusPatterns = compile([]string{
	`estatus\s+` + de + `(` + word + `)`,
	`estado\s+` + de + `(` + word + `)`,
	`situación\s+` + de + `(` + word + `)`,
	`cómo\s+está\s+(?:el\s+|la\s+)?(` + word + `)`,
	`actualización\s+` + de + `(` + word + `)`,
	`proceso\s+` + de + `(` + word + `)`,
})

func compile(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Detect classifies text into a lookup intent. Families are checked in the
// fixed order part, order, status; the first matching pattern determines the
// result. Text that matches nothing yields IntentNone.
func Detect(text string) models.Intent {
	lower := strings.ToLower(text)

	for _, re := range partPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			return models.Intent{Type: models.IntentPart, Term: m[1]}
		}
	}
	for _, re := range orderPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			return models.Intent{Type: models.IntentOrder, Number: m[1]}
		}
	}
	for _, re := range statusPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			return models.Intent{Type: models.IntentStatus, Term: m[1]}
		}
	}
	return models.Intent{Type: models.IntentNone}
}
