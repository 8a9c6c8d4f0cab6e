// Package reasoning holds the LLM-facing pipeline stages: prompt
// assembly, query decomposition, ambiguity clarification, and
// citation validation.
package reasoning

import (
	"fmt"
	"strings"
)

// PromptCores are the instruction prefixes tried in priority order
// under the modify_prompt retry strategy.
var PromptCores = []string{
	`Twoim zadaniem jest odpowiedzieć na pytanie WYŁĄCZNIE na podstawie fragmentów poniżej.

Zasady:
- Nie używaj wiedzy spoza fragmentów.
- Napisz odpowiedź i poprzyj ją cytatem w formie [numer_fragmentu] "cytat z fragmentu".
- Cały zwrócony tekst powinien mieć formę: ODPOWIEDź, [numer_fragmentu] "cytat z fragmentu
- Jeżeli nie wypiszesz żadnej odpowiedzi, zwróć dokładnie: "BRAK ODPOWIEDZI".
- Jeśli zwrócisz jakąkolwiek odpowiedź, albo cytat to NIE PISZ "BRAK ODPOWIEDZI".
`,
	`Twoim zadaniem jest odpowiedzieć na pytanie WYŁĄCZNIE na podstawie fragmentów poniżej.

Zasady:
- Nie używaj wiedzy spoza fragmentów.
- Każde zdanie odpowiedzi musi być poparte cytatem w formacie [numer_fragmentu] "cytat z fragmentu".
- Jeśli fragmenty nie zawierają odpowiedzi na pytanie, napisz dokładnie: "BRAK INFORMACJI".
`,
	"Jesteś asystentem, który odpowiada na pytania wyłącznie na podstawie dostarczonych fragmentów.",
}

// AnswerTemperature is the sampling temperature for answer calls.
const AnswerTemperature = 0.6

// BuildPrompt assembles the numbered fragments and the question into
// a single user message under the given core.
func BuildPrompt(chunks []string, core, question string) string {
	var context strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			context.WriteString("\n\n")
		}
		fmt.Fprintf(&context, "[%d] %s", i+1, chunk)
	}
	return fmt.Sprintf("%s\nFragmenty:\n%s\n\nPytanie:\n%s", core, context.String(), question)
}
