package reasoning

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/config"
	"github.com/korpuslab/zapytaj/internal/llm"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/query"
)

// signal is one detected ambiguity: the triggering term and its
// competing senses.
type signal struct {
	kind  string // entity, abstract, scope
	term  string
	sense string
}

const clarifyPromptFmt = `Zapytanie użytkownika jest niejednoznaczne.
TWOJE ZADANIE:
Napisz 2-3 interpretacje W FORMIE ZDAŃ TWIERDZĄCYCH (nie pytań!).
Każda interpretacja powinna zaczynać się od "pytanie dotyczy" lub podobnego sformułowania.

PRZYKŁADY:

Zapytanie: "Co mówi PAN o kryzysie?"
Interpretacje:
pytanie dotyczy Polskiej Akademii Nauk (instytucja)
pytanie dotyczy wypowiedzi konkretnej osoby (pan jako osoba)

Zapytanie: "Jaki ma sens odpowiedzialność?"
Interpretacje:
pytanie dotyczy odpowiedzialności w kontekście moralnym
pytanie dotyczy odpowiedzialności w kontekście praktycznym (biznes, zarządzanie)
pytanie dotyczy odpowiedzialności w kontekście egzystencjalnym (filozofia życia)

ZAPYTANIE: "%s"%s

Napisz tylko interpretacje w formie zdań twierdzących, każda w nowej linii.`

var lineNumberingRE = regexp.MustCompile(`^[\d\-\*\.]+\s*`)

// maxInterpretations caps how many readings one query can get.
const maxInterpretations = 3

// Clarifier detects ambiguous queries and proposes interpretations
// the orchestrator can append one at a time.
type Clarifier struct {
	chat    Chat
	lexicon *config.LexiconStore
	log     *zap.Logger
}

// NewClarifier builds a clarifier over the lexicon table.
func NewClarifier(chat Chat, lexicon *config.LexiconStore, logger *zap.Logger) *Clarifier {
	return &Clarifier{chat: chat, lexicon: lexicon, log: logger}
}

// Clarify runs the two-stage detector and, when the query is
// ambiguous, gathers 2-3 interpretations from the model with a
// heuristic fallback.
func (c *Clarifier) Clarify(ctx context.Context, q string) models.Clarification {
	signals := c.detect(q)
	if len(signals) == 0 {
		return models.Clarification{}
	}

	interpretations := c.fromModel(ctx, q, signals)
	if len(interpretations) == 0 {
		interpretations = synthesize(signals)
	}
	for len(interpretations) < 2 {
		interpretations = append(interpretations, models.Interpretation{
			Label:         fmt.Sprintf("Interpretacja %d", len(interpretations)+1),
			Clarification: "pytanie wymaga doprecyzowania kontekstu",
		})
	}
	if len(interpretations) > maxInterpretations {
		interpretations = interpretations[:maxInterpretations]
	}

	return models.Clarification{NeedsClarification: true, Interpretations: interpretations}
}

// detect returns the ambiguity signals for q, empty when the query is
// specific. Stage 1 excludes queries whose surface features already
// pin them down; stage 2 scans the lexicon.
func (c *Clarifier) detect(q string) []signal {
	f := query.Analyze(q, nil)
	if f.HasID ||
		f.IsAcronym ||
		(f.HasYear && f.TokenLen <= 8) ||
		(f.HasNumber && f.TokenLen <= 6) {
		return nil
	}

	lex := c.lexicon.Current()
	lower := strings.ToLower(q)

	var signals []signal

	qualified := containsAny(lower, lex.QualifierWords)
	for _, entry := range lex.AmbiguousEntities {
		if strings.Contains(lower, entry.Term) && !qualified {
			signals = append(signals, signal{kind: "entity", term: entry.Term, sense: entry.Sense})
		}
	}

	hasContext := containsAny(lower, lex.ContextPhrases)
	for _, entry := range lex.AbstractConcepts {
		if strings.Contains(lower, entry.Term) && !hasContext {
			signals = append(signals, signal{kind: "abstract", term: entry.Term, sense: entry.Sense})
		}
	}

	if containsAny(lower, lex.HowToPhrases) && !containsAny(lower, lex.ScopeMarkers) {
		signals = append(signals, signal{kind: "scope", term: "brak zakresu", sense: "nie określono kontekstu/zakresu"})
	}

	return signals
}

// fromModel asks the LLM for interpretations, one per line. A failed
// call or unusable output returns nil so the caller can synthesize.
func (c *Clarifier) fromModel(ctx context.Context, q string, signals []signal) []models.Interpretation {
	signalDesc := ""
	if len(signals) > 0 {
		signalDesc = fmt.Sprintf("\n\nWykryto niejednoznaczność w terminie '%s': %s",
			signals[0].term, signals[0].sense)
	}
	prompt := fmt.Sprintf(clarifyPromptFmt, q, signalDesc)

	content, err := c.chat.Chat(ctx, "clarify", prompt, llm.Options{Temperature: 0.3, TopP: 0.9})
	if err != nil {
		c.log.Warn("Clarification call failed, synthesizing from signals", zap.Error(err))
		return nil
	}

	var interpretations []models.Interpretation
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = lineNumberingRE.ReplaceAllString(line, "")
		if len([]rune(line)) <= 10 || strings.HasPrefix(line, "Interpretacje") {
			continue
		}
		interpretations = append(interpretations, models.Interpretation{
			Label:         fmt.Sprintf("Interpretacja %d", len(interpretations)+1),
			Clarification: line,
		})
	}
	if len(interpretations) < 2 {
		return nil
	}
	return interpretations
}

// synthesize builds interpretations straight from the detected
// signals when the model yields nothing usable.
func synthesize(signals []signal) []models.Interpretation {
	var out []models.Interpretation
	add := func(clarification string) {
		if len(out) >= maxInterpretations {
			return
		}
		out = append(out, models.Interpretation{
			Label:         fmt.Sprintf("Interpretacja %d", len(out)+1),
			Clarification: clarification,
		})
	}

	limit := len(signals)
	if limit > maxInterpretations {
		limit = maxInterpretations
	}
	for _, sig := range signals[:limit] {
		switch sig.kind {
		case "entity":
			parts := strings.Split(sig.sense, " vs ")
			if len(parts) == 2 {
				add("pytanie dotyczy " + strings.TrimSpace(parts[0]))
				add("pytanie dotyczy " + strings.TrimSpace(parts[1]))
			} else {
				add("pytanie dotyczy " + sig.term)
			}
		case "abstract":
			clean := strings.TrimSpace(strings.ReplaceAll(sig.sense, "?", ""))
			if strings.Contains(clean, "/") {
				variants := strings.Split(clean, "/")
				if len(variants) > 2 {
					variants = variants[:2]
				}
				for _, variant := range variants {
					add(fmt.Sprintf("pytanie dotyczy %s - %s", sig.term, strings.TrimSpace(variant)))
				}
			} else {
				add("pytanie dotyczy " + clean)
			}
		default:
			add("pytanie dotyczy " + strings.TrimSpace(strings.ReplaceAll(sig.sense, "?", "")))
		}
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
