package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/llm"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/query"
)

// Chat is the slice of the LLM client the reasoning stages need.
type Chat interface {
	Chat(ctx context.Context, purpose, prompt string, opts llm.Options) (string, error)
}

const decomposePromptFmt = `Jesteś ekspertem od analizy zapytań. Twoim zadaniem jest rozłożyć pytanie na komponenty.

Pytanie: %s

Zasady:
1. Jeśli pytanie jest proste i konkretne (np. "Co zawiera dokument X?", "Czy inflacja rośnie?"), zwróć je jako main_question bez sub_questions.
2. Jeśli pytanie jest złożone (np. "Jak poprawić pracę zespołową?"), rozbij je na 2-3 podzapytania.
3. Format odpowiedzi (JSON):
{
  "main_question": "...",
  "sub_questions": ["...", "..."]
}

NIE dodawaj komentarzy. Zwróć TYLKO JSON.`

var codeFenceRE = regexp.MustCompile("```json\\s*|\\s*```")

// Decomposer splits compound questions into sub-questions. The
// sub-questions only seed extra retrieval; they never replace the
// main question.
type Decomposer struct {
	chat Chat
	log  *zap.Logger
}

// NewDecomposer builds a decomposer on the given chat handle.
func NewDecomposer(chat Chat, logger *zap.Logger) *Decomposer {
	return &Decomposer{chat: chat, log: logger}
}

// Decompose returns the decomposition for q. Acronym, ID, and filter
// queries skip the model call; any model or parse failure falls back
// to the undecomposed query.
func (d *Decomposer) Decompose(ctx context.Context, q string, feats query.Features) models.Decomposition {
	plain := models.Decomposition{Main: q}
	if feats.IsAcronym || feats.HasID || feats.HasFilter {
		return plain
	}

	content, err := d.chat.Chat(ctx, "decompose", fmt.Sprintf(decomposePromptFmt, q), llm.Options{Temperature: 0.2})
	if err != nil {
		d.log.Warn("Decomposition call failed, keeping query whole", zap.Error(err))
		return plain
	}

	content = strings.TrimSpace(codeFenceRE.ReplaceAllString(content, ""))

	var parsed models.Decomposition
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		d.log.Warn("Decomposition output unparseable, keeping query whole", zap.Error(err))
		return plain
	}
	if parsed.Main == "" {
		parsed.Main = q
	}
	return parsed
}
