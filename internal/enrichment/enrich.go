// Package enrichment extracts named entities, places, and years from
// text, combining regexes, NER, and an LLM pass for unusual date
// forms.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/llm"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/nlp"
)

// strictDateREs are the date shapes recognized without any model
// involvement: ISO-ish Y-M-D and D-M-Y forms, "w 2023", year ranges.
var strictDateREs = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{4}\.\d{2}\.\d{2}\b`),
	regexp.MustCompile(`\b\d{4}/\d{2}/\d{2}\b`),
	regexp.MustCompile(`\b\d{2}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`),
	regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`),
	regexp.MustCompile(`\bw \d{4}\b`),
	regexp.MustCompile(`(?:o|O)d \d{4} do \d{4}\b`),
	regexp.MustCompile(`\d{4}-\d{4}`),
}

var fourDigitRE = regexp.MustCompile(`\b\d{4}\b`)

// dateLayouts are tried in order when parsing a date string to a year.
var dateLayouts = []string{
	"2006-01-02", "2006.01.02", "2006/01/02",
	"02-01-2006", "02.01.2006", "02/01/2006",
}

// datesSchema is the JSON schema the LLM must fill for the date pass.
var datesSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "dates": {"type": "array", "items": {"type": "string"}},
    "years": {"type": "array", "items": {"type": "string"}},
    "ranges": {"type": "array", "items": {"type": "string"}},
    "other": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["dates", "years", "ranges", "other"]
}`)

const datesPromptFmt = `
Wyodrębnij z poniższego tekstu tylko nietypowe daty i zakresy, których nie wykryły standardowe metody.
Oto daty już znalezione: %s

TEKST:
%s

Zwróć wynik w formacie JSON:
{
  "dates": [],
  "years": [],
  "ranges": [],
  "other": []
}
`

type datesPayload struct {
	Dates  []string `json:"dates"`
	Years  []string `json:"years"`
	Ranges []string `json:"ranges"`
	Other  []string `json:"other"`
}

// NLP is the slice of the pipeline client the enricher needs.
type NLP interface {
	Analyze(ctx context.Context, text string) (*nlp.Analysis, error)
}

// Chat is the slice of the LLM client the enricher needs.
type Chat interface {
	Chat(ctx context.Context, purpose, prompt string, opts llm.Options) (string, error)
}

// Enricher derives metadata hints from queries and documents.
type Enricher struct {
	nlp  NLP
	chat Chat
	log  *zap.Logger
}

// New builds an enricher.
func New(nlpClient NLP, chat Chat, logger *zap.Logger) *Enricher {
	return &Enricher{nlp: nlpClient, chat: chat, log: logger}
}

// FromQuery extracts metadata hints from text: persName/orgName NER
// entities, placeName/geogName places, and the years named by the
// hybrid date extraction. Degraded collaborators narrow the result
// instead of failing it.
func (e *Enricher) FromQuery(ctx context.Context, text string) models.Metadata {
	analysis, err := e.nlp.Analyze(ctx, text)
	if err != nil {
		e.log.Warn("NER unavailable for metadata extraction", zap.Error(err))
		analysis = &nlp.Analysis{}
	}

	entitySet := make(map[string]struct{})
	placeSet := make(map[string]struct{})
	for _, ent := range analysis.Entities {
		switch ent.Label {
		case "persName", "orgName":
			entitySet[ent.Text] = struct{}{}
		case "placeName", "geogName":
			placeSet[ent.Text] = struct{}{}
		}
	}

	yearSet := make(map[int]struct{})
	for _, d := range e.hybridDates(ctx, text, analysis) {
		for _, y := range yearsOf(d) {
			yearSet[y] = struct{}{}
		}
	}

	meta := models.Metadata{
		Entities: sortedKeys(entitySet),
		Places:   sortedKeys(placeSet),
		Years:    sortedInts(yearSet),
	}
	return meta
}

// hybridDates unions the strict regex hits, the NER date entities,
// and an LLM pass fed the already-known dates, then keeps only
// strings carrying a four-digit year.
func (e *Enricher) hybridDates(ctx context.Context, text string, analysis *nlp.Analysis) []string {
	var known []string
	for _, re := range strictDateREs {
		known = append(known, re.FindAllString(text, -1)...)
	}
	for _, ent := range analysis.Entities {
		if ent.Label == "date" {
			known = append(known, ent.Text)
		}
	}

	prompt := fmt.Sprintf(datesPromptFmt, strings.Join(known, ", "), text)
	content, err := e.chat.Chat(ctx, "dates", prompt, llm.Options{Format: datesSchema})
	if err != nil {
		e.log.Warn("LLM date pass failed, keeping regex and NER dates", zap.Error(err))
	} else {
		var payload datesPayload
		if err := json.Unmarshal([]byte(content), &payload); err != nil {
			e.log.Warn("LLM date output unparseable", zap.Error(err))
		} else {
			known = append(known, payload.Dates...)
			known = append(known, payload.Years...)
			known = append(known, payload.Ranges...)
			known = append(known, payload.Other...)
		}
	}

	seen := make(map[string]struct{}, len(known))
	var cleaned []string
	for _, d := range known {
		if !fourDigitRE.MatchString(d) {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		cleaned = append(cleaned, d)
	}
	return cleaned
}

// yearsOf parses a date string to its year(s): known layouts first,
// then every four-digit group.
func yearsOf(d string) []int {
	trimmed := strings.TrimSpace(d)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return []int{t.Year()}
		}
	}
	var years []int
	for _, m := range fourDigitRE.FindAllString(d, -1) {
		if y, err := strconv.Atoi(m); err == nil {
			years = append(years, y)
		}
	}
	return years
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
