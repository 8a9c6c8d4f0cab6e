// Package query extracts retrieval features from user queries and
// maps them to lexical/dense fusion weights.
package query

import (
	"regexp"
	"strings"

	"github.com/korpuslab/zapytaj/internal/nlp"
)

var (
	acronymRE = regexp.MustCompile(`^[A-ZĄĆĘŁŃÓŚŻŹ]{2,}$`)
	idRE      = regexp.MustCompile(`[A-Z]{1,5}[-_]?\d+`)
	yearRE    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	// tokenRE matches Unicode word runs, the \w+ class.
	tokenRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	// wordOrPunctRE additionally yields punctuation runs, used where
	// token counts include punctuation.
	wordOrPunctRE = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)
	citationRE    = regexp.MustCompile(`\[\d+\]`)
	digitsRE      = regexp.MustCompile(`^[0-9]+$`)
)

var filterWords = map[string]struct{}{
	"autor": {}, "dokumenty": {}, "po": {}, "przed": {}, "od": {}, "dotyczące": {},
}

var abstractPhrases = []string{"czym", "co to", "jak", "dlaczego", "sens", "znaczenie"}

// Features is the analyzer's view of one query.
type Features struct {
	HasNumber  bool `json:"has_number"`
	HasYear    bool `json:"has_year"`
	HasID      bool `json:"has_id"`
	IsAcronym  bool `json:"is_acronym"`
	HasFilter  bool `json:"has_filter"`
	IsQuestion bool `json:"is_question"`
	Abstract   bool `json:"abstract"`
	TokenLen   int  `json:"token_len"`

	// Derived from named entities.
	HasNamedEntity    bool         `json:"has_named_entity"`
	HasSpecificEntity bool         `json:"has_specific_entity"`
	Entities          []nlp.Entity `json:"entities,omitempty"`
}

// Factual reports whether the query asks for a concrete fact, which
// turns on the filter's fallback cosine check.
func (f Features) Factual() bool {
	return f.IsAcronym || f.HasID || f.HasNumber || f.HasYear || f.HasFilter
}

// Analyze derives the feature record for a query. The entities come
// from an already-run NLP analysis; pass nil when the pipeline was
// unavailable. Identical inputs produce identical features.
func Analyze(q string, analysis *nlp.Analysis) Features {
	text := strings.TrimSpace(q)
	lower := strings.ToLower(text)
	tokens := tokenRE.FindAllString(lower, -1)

	f := Features{
		HasYear:    yearRE.MatchString(text),
		HasID:      idRE.MatchString(text),
		IsAcronym:  acronymRE.MatchString(text),
		IsQuestion: strings.HasSuffix(text, "?"),
		TokenLen:   len(tokens),
	}
	for _, t := range tokens {
		if digitsRE.MatchString(t) {
			f.HasNumber = true
		}
		if _, ok := filterWords[t]; ok {
			f.HasFilter = true
		}
	}
	for _, phrase := range abstractPhrases {
		if strings.Contains(lower, phrase) {
			f.Abstract = true
			break
		}
	}

	if analysis != nil {
		for _, ent := range analysis.Entities {
			f.HasNamedEntity = true
			switch ent.Label {
			case "persName", "orgName", "placeName", "geogName":
				f.HasSpecificEntity = true
			case "date":
				f.HasYear = true
			}
			f.Entities = append(f.Entities, ent)
		}
	}
	return f
}

// Tokenize splits text into Unicode word tokens, lowercased.
func Tokenize(text string) []string {
	return tokenRE.FindAllString(strings.ToLower(text), -1)
}

// TokenizeWithPunct splits text into word and punctuation tokens, the
// counting used by the filter and the context budget.
func TokenizeWithPunct(text string) []string {
	return wordOrPunctRE.FindAllString(text, -1)
}

// CountCitations counts [n] citation markers in an answer.
func CountCitations(answer string) int {
	return len(citationRE.FindAllString(answer, -1))
}
