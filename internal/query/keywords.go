package query

import (
	"strings"

	"github.com/korpuslab/zapytaj/internal/nlp"
)

// EmbedPrefix is prepended to query texts before embedding, as the
// e5 model family expects.
const EmbedPrefix = "query: "

// KeywordQuery builds the lexical query string: the OR-join of the
// query's lemmatized, non-stopword, alphabetic keywords longer than
// two characters, deduplicated in order. With a nil analysis (NLP
// pipeline down) it falls back to the raw word tokens of the query.
func KeywordQuery(q string, analysis *nlp.Analysis) string {
	var keywords []string
	seen := make(map[string]struct{})

	add := func(word string) {
		if len([]rune(word)) <= 2 {
			return
		}
		if _, ok := seen[word]; ok {
			return
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}

	if analysis != nil && len(analysis.Tokens) > 0 {
		for _, tok := range analysis.Tokens {
			if tok.IsStop || !tok.IsAlpha {
				continue
			}
			add(strings.ToLower(tok.Lemma))
		}
	} else {
		for _, tok := range Tokenize(q) {
			add(tok)
		}
	}
	return strings.Join(keywords, " OR ")
}

// EmbedQuery returns the prefixed form handed to the embedder.
func EmbedQuery(q string) string {
	return EmbedPrefix + q
}
