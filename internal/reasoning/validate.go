package reasoning

import (
	"regexp"
	"strconv"
	"strings"
)

// Citation is a claim the model attributed to a numbered fragment.
type Citation struct {
	DocNumber int    `json:"doc_number"` // 1-based index into the chunk list
	Text      string `json:"text"`
}

var (
	citationNumRE = regexp.MustCompile(`\[(\d+)\]`)
	// quotedCiteRE catches the explicit "..." [n] and [n] "..." forms.
	quotedCiteRE   = regexp.MustCompile(`(?:"([^"]+)"\s*\[(\d+)\])|(?:\[(\d+)\]\s*"([^"]+)")`)
	sentenceEndRE  = regexp.MustCompile(`[.?!]\s+`)
	nonWordSpaceRE = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespaceRE   = regexp.MustCompile(`\s+`)
)

// contextWindow bounds how far around a [n] marker the citation text
// is taken from.
const contextWindow = 200

// Validator checks that every citation in an answer is grounded in
// the fragment it points at.
type Validator struct {
	fuzzyThreshold float64
}

// NewValidator builds a validator; threshold 0 takes the default 0.75.
func NewValidator(threshold float64) *Validator {
	if threshold == 0 {
		threshold = 0.75
	}
	return &Validator{fuzzyThreshold: threshold}
}

// ExtractCitations pulls citations of both shapes out of an answer.
// Every [n] yields the sentence immediately before it, or after it
// when that side is longer, capped at 200 characters. Explicit quoted
// forms are added unless the same text was already collected.
func (v *Validator) ExtractCitations(answer string) []Citation {
	var citations []Citation

	for _, match := range citationNumRE.FindAllStringSubmatchIndex(answer, -1) {
		num, err := strconv.Atoi(answer[match[2]:match[3]])
		if err != nil {
			continue
		}
		start, end := match[0], match[1]

		beforeStart := start - contextWindow
		if beforeStart < 0 {
			beforeStart = 0
		}
		before := strings.TrimSpace(answer[beforeStart:start])

		afterEnd := end + contextWindow
		if afterEnd > len(answer) {
			afterEnd = len(answer)
		}
		after := strings.TrimSpace(answer[end:afterEnd])

		var text string
		if len(before) > len(after) {
			sentences := sentenceEndRE.Split(before, -1)
			text = sentences[len(sentences)-1]
		} else {
			sentences := sentenceEndRE.Split(after, -1)
			text = sentences[0]
		}
		citations = append(citations, Citation{DocNumber: num, Text: text})
	}

	for _, m := range quotedCiteRE.FindAllStringSubmatch(answer, -1) {
		var text string
		var numStr string
		if m[1] != "" {
			text, numStr = m[1], m[2]
		} else {
			text, numStr = m[4], m[3]
		}
		num, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		duplicate := false
		for _, c := range citations {
			if c.Text == text {
				duplicate = true
				break
			}
		}
		if !duplicate {
			citations = append(citations, Citation{DocNumber: num, Text: text})
		}
	}
	return citations
}

// normalizeText collapses whitespace, strips punctuation, and
// lowercases.
func normalizeText(text string) string {
	text = whitespaceRE.ReplaceAllString(text, " ")
	text = nonWordSpaceRE.ReplaceAllString(text, "")
	return strings.TrimSpace(strings.ToLower(text))
}

// Grounded reports whether citation text appears in the document: an
// exact normalized substring match, or a sliding word window whose
// similarity ratio reaches the fuzzy threshold.
func (v *Validator) Grounded(citation, document string) bool {
	citNorm := normalizeText(citation)
	docNorm := normalizeText(document)
	if strings.Contains(docNorm, citNorm) {
		return true
	}

	citLen := len(strings.Fields(citNorm))
	docWords := strings.Fields(docNorm)

	windowSize := citLen
	if windowSize < 5 {
		windowSize = 5
	}

	best := 0.0
	for i := 0; i+windowSize <= len(docWords); i++ {
		window := strings.Join(docWords[i:i+windowSize], " ")
		if score := Ratio(citNorm, window); score > best {
			best = score
		}
	}
	return best >= v.fuzzyThreshold
}

// ValidateAnswer accepts an answer only when it cites at least one
// fragment and every citation points at a valid fragment number and
// is grounded in that fragment.
func (v *Validator) ValidateAnswer(answer string, chunks []string) bool {
	citations := v.ExtractCitations(answer)
	if len(citations) == 0 {
		return false
	}
	for _, c := range citations {
		if c.DocNumber < 1 || c.DocNumber > len(chunks) {
			return false
		}
		if !v.Grounded(c.Text, chunks[c.DocNumber-1]) {
			return false
		}
	}
	return true
}
