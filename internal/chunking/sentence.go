// Package chunking splits document text into overlapping chunks. The
// sentence-based splitter is the retrieval path; the token-window
// variant exists for comparison in tests.
package chunking

import "strings"

// BySentences packs sentences into chunks of at most maxTokens
// whitespace-split words. When a chunk fills up, the next one is
// seeded with the tail sentences whose cumulative word count first
// reaches overlap, so sentence boundaries are preserved.
func BySentences(sentences []string, maxTokens, overlap int) []string {
	var chunks []string
	var current []string
	currentLen := 0

	for _, raw := range sentences {
		sent := strings.TrimSpace(raw)
		if sent == "" {
			continue
		}
		sentLen := len(strings.Fields(sent))

		if currentLen+sentLen > maxTokens && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			if overlap > 0 {
				var tail []string
				tailLen := 0
				for i := len(current) - 1; i >= 0; i-- {
					tailLen += len(strings.Fields(current[i]))
					tail = append([]string{current[i]}, tail...)
					if tailLen >= overlap {
						break
					}
				}
				current = tail
				currentLen = tailLen
			} else {
				current = nil
				currentLen = 0
			}
		}

		current = append(current, sent)
		currentLen += sentLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
