package chunking

import "strings"

// ByWindow slides a fixed window of maxTokens whitespace tokens over
// the text with a step of maxTokens-overlap. It ignores sentence
// boundaries and is not used on the retrieval path.
func ByWindow(text string, maxTokens, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return []string{strings.Join(words, " ")}
	}
	step := maxTokens - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + maxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
