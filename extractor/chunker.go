package extractor

import (
	"regexp"
	"strings"
)

// DefaultChunkSize is the extraction chunk budget in characters.
const DefaultChunkSize = 3000

var paragraphBoundary = regexp.MustCompile(`\n{2,}`)

// sentence terminators recognized when an oversized paragraph has to be
// subdivided.
const sentenceTerminators = ".!?。！？"

// ChunkText partitions text into extraction chunks of at most chunkSize
// characters, preserving document order. Paragraphs are the unit of
// chunking; a paragraph over budget is split at sentence boundaries
// (terminator followed by whitespace) and packed back up to the budget, and
// a single sentence over budget is sliced hard.
func ChunkText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var chunks []string
	for _, paragraph := range paragraphBoundary.Split(text, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if len([]rune(paragraph)) <= chunkSize {
			chunks = append(chunks, paragraph)
			continue
		}
		chunks = append(chunks, packSentences(splitSentences(paragraph), chunkSize)...)
	}

	return chunks
}

// splitSentences splits after any sentence terminator that is followed by
// whitespace. The terminator stays with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes)-1; i++ {
		if strings.ContainsRune(sentenceTerminators, runes[i]) && isSpace(runes[i+1]) {
			sentence := strings.TrimSpace(string(runes[start : i+1]))
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = i + 1
		}
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}

// packSentences merges consecutive sentences into chunks of at most
// chunkSize characters. Sentences over budget on their own are sliced hard.
func packSentences(sentences []string, chunkSize int) []string {
	var chunks []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, string(current))
			current = nil
		}
	}

	for _, sentence := range sentences {
		runes := []rune(sentence)

		if len(runes) > chunkSize {
			flush()
			for start := 0; start < len(runes); start += chunkSize {
				end := start + chunkSize
				if end > len(runes) {
					end = len(runes)
				}
				chunks = append(chunks, string(runes[start:end]))
			}
			continue
		}

		if len(current) > 0 && len(current)+1+len(runes) > chunkSize {
			flush()
		}
		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, runes...)
	}
	flush()

	return chunks
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
