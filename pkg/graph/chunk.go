package graph

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// splitByTokens splits text into chunks of at most maxTokens tokens,
// preferring paragraph boundaries so a chunk does not cut a sentence in
// half. Paragraphs longer than maxTokens are split on the token grid.
func splitByTokens(text string, maxTokens int) ([]string, error) {
	if maxTokens <= 0 || strings.TrimSpace(text) == "" {
		return []string{text}, nil
	}

	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return nil, err
	}

	if len(enc.Encode(text, nil, nil)) <= maxTokens {
		return []string{text}, nil
	}

	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, p := range paragraphs {
		pTokens := len(enc.Encode(p, nil, nil))

		if pTokens > maxTokens {
			flush()
			ids := enc.Encode(p, nil, nil)
			for start := 0; start < len(ids); start += maxTokens {
				end := min(start+maxTokens, len(ids))
				chunks = append(chunks, enc.Decode(ids[start:end]))
			}
			continue
		}

		if currentTokens+pTokens > maxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		currentTokens += pTokens
	}
	flush()

	if len(chunks) == 0 {
		chunks = []string{text}
	}
	return chunks, nil
}
