package chunk

import (
	"strings"

	"github.com/tessera-ai/tessera/internal/judge"
)

// Split divides text using the named strategy. Unknown strategies fall back
// to recursive splitting, mirroring how the chunking judge coerces them.
func Split(strategy, text string, chunkSize, chunkOverlap int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	switch strategy {
	case judge.StrategyToken:
		chunks = tokenSplit(text, chunkSize)
	case judge.StrategyMarkdown:
		chunks = markdownSplit(text, chunkSize)
	default:
		chunks = recursiveSplit(text, chunkSize)
	}
	return applyOverlap(chunks, chunkOverlap)
}

// recursiveSplit packs paragraphs under the target size, splitting oversized
// paragraphs on sentence boundaries and, as a last resort, hard character
// windows.
func recursiveSplit(text string, chunkSize int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if len(p) > chunkSize {
			flush()
			chunks = append(chunks, sentenceSplit(p, chunkSize)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return chunks
}

// sentenceSplit packs sentences under the target size, hard-splitting any
// single sentence that exceeds it.
func sentenceSplit(text string, chunkSize int) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(text) {
		if len(sentence) > chunkSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, hardSplit(sentence, chunkSize)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(sentence)+1 > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences breaks text on sentence-ending punctuation followed by
// whitespace. Crude, but only consulted when a paragraph overflows.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && (text[i+1] == ' ' || text[i+1] == '\n') {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// tokenSplit divides text into fixed character windows on whitespace
// boundaries where possible.
func tokenSplit(text string, chunkSize int) []string {
	var chunks []string
	for len(text) > chunkSize {
		cut := chunkSize
		// Prefer breaking at whitespace near the window edge.
		if idx := strings.LastIndexAny(text[:chunkSize], " \n\t"); idx > chunkSize/2 {
			cut = idx + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if strings.TrimSpace(text) != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// markdownSplit divides text at header lines, then size-limits each section
// with recursive splitting.
func markdownSplit(text string, chunkSize int) []string {
	var sections []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}

	var chunks []string
	for _, section := range sections {
		if strings.TrimSpace(section) == "" {
			continue
		}
		if len(section) > chunkSize {
			chunks = append(chunks, recursiveSplit(section, chunkSize)...)
		} else {
			chunks = append(chunks, section)
		}
	}
	return chunks
}

// hardSplit cuts text into exact chunkSize windows with no boundary search.
func hardSplit(text string, chunkSize int) []string {
	var chunks []string
	for len(text) > chunkSize {
		chunks = append(chunks, text[:chunkSize])
		text = text[chunkSize:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
