package retriever

import (
	"fmt"
	"strings"

	"github.com/jwvanderstam/wherespace/internal/retrieval"
)

// defaultMaxPromptTokens matches §4.8.
const defaultMaxPromptTokens = 2000

// ragInstructions is the fixed envelope requiring the model to answer only
// from the supplied context, cite sources with a bracketed index, and
// admit when it does not know.
const ragInstructions = `Answer the question using only the context blocks below. Cite every claim with the bracketed index of the block it came from, like [1]. If the context does not contain the answer, say "I don't know" rather than guessing.`

// directInstructions is used when retrieval is bypassed entirely.
const directInstructions = `Answer the question to the best of your ability.`

// estimateTokens approximates token count as len(text)/4, the same rough
// heuristic the spec allows rather than running a real tokenizer (§4.8).
func estimateTokens(text string) int {
	return len(text) / 4
}

// previewFallbackChars is the fallback-block preview length from §4.8: a
// block that doesn't fit tries its content_preview truncated to 100 chars
// followed by an ellipsis, not the preview verbatim.
const previewFallbackChars = 100

func truncatePreview(preview string) string {
	runes := []rune(preview)
	if len(runes) <= previewFallbackChars {
		return preview
	}
	return string(runes[:previewFallbackChars])
}

// BuildPrompt assembles a RAG prompt from hits and query, fitting within
// maxPromptTokens (0 selects the default). Hits are numbered in the order
// given, matching the citation indices callers should already have applied
// during re-ranking. The instruction envelope and the query count against
// the budget. A hit whose full content would overflow the remaining budget
// is represented by its truncated preview plus an ellipsis; a hit whose
// preview block does not fit either is left out of the prompt.
func BuildPrompt(query string, hits []retrieval.Hit, maxPromptTokens int) string {
	if maxPromptTokens <= 0 {
		maxPromptTokens = defaultMaxPromptTokens
	}

	var b strings.Builder
	b.WriteString(ragInstructions)
	b.WriteString("\n\n")

	budget := maxPromptTokens - estimateTokens(ragInstructions) - estimateTokens(query)

	for i, h := range hits {
		block := fmt.Sprintf("[%d] From %s:\n%s", i+1, h.FileName, h.Content)
		if estimateTokens(block) > budget {
			preview := truncatePreview(h.ContentPreview)
			block = fmt.Sprintf("[%d] From %s:\n%s…", i+1, h.FileName, preview)
			if estimateTokens(block) > budget {
				continue
			}
		}
		b.WriteString(block)
		b.WriteString("\n\n")
		budget -= estimateTokens(block)
	}

	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// BuildDirectPrompt assembles a minimal, non-RAG prompt that bypasses
// retrieval entirely (§4.8 direct mode).
func BuildDirectPrompt(query string) string {
	return directInstructions + "\n\nQuestion: " + query
}
