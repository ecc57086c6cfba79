package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// PromptLanguage selects the prompt templates and canned replies.
type PromptLanguage string

const (
	PromptEnglish PromptLanguage = "en"
	PromptSwedish PromptLanguage = "sv"
)

type promptTemplate struct {
	system           string
	ungroundedSystem string
	user             string
	noContext        string
}

var prompts = map[PromptLanguage]promptTemplate{
	PromptEnglish: {
		system: "You are an assistant that answers questions about the user's documents. " +
			"Answer only from the context passages below. If they do not contain the answer, say that you do not know. " +
			"Refer to passages by their [Source: ...] tag.",
		ungroundedSystem: "You are an assistant. No relevant documents were found for this question, " +
			"so answer from general knowledge and say clearly that the answer is not based on the user's documents.",
		user:      "Context:\n%s\n\nQuestion: %s",
		noContext: "No relevant context was found in the indexed documents for this question.",
	},
	PromptSwedish: {
		system: "Du är en assistent som svarar på frågor om användarens dokument. " +
			"Svara endast baserat på följande information. Om svaret inte finns där, säg att du inte vet. " +
			"Hänvisa till avsnitt med deras [Source: ...]-märkning.",
		ungroundedSystem: "Du är en assistent. Inga relevanta dokument hittades för frågan, " +
			"så svara utifrån allmän kunskap och säg tydligt att svaret inte bygger på användarens dokument.",
		user:      "Information:\n%s\n\nFråga: %s",
		noContext: "Ingen relevant information hittades i de indexerade dokumenten för den här frågan.",
	},
}

func templateFor(lang PromptLanguage) promptTemplate {
	if t, ok := prompts[lang]; ok {
		return t
	}
	return prompts[PromptEnglish]
}

// formatPassage tags a passage with its source document.
func formatPassage(r domain.RetrievalResult) string {
	return fmt.Sprintf("[Source: %s]\n%s", r.Chunk.DocumentID, r.Chunk.Text)
}

const passageSeparator = "\n\n"

// assembleContext concatenates passages in rank order up to maxChars. The
// lowest-ranked passages are dropped first; the top passage is always kept
// whole even when it alone exceeds the limit.
func assembleContext(results []domain.RetrievalResult, maxChars int) (string, []domain.RetrievalResult) {
	var (
		b    strings.Builder
		used []domain.RetrievalResult
	)
	for _, r := range results {
		block := formatPassage(r)
		size := len(block)
		if len(used) > 0 {
			size += len(passageSeparator)
		}
		if len(used) > 0 && maxChars > 0 && b.Len()+size > maxChars {
			break
		}
		if len(used) > 0 {
			b.WriteString(passageSeparator)
		}
		b.WriteString(block)
		used = append(used, r)
	}
	return b.String(), used
}

// citations lists distinct document ids in the order their passages were used.
func citations(used []domain.RetrievalResult) []string {
	seen := make(map[string]bool, len(used))
	out := make([]string, 0, len(used))
	for _, r := range used {
		if seen[r.Chunk.DocumentID] {
			continue
		}
		seen[r.Chunk.DocumentID] = true
		out = append(out, r.Chunk.DocumentID)
	}
	return out
}
