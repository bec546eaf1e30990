package usecase

import (
	"fmt"
	"strings"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

const systemPrompt = "You are a document QA assistant. You must answer strictly using the provided CONTEXT. " +
	"Do not use any irrelevant external knowledge. If relevant matches are not found in the context, infer based on related sections or similar terms. " +
	"If the answer cannot be found in the provided context, " +
	"respond with \"I couldn't find relevant information in the provided documents.\""

// notFoundAnswer is the normal "nothing relevant" outcome. It must never be
// reused for error reporting.
const notFoundAnswer = "I couldn't find relevant information in the provided documents."

func sectionNotFoundAnswer(token string) string {
	return fmt.Sprintf("Section %s was not found in the indexed documents.", token)
}

// buildPromptMessages assembles the grounding prompt: fixed system
// instruction, bounded history oldest to newest, then the user message with
// the labeled context blocks and the question.
func buildPromptMessages(history []domain.ChatMessage, outcome domain.RetrievalOutcome, question string) []domain.PromptMessage {
	messages := make([]domain.PromptMessage, 0, len(history)+2)
	messages = append(messages, domain.PromptMessage{Role: domain.RoleSystem, Content: systemPrompt})
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		messages = append(messages, domain.PromptMessage{Role: msg.Role, Content: content})
	}
	messages = append(messages, domain.PromptMessage{
		Role:    domain.RoleUser,
		Content: buildUserMessage(question, buildContext(outcome)),
	})
	return messages
}

func buildUserMessage(question, context string) string {
	return fmt.Sprintf("Question: %s\n\nContext:\n%s\n\n"+
		"Please provide a comprehensive answer based only on the context above. "+
		"Include citations using the bracketed numbers [1], [2], etc.", question, context)
}

// buildContext renders the retrieved chunks as numbered blocks. When
// retrieval produced nothing usable the context says so explicitly, which
// steers generation toward the fixed not-found answer instead of
// fabrication.
func buildContext(outcome domain.RetrievalOutcome) string {
	if len(outcome.Results) == 0 {
		if outcome.SectionNotFound {
			return fmt.Sprintf("No matching content was found for section %s in the indexed documents. "+
				"Tell the user that section %s was not found.", outcome.SectionToken, outcome.SectionToken)
		}
		return "No matching content was found in the indexed documents."
	}

	blocks := make([]string, 0, len(outcome.Results))
	for i, result := range outcome.Results {
		docID := result.DocID
		if docID == "" {
			docID = "Unknown Document"
		}
		blocks = append(blocks, fmt.Sprintf("[%d] Document: %s%s\n%s",
			i+1, docID, pageInfo(result.PageFrom, result.PageTo), result.Text))
	}
	return strings.Join(blocks, "\n\n")
}

func pageInfo(from, to *int) string {
	switch {
	case from != nil && to != nil && *from == *to:
		return fmt.Sprintf(" (Page %d)", *from)
	case from != nil && to != nil:
		return fmt.Sprintf(" (Page %d-%d)", *from, *to)
	case from != nil:
		return fmt.Sprintf(" (Page %d)", *from)
	default:
		return ""
	}
}

// toCitations records exactly the chunks that were supplied to the model.
func toCitations(results []domain.RerankedResult) []domain.Citation {
	citations := make([]domain.Citation, 0, len(results))
	for _, result := range results {
		citations = append(citations, domain.Citation{
			ChunkID:   result.ChunkID,
			DocID:     result.DocID,
			SectionID: result.SectionID,
			PageFrom:  result.PageFrom,
			PageTo:    result.PageTo,
			Score:     result.FusedScore,
			Snippet:   result.Snippet,
		})
	}
	return citations
}

// fallbackAnswer builds the degraded-mode answer surface from the raw top
// results when generation fails or produces unusable text.
func fallbackAnswer(outcome domain.RetrievalOutcome) string {
	if len(outcome.Results) == 0 {
		if outcome.SectionNotFound {
			return sectionNotFoundAnswer(outcome.SectionToken)
		}
		return notFoundAnswer
	}

	var b strings.Builder
	b.WriteString("I couldn't generate a complete answer right now. The most relevant passages found:\n")
	for i, result := range outcome.Results {
		snippet := result.Snippet
		if snippet == "" {
			snippet = truncateRunes(result.Text, 200)
		}
		fmt.Fprintf(&b, "\n[%d] %s%s: %s", i+1, result.DocID, pageInfo(result.PageFrom, result.PageTo), snippet)
	}
	return b.String()
}

var refusalPrefixes = []string{
	"i'm sorry, but i can't",
	"i am sorry, but i can't",
	"i cannot help with",
	"i can't assist with",
	"as an ai language model",
	"as an ai assistant, i cannot",
}

// answerPassesQualityCheck rejects empty output, refusal boilerplate, and
// runaway generations. The fixed not-found answer passes: finding nothing is
// a normal outcome, not a generation failure.
func answerPassesQualityCheck(answer string, maxChars int) bool {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return false
	}
	if maxChars > 0 && len(trimmed) > maxChars {
		return false
	}
	lowered := strings.ToLower(trimmed)
	for _, prefix := range refusalPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return false
		}
	}
	return true
}
