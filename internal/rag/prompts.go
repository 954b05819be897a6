package rag

import (
	"fmt"
	"strings"

	"askdoc/internal/model"
)

// Fixed fallback answers. noContextAnswer is returned when grading leaves no
// usable passage; noAnswerMessage replaces a blank generation;
// rejectedAnswerMessage replaces an answer the strict grader voted down;
// lenientDisclaimer is appended to an answer the lenient grader voted down.
const (
	noContextAnswer       = "I could not find anything in the provided documents that answers this question."
	noAnswerMessage       = "I was unable to produce an answer from the provided documents."
	rejectedAnswerMessage = "I don't know. The provided documents do not seem to answer this question."
	lenientDisclaimer     = "Note: this answer may be incomplete; the provided documents may not fully cover the question."
)

const generationSystemPrompt = `You are a document question answering assistant.
Answer the user's question using ONLY the context below. If the context does
not contain the answer, say so plainly instead of guessing. Keep the answer
under 200 words.

Context:
%s`

// buildGenerationMessages assembles the chat transcript for the generator:
// a system prompt embedding the graded passages, the most recent history
// turns in chronological order, then the question itself.
func buildGenerationMessages(question string, history []model.Turn, chunks []model.Chunk, maxHistory int) []model.Turn {
	var ctx strings.Builder
	for i, c := range chunks {
		if i > 0 {
			ctx.WriteString("\n---\n")
		}
		if src := chunkSource(c); src != "" {
			ctx.WriteString("[" + src + "]\n")
		}
		ctx.WriteString(c.Text)
	}
	if ctx.Len() == 0 {
		ctx.WriteString("(no context available)")
	}

	msgs := []model.Turn{{
		Role:    model.RoleSystem,
		Content: fmt.Sprintf(generationSystemPrompt, ctx.String()),
	}}

	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	msgs = append(msgs, history...)

	msgs = append(msgs, model.Turn{Role: model.RoleUser, Content: question})
	return msgs
}

func chunkSource(c model.Chunk) string {
	if v := c.Metadata[model.MetaSourceURL]; v != "" {
		return v
	}
	return c.Metadata[model.MetaFileName]
}

const docGradeSystemPrompt = `You grade whether a document passage is relevant
to a question. Reply with exactly one word: yes or no.`

func docGradeMessages(question, passage string) []model.Turn {
	return []model.Turn{
		{Role: model.RoleSystem, Content: docGradeSystemPrompt},
		{Role: model.RoleUser, Content: fmt.Sprintf("Question: %s\n\nPassage:\n%s\n\nIs the passage relevant to the question, even partially? Answer yes or no.", question, passage)},
	}
}

const answerGradeSystemPrompt = `You grade whether an answer actually addresses
a question. Reply with exactly one word: yes or no.`

func answerGradeMessages(question, answer string) []model.Turn {
	return []model.Turn{
		{Role: model.RoleSystem, Content: answerGradeSystemPrompt},
		{Role: model.RoleUser, Content: fmt.Sprintf("Question: %s\n\nAnswer:\n%s\n\nDoes the answer address the question? Answer yes or no.", question, answer)},
	}
}
