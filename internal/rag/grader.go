package rag

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"askdoc/internal/model"
)

// Completer is the slice of the model provider used for chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []model.Turn) (string, error)
}

const (
	maxGradePassageRunes = 2000
	gradeConcurrency     = 4

	// When the grader rejects every passage, keep this many of the top
	// retrieved ones instead of generating from nothing.
	allRejectedKeep = 3
)

// parseRelevance reads a yes/no verdict out of a classifier reply. Replies
// containing both or neither token are ambiguous.
func parseRelevance(reply string) (bool, error) {
	hasYes := false
	hasNo := false
	for _, tok := range strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		switch tok {
		case "yes":
			hasYes = true
		case "no":
			hasNo = true
		}
	}
	switch {
	case hasYes && !hasNo:
		return true, nil
	case hasNo && !hasYes:
		return false, nil
	default:
		return false, errAmbiguousVerdict
	}
}

// gradeDocuments asks the classifier whether each retrieved chunk is relevant
// to the question and drops the rejected ones, preserving retrieval order.
// A failed or ambiguous classification keeps its chunk, so grading can only
// ever narrow the context, never lose it to model flakiness. When every chunk
// is rejected the top retrieved ones are kept as a fallback.
func gradeDocuments(ctx context.Context, completer Completer, question string, chunks []model.Chunk) ([]model.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	keep := make([]bool, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(gradeConcurrency)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			passage := truncateRunes(c.Text, maxGradePassageRunes)
			reply, err := completer.Complete(gctx, docGradeMessages(question, passage))
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return err
				}
				keep[i] = true // classification failure defaults to relevant
				return nil
			}
			relevant, err := parseRelevance(reply)
			if err != nil {
				keep[i] = true
				return nil
			}
			keep[i] = relevant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var kept []model.Chunk
	for i, c := range chunks {
		if keep[i] {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		n := allRejectedKeep
		if n > len(chunks) {
			n = len(chunks)
		}
		kept = append(kept, chunks[:n]...)
	}
	return kept, nil
}

// gradeAnswer validates the generated answer against the question. A blank
// answer is replaced with a fixed message without consulting the classifier.
// A rejected answer is replaced under the strict policy and kept with an
// appended disclaimer under lenient. A failed or ambiguous classification
// keeps the answer unchanged; grading must never block response delivery.
func gradeAnswer(ctx context.Context, completer Completer, question, answer, policy string) string {
	if strings.TrimSpace(answer) == "" {
		return noAnswerMessage
	}
	reply, err := completer.Complete(ctx, answerGradeMessages(question, answer))
	if err != nil {
		return answer
	}
	addresses, err := parseRelevance(reply)
	if err != nil {
		return answer
	}
	if !addresses {
		if policy == PolicyStrict {
			return rejectedAnswerMessage
		}
		return answer + "\n\n" + lenientDisclaimer
	}
	return answer
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
