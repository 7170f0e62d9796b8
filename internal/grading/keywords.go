package grading

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pavelanni/autograde/internal/model"
)

// KeywordGrader awards short-answer credit in proportion to the question
// keywords found in the answer. It is used when no LLM endpoint is set.
type KeywordGrader struct{}

// GradeShortAnswer implements ShortAnswerGrader. Questions without keywords
// score 0 and are marked for teacher review.
func (KeywordGrader) GradeShortAnswer(_ context.Context, q model.Question, answer string) (model.ShortAnswerGrade, error) {
	keywords := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return model.ShortAnswerGrade{
			Feedback:    "Awaiting teacher review.",
			NeedsReview: true,
		}, nil
	}

	text := strings.ToLower(answer)
	var missing []string
	for _, k := range keywords {
		if !strings.Contains(text, strings.ToLower(k)) {
			missing = append(missing, k)
		}
	}
	found := len(keywords) - len(missing)

	// One decimal place keeps partial credit readable.
	score := math.Round(float64(q.MaxPoints)*float64(found)/float64(len(keywords))*10) / 10

	g := model.ShortAnswerGrade{
		Score:     score,
		IsCorrect: len(missing) == 0,
	}
	switch {
	case len(missing) == 0:
		g.Feedback = "All key concepts covered."
	case found == 0:
		g.Feedback = "None of the key concepts were mentioned: " + strings.Join(missing, ", ") + "."
	default:
		g.Feedback = fmt.Sprintf("Covered %d of %d key concepts. Missing: %s.", found, len(keywords), strings.Join(missing, ", "))
	}
	return g, nil
}
