package scoring

import (
	"math"

	"github.com/pavelanni/autograde/internal/model"
)

// ExamPercentage is the unrounded percentage of one exam attempt.
func ExamPercentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return 100 * score / max
}

// AverageScore returns the rounded mean of per-exam percentages, 0 for none.
func AverageScore(percentages []float64) int {
	if len(percentages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range percentages {
		sum += p
	}
	return int(math.Round(sum / float64(len(percentages))))
}

// BestScore returns the highest rounded per-exam percentage, 0 for none.
func BestScore(percentages []float64) int {
	best := 0
	for i, p := range percentages {
		r := int(math.Round(p))
		if i == 0 || r > best {
			best = r
		}
	}
	return best
}

// SubmissionPercentages collects the unrounded percentages of submissions.
func SubmissionPercentages(subs []model.Submission) []float64 {
	out := make([]float64, 0, len(subs))
	for _, s := range subs {
		out = append(out, ExamPercentage(s.Score, s.MaxScore))
	}
	return out
}

// Partition splits submissions into graded (graded or reviewed) and pending.
func Partition(subs []model.Submission) (graded, pending []model.Submission) {
	for _, s := range subs {
		switch s.Status {
		case model.SubmissionGraded, model.SubmissionReviewed:
			graded = append(graded, s)
		case model.SubmissionPending:
			pending = append(pending, s)
		}
	}
	return graded, pending
}

// EditScore applies a teacher's manual score. It returns a copy with the new
// score, recomputed percentage and reviewed status; sub itself is never modified.
func EditScore(sub model.Submission, newScore float64) (model.Submission, error) {
	if math.IsNaN(newScore) || newScore < 0 || newScore > sub.MaxScore {
		return sub, &model.ValidationError{
			Fields:  map[string]string{"score": "must be between 0 and max score"},
			Message: "score out of range",
		}
	}
	sub.Score = newScore
	sub.Percentage = Percentage(newScore, sub.MaxScore)
	sub.Status = model.SubmissionReviewed
	return sub, nil
}
