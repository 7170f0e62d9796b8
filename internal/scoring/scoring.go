// Package scoring holds the grading rules shared by results, dashboards and review.
package scoring

import (
	"math"
	"strings"

	"github.com/pavelanni/autograde/internal/model"
)

// GradeChoice grades a multiple-choice answer by exact, case-sensitive match.
func GradeChoice(q model.Question, answer string) model.QuestionResult {
	correct := answer != "" && answer == q.CorrectAnswer
	return ruleResult(q, answer, correct)
}

// GradeBlank grades a fill-in-the-blank answer after trimming and case folding.
func GradeBlank(q model.Question, answer string) model.QuestionResult {
	want := normalize(q.CorrectAnswer)
	correct := want != "" && normalize(answer) == want
	return ruleResult(q, answer, correct)
}

func ruleResult(q model.Question, answer string, correct bool) model.QuestionResult {
	r := model.QuestionResult{
		QuestionID:    q.ID,
		Type:          q.Type,
		Text:          q.Text,
		StudentAnswer: answer,
		CorrectAnswer: q.CorrectAnswer,
		IsCorrect:     correct,
		MaxScore:      float64(q.MaxPoints),
	}
	switch {
	case correct:
		r.Score = r.MaxScore
		r.Feedback = "Correct."
	case strings.TrimSpace(answer) == "":
		r.Feedback = "No answer provided."
	default:
		r.Feedback = "Incorrect. The correct answer is " + q.CorrectAnswer + "."
	}
	return r
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Totals sums the scores and maximum scores of question results.
func Totals(results []model.QuestionResult) (total, max float64) {
	for _, r := range results {
		total += r.Score
		max += r.MaxScore
	}
	return total, max
}

// Percentage returns round(100*total/max), or 0 when max is 0.
func Percentage(total, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(100 * total / max))
}

// GradeLabel maps a percentage onto a letter grade. Lower bounds are inclusive.
func GradeLabel(percentage int) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

// Aggregate fills the derived totals of an exam result from its question results.
func Aggregate(r *model.ExamResult) {
	r.TotalScore, r.MaxScore = Totals(r.Questions)
	r.Percentage = Percentage(r.TotalScore, r.MaxScore)
	r.Grade = GradeLabel(r.Percentage)
}

// OverallFeedback returns a short summary sentence for a percentage.
func OverallFeedback(percentage int) string {
	switch {
	case percentage >= 90:
		return "Excellent work. You have a strong command of this material."
	case percentage >= 70:
		return "Good understanding overall. Review the questions you missed."
	case percentage >= 50:
		return "Partial understanding. Revisit the core concepts before the next exam."
	default:
		return "This material needs more study. Go over each question's feedback carefully."
	}
}
