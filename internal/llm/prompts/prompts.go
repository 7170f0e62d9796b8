package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/autograde/internal/model"
)

//go:embed templates/*.txt
var embedded embed.FS

// FS holds the built-in short-answer templates.
var FS fs.FS = embedded

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant for majors.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant for electives.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce       sync.Once
	loadErr        error
	shortTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// ShortAnswerData holds template data for short-answer grading prompts.
type ShortAnswerData struct {
	QuestionText    string
	MaxPoints       int
	Rubric          string
	ReferenceAnswer string
	Keywords        []string
	Answer          string
}

var funcs = template.FuncMap{"join": strings.Join}

// Load parses the short-answer templates from fsys. Only the first call
// has any effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		shortTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			file := "templates/short_" + string(v) + ".txt"

			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}

			tmpl, err := template.New("short").Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			shortTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildShortAnswerPrompt renders the grading prompt for one short-answer
// question using the specified variant.
func BuildShortAnswerPrompt(variant PromptVariant, question model.Question, answer string) (string, error) {
	if shortTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := shortTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := ShortAnswerData{
		QuestionText:    question.Text,
		MaxPoints:       question.MaxPoints,
		Rubric:          question.Rubric,
		ReferenceAnswer: question.CorrectAnswer,
		Keywords:        question.Keywords,
		Answer:          sanitizeAnswer(answer),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeAnswer strips tags that could break out of the answer block and
// bounds the answer length.
func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
