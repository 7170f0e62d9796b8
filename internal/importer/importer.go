// Package importer loads exam files into the authoring service.
package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pavelanni/autograde/internal/authoring"
	"github.com/pavelanni/autograde/internal/model"
)

//go:embed exam.schema.json
var schemaJSON []byte

const schemaURL = "exam.schema.json"

// Authoring creates and publishes exams.
type Authoring interface {
	Create(ctx context.Context, owner *model.User, in authoring.ExamInput) (*model.Exam, error)
	Publish(ctx context.Context, owner *model.User, examID string) error
}

// HashStore remembers which files have been imported.
type HashStore interface {
	GetImportedFileHash(ctx context.Context, path string) (string, error)
	SetImportedFileHash(ctx context.Context, path, hash string) error
}

// Report describes one import.
type Report struct {
	Name    string   `json:"name"`
	Skipped bool     `json:"skipped"`
	ExamIDs []string `json:"exam_ids"`
}

// Importer validates exam files against the import schema and stores them.
type Importer struct {
	exams  Authoring
	hashes HashStore
	schema *jsonschema.Schema
	log    *slog.Logger
}

// New compiles the import schema.
func New(exams Authoring, hashes HashStore, log *slog.Logger) (*Importer, error) {
	if log == nil {
		log = slog.Default()
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Importer{exams: exams, hashes: hashes, schema: schema, log: log}, nil
}

// Validate checks a file against the import schema and decodes it.
func (im *Importer) Validate(data []byte) ([]authoring.ExamInput, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, model.NewValidationError("invalid JSON: %v", err)
	}
	if err := im.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, schemaError(ve)
		}
		return nil, fmt.Errorf("validate: %w", err)
	}
	var exams []authoring.ExamInput
	if err := json.Unmarshal(data, &exams); err != nil {
		return nil, model.NewValidationError("decode exams: %v", err)
	}
	return exams, nil
}

// Import stores every exam in the file under owner, publishing them when
// publish is set. A file whose content was already imported under the same
// name is skipped.
func (im *Importer) Import(ctx context.Context, owner *model.User, name string, data []byte, publish bool) (*Report, error) {
	report := &Report{Name: name, ExamIDs: []string{}}
	hash := sha256sum(data)

	stored, err := im.hashes.GetImportedFileHash(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		im.log.Info("exam file unchanged, skipping", "name", name)
		report.Skipped = true
		return report, nil
	}

	exams, err := im.Validate(data)
	if err != nil {
		return nil, err
	}

	for i, in := range exams {
		exam, err := im.exams.Create(ctx, owner, in)
		if err != nil {
			return report, fmt.Errorf("exam %d (%s): %w", i+1, in.Title, err)
		}
		if publish {
			if err := im.exams.Publish(ctx, owner, exam.ID); err != nil {
				return report, fmt.Errorf("publish exam %d (%s): %w", i+1, in.Title, err)
			}
		}
		report.ExamIDs = append(report.ExamIDs, exam.ID)
	}

	if err := im.hashes.SetImportedFileHash(ctx, name, hash); err != nil {
		return report, fmt.Errorf("record import for %s: %w", name, err)
	}
	im.log.Info("imported exams", "name", name, "count", len(report.ExamIDs), "published", publish)
	return report, nil
}

// schemaError flattens the leaf causes of a schema failure into field errors
// keyed by JSON pointer.
func schemaError(ve *jsonschema.ValidationError) *model.ValidationError {
	fields := make(map[string]string)
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			if prev, ok := fields[loc]; ok {
				fields[loc] = prev + "; " + e.Message
			} else {
				fields[loc] = e.Message
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return &model.ValidationError{Fields: fields, Message: "exam file does not match the import schema"}
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
