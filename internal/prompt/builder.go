// Package prompt renders grading prompts from named templates.
//
// Templates use {name} placeholders. Rendering is a single left-to-right pass,
// so placeholder-like text inside a substituted value is left as is.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template identifiers, one per question kind.
const (
	TemplateConcept     = "concept"
	TemplateCalculation = "calculation"
	TemplateProof       = "proof"
	TemplateProgramming = "programming"
)

// Field names understood by the bundled templates.
const (
	FieldProblem       = "problem"
	FieldAnswer        = "answer"
	FieldCorrectAnswer = "correct_answer"
	FieldRubric        = "rubric"
	FieldSteps         = "steps"
	FieldCode          = "code"
	FieldLanguage      = "language"
	FieldContext       = "context"
	FieldMaxScore      = "max_score"
)

var (
	// ErrTemplateNotFound indicates the requested template id is not registered.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrEmptyTemplate indicates a registered template has no content.
	ErrEmptyTemplate = errors.New("template is empty")
)

//go:embed templates.yaml
var bundled []byte

// Fields maps placeholder names to their values.
type Fields map[string]string

// Builder renders a prompt from a template id and field values.
type Builder interface {
	Build(templateID string, fields Fields) (string, error)
}

// Registry is a fixed set of templates. It is safe for concurrent use once
// constructed.
type Registry struct {
	templates map[string]string
}

type bundleFile struct {
	Templates map[string]string `yaml:"templates"`
}

// NewRegistry returns a registry holding templates.
func NewRegistry(templates map[string]string) *Registry {
	cp := make(map[string]string, len(templates))
	for id, body := range templates {
		cp[id] = body
	}
	return &Registry{templates: cp}
}

// Default returns the registry built from the bundled templates.
func Default() *Registry {
	r, err := parseBundle(bundled)
	if err != nil {
		panic(fmt.Sprintf("prompt: bundled templates are invalid: %v", err))
	}
	return r
}

// LoadBundle reads a YAML file with a top-level "templates" map.
func LoadBundle(path string) (*Registry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read template bundle: %w", err)
	}
	return parseBundle(data)
}

func parseBundle(data []byte) (*Registry, error) {
	var f bundleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse template bundle: %w", err)
	}
	return NewRegistry(f.Templates), nil
}

// LoadDir registers every <id>.txt file in dir under <id>.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template dir: %w", err)
	}

	templates := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", e.Name(), err)
		}
		templates[strings.TrimSuffix(e.Name(), ".txt")] = string(data)
	}
	return NewRegistry(templates), nil
}

// Load picks LoadDir for directories and LoadBundle for files. An empty path
// yields the bundled templates.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat templates: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadBundle(path)
}

// IDs returns the registered template ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Build implements Builder.
func (r *Registry) Build(templateID string, fields Fields) (string, error) {
	body, ok := r.templates[templateID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyTemplate, templateID)
	}
	return Render(body, fields), nil
}

// Render substitutes {name} placeholders in body. Unknown placeholders are
// left untouched.
func Render(body string, fields Fields) string {
	if len(fields) == 0 {
		return body
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", fields[k])
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

var _ Builder = (*Registry)(nil)
