// Package prompts loads the lesson persona catalogue: the teacher system prompt,
// per-language personas with their fallback lines, and the narration voices.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

const catalogueEnv = "LESSON_PERSONAS_YAML"

//go:embed catalogue.yaml
var catalogueFS embed.FS

type Persona struct {
	Language                domain.Language `yaml:"-"`
	SpokenInstruction       string          `yaml:"spoken_instruction"`
	Address                 string          `yaml:"address"`
	VoiceLocales            []string        `yaml:"voice_locales"`
	ParseFailureBoard       string          `yaml:"parse_failure_board"`
	ParseFailureSpoken      string          `yaml:"parse_failure_spoken"`
	GenerationFailureBoard  string          `yaml:"generation_failure_board"`
	GenerationFailureSpoken string          `yaml:"generation_failure_spoken"`
}

type VoiceSpec struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Lang   string `yaml:"lang"`
	Gender string `yaml:"gender"`
}

type yamlCatalogue struct {
	Catalogue     string             `yaml:"catalogue"`
	Version       int                `yaml:"version"`
	TeacherSystem string             `yaml:"teacher_system"`
	ImagePrompt   string             `yaml:"image_prompt"`
	Personas      map[string]Persona `yaml:"personas"`
	Voices        []VoiceSpec        `yaml:"voices"`
}

type Catalogue struct {
	Version  int
	Voices   []VoiceSpec
	personas map[domain.Language]Persona
	system   *template.Template
	image    *template.Template
}

// SystemInput feeds the teacher system prompt template.
type SystemInput struct {
	Persona  Persona
	MinSteps int
	MaxSteps int
}

// Persona returns the persona for lang, falling back to the default language.
func (c *Catalogue) Persona(lang domain.Language) Persona {
	if p, ok := c.personas[lang]; ok {
		return p
	}
	return c.personas[domain.DefaultLanguage]
}

func (c *Catalogue) TeacherSystem(in SystemInput) (string, error) {
	var b bytes.Buffer
	if err := c.system.Execute(&b, in); err != nil {
		return "", fmt.Errorf("render teacher system prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// ImagePrompt wraps a step's image description for the image service.
func (c *Catalogue) ImagePrompt(description string) string {
	var b bytes.Buffer
	if err := c.image.Execute(&b, struct{ Description string }{strings.TrimSpace(description)}); err != nil {
		return description
	}
	return b.String()
}

// Parse validates and compiles a catalogue document.
func Parse(data []byte) (*Catalogue, error) {
	var doc yamlCatalogue
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	if strings.TrimSpace(doc.Catalogue) != "blackboard_lessons" {
		return nil, fmt.Errorf("unexpected catalogue: %q", doc.Catalogue)
	}
	if strings.TrimSpace(doc.TeacherSystem) == "" {
		return nil, errors.New("teacher_system is required")
	}
	if strings.TrimSpace(doc.ImagePrompt) == "" {
		return nil, errors.New("image_prompt is required")
	}
	sysT, err := template.New("teacher_system").Option("missingkey=zero").Parse(doc.TeacherSystem)
	if err != nil {
		return nil, fmt.Errorf("teacher_system template: %w", err)
	}
	imgT, err := template.New("image_prompt").Option("missingkey=zero").Parse(doc.ImagePrompt)
	if err != nil {
		return nil, fmt.Errorf("image_prompt template: %w", err)
	}

	personas := make(map[domain.Language]Persona, len(doc.Personas))
	for key, p := range doc.Personas {
		lang := domain.ParseLanguage(key)
		if !strings.EqualFold(string(lang), strings.TrimSpace(key)) {
			return nil, fmt.Errorf("unknown persona language: %q", key)
		}
		if strings.TrimSpace(p.ParseFailureSpoken) == "" || strings.TrimSpace(p.GenerationFailureSpoken) == "" {
			return nil, fmt.Errorf("persona %s: fallback lines are required", key)
		}
		if strings.TrimSpace(p.ParseFailureBoard) == "" {
			p.ParseFailureBoard = "<h1>Network Issue</h1>"
		}
		if strings.TrimSpace(p.GenerationFailureBoard) == "" {
			p.GenerationFailureBoard = "Error"
		}
		p.Language = lang
		personas[lang] = p
	}
	if _, ok := personas[domain.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("persona for %s is required", domain.DefaultLanguage)
	}
	for i, v := range doc.Voices {
		if strings.TrimSpace(v.ID) == "" || strings.TrimSpace(v.Lang) == "" {
			return nil, fmt.Errorf("voice %d: id and lang are required", i)
		}
	}

	return &Catalogue{
		Version:  doc.Version,
		Voices:   doc.Voices,
		personas: personas,
		system:   sysT,
		image:    imgT,
	}, nil
}

var (
	loadOnce sync.Once
	loaded   *Catalogue
	loadErr  error
)

// Load returns the process catalogue: the file named by LESSON_PERSONAS_YAML,
// else the embedded one. A broken override falls back to the embedded catalogue.
func Load(log *logger.Logger) *Catalogue {
	loadOnce.Do(func() {
		loaded, loadErr = loadCatalogue()
	})
	if loadErr != nil {
		if log != nil {
			log.Warn("lesson catalogue load failed; using embedded catalogue", "error", loadErr)
		}
		return Builtin()
	}
	return loaded
}

// Builtin is the embedded catalogue. It panics if the embedded file is invalid.
var Builtin = sync.OnceValue(func() *Catalogue {
	data, err := catalogueFS.ReadFile("catalogue.yaml")
	if err != nil {
		panic(err)
	}
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
})

func loadCatalogue() (*Catalogue, error) {
	path := strings.TrimSpace(os.Getenv(catalogueEnv))
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
