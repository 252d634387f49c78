package prompts

import (
	"strings"
	"testing"

	"github.com/yungbote/blackboard-backend/internal/domain"
)

func TestBuiltinCatalogue(t *testing.T) {
	c := Builtin()
	for _, lang := range domain.Languages {
		p := c.Persona(lang)
		if p.Language != lang {
			t.Fatalf("persona %s: got language %s", lang, p.Language)
		}
		if p.ParseFailureSpoken == "" || p.GenerationFailureSpoken == "" {
			t.Fatalf("persona %s: missing fallback lines", lang)
		}
		if len(p.VoiceLocales) == 0 {
			t.Fatalf("persona %s: missing voice locales", lang)
		}
	}
	if got := c.Persona(domain.LanguageHindi).ParseFailureSpoken; got != "Arre beta, connection toot gaya. Phir se try karte hain." {
		t.Fatalf("hindi parse failure line: got=%q", got)
	}
	if len(c.Voices) == 0 {
		t.Fatalf("voices: want some")
	}
}

func TestTeacherSystemRendersPersona(t *testing.T) {
	c := Builtin()
	out, err := c.TeacherSystem(SystemInput{Persona: c.Persona(domain.LanguageTamil), MinSteps: 8, MaxSteps: 15})
	if err != nil {
		t.Fatalf("TeacherSystem: %v", err)
	}
	for _, want := range []string{"Tanglish", "Thambi/Thangachi/Students", "MINIMUM STEPS: 8", "MAXIMUM STEPS: 15", "data-tooltip"} {
		if !strings.Contains(out, want) {
			t.Fatalf("system prompt missing %q", want)
		}
	}
}

func TestImagePrompt(t *testing.T) {
	got := Builtin().ImagePrompt(" A chalk diagram of a cell ")
	want := "Educational illustration: A chalk diagram of a cell. High quality, clear, suitable for a classroom context."
	if got != want {
		t.Fatalf("ImagePrompt: want=%q got=%q", want, got)
	}
}

func TestParseRejectsBadCatalogues(t *testing.T) {
	cases := map[string]string{
		"not yaml":        ":\t:",
		"wrong catalogue": "catalogue: other\nteacher_system: x\nimage_prompt: y\n",
		"no default persona": `catalogue: blackboard_lessons
teacher_system: x
image_prompt: y
personas:
  Hindi:
    parse_failure_spoken: a
    generation_failure_spoken: b
`,
		"unknown language": `catalogue: blackboard_lessons
teacher_system: x
image_prompt: y
personas:
  English:
    parse_failure_spoken: a
    generation_failure_spoken: b
  Klingon:
    parse_failure_spoken: a
    generation_failure_spoken: b
`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: want error", name)
		}
	}
}

func TestLoadFallsBackOnBrokenOverride(t *testing.T) {
	t.Setenv(catalogueEnv, "/nonexistent/catalogue.yaml")
	c, err := loadCatalogue()
	if err == nil || c != nil {
		t.Fatalf("loadCatalogue: want error for missing file")
	}
}
