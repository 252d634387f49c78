package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/prompts"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

type fakeLLM struct {
	system, user, schemaName string
	schema                   map[string]any
	out                      string
	err                      error
}

func (f *fakeLLM) GenerateStructuredText(ctx context.Context, system, user, schemaName string, schema map[string]any) (string, error) {
	f.system, f.user, f.schemaName, f.schema = system, user, schemaName, schema
	return f.out, f.err
}

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestGenerateSendsPersonaAndReturnsRawText(t *testing.T) {
	llm := &fakeLLM{out: "```json\n{\"steps\":[]}\n```"}
	g := New(mustTestLogger(t), llm, prompts.Builtin(), Config{MinSteps: 8, MaxSteps: 15})

	raw, err := g.Generate(context.Background(), "  photosynthesis ", domain.LanguageHindi)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if raw != llm.out {
		t.Fatalf("raw: want untouched output got=%q", raw)
	}
	if llm.user != "photosynthesis" {
		t.Fatalf("user prompt: got=%q", llm.user)
	}
	if !strings.Contains(llm.system, "Hinglish") || !strings.Contains(llm.system, "MAXIMUM STEPS: 15") {
		t.Fatalf("system prompt missing persona or bounds:\n%s", llm.system)
	}
	if llm.schemaName != schemaName || llm.schema["type"] != "object" {
		t.Fatalf("schema: name=%s schema=%v", llm.schemaName, llm.schema)
	}
}

func TestGenerateWrapsServiceError(t *testing.T) {
	boom := errors.New("503")
	g := New(mustTestLogger(t), &fakeLLM{err: boom}, nil, Config{})
	if _, err := g.Generate(context.Background(), "x", domain.LanguageEnglish); !errors.Is(err, boom) {
		t.Fatalf("err: want wrapped boom got=%v", err)
	}
}

func TestGenerateRejectsBlankPrompt(t *testing.T) {
	g := New(mustTestLogger(t), &fakeLLM{}, nil, Config{})
	if _, err := g.Generate(context.Background(), "   ", domain.LanguageEnglish); err == nil {
		t.Fatalf("want error for blank prompt")
	}
}

func TestConfigDefaults(t *testing.T) {
	g := New(mustTestLogger(t), &fakeLLM{}, nil, Config{MinSteps: 0, MaxSteps: 3})
	if g.cfg.MinSteps != 8 || g.cfg.MaxSteps != 8 {
		t.Fatalf("cfg: got=%+v", g.cfg)
	}
}
