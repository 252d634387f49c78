package promptstyle

import (
	"strings"
	"testing"
)

func TestApplySystemIsIdempotent(t *testing.T) {
	once := ApplySystem("You are Mam.", "json")
	if !strings.HasPrefix(once, marker) {
		t.Fatalf("missing marker: %q", once)
	}
	if !strings.HasSuffix(once, "You are Mam.") {
		t.Fatalf("base prompt must stay last: %q", once)
	}
	if twice := ApplySystem(once, "json"); twice != once {
		t.Fatalf("second application changed prompt")
	}
	if got := ApplySystem("   ", "json"); got != "" {
		t.Fatalf("blank prompt: want empty got=%q", got)
	}
}
