package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSegmentCommandJSON(t *testing.T) {
	out, err := runCLI(t, "", "segment", "--json", "Hello there. Bye now.")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	var chunks []string
	if err := json.Unmarshal([]byte(out), &chunks); err != nil {
		t.Fatalf("decode: %v out=%s", err, out)
	}
	if len(chunks) != 2 || chunks[0] != "Hello there." || chunks[1] != " Bye now." {
		t.Fatalf("chunks: got=%q", chunks)
	}
}

func TestSegmentCommandReadsStdin(t *testing.T) {
	out, err := runCLI(t, "One, two: three", "segment")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	for _, want := range []string{"Subtitle", "One,", "two:", "three"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestSegmentCommandRejectsEmpty(t *testing.T) {
	if _, err := runCLI(t, "   ", "segment"); err == nil {
		t.Fatalf("expected error for blank input")
	}
}

func TestHistoryRequiresBoard(t *testing.T) {
	t.Setenv("BLACKBOARD_CONFIG", "")
	_, err := runCLI(t, "", "history")
	if err == nil || !strings.Contains(err.Error(), "--board") {
		t.Fatalf("history: want --board error got=%v", err)
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable([]string{"#", "Name"}, [][]string{{"1", "alpha"}, {"10"}}, []columnAlignment{alignRight})
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "10") {
		t.Fatalf("table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("empty headers should render nothing")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("a  b\nc", 10); got != "a b c" {
		t.Fatalf("collapse: got=%q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("truncate: got=%q", got)
	}
}
