package main

import (
	"strings"
	"testing"
)

func TestRootCommandShowsHelp(t *testing.T) {
	out, err := runCommand(t)
	if err != nil {
		t.Fatalf("root command: %v", err)
	}
	for _, want := range []string{"submit", "status", "watch", "queue", "quota"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected help to mention %q, got %q", want, out)
		}
	}
}
