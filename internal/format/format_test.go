package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"pathwatch/internal/watch"
)

func TestParseDefaultFormat(t *testing.T) {
	tokens := Parse("")
	expected := []Token{
		{Directive: 'T'},
		{Literal: " "},
		{Directive: 'w'},
		{Directive: 'f'},
		{Literal: " "},
		{Directive: 'e'},
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %#v", len(expected), len(tokens), tokens)
	}
	for i, token := range tokens {
		if token != expected[i] {
			t.Fatalf("token %d: expected %#v, got %#v", i, expected[i], token)
		}
	}
}

func TestParseKeepsUnknownDirectivesLiteral(t *testing.T) {
	tokens := Parse("%e %x done")
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %#v", tokens)
	}
	if tokens[0].Directive != 'e' {
		t.Fatalf("expected kind directive first, got %#v", tokens[0])
	}
	if tokens[1].Literal != " %x done" {
		t.Fatalf("expected literal tail, got %q", tokens[1].Literal)
	}
}

func TestRenderLine(t *testing.T) {
	notification := watch.Notification{
		Kind: watch.Modified,
		Path: "/data/a.txt",
		Dir:  "/data/",
		Name: "a.txt",
		Time: time.Now(),
	}

	var output bytes.Buffer
	if err := Render(&output, Parse(""), notification); err != nil {
		t.Fatalf("render: %v", err)
	}

	line := output.String()
	if !strings.HasSuffix(line, " /data/a.txt MODIFY\n") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line[:len(line)-1], " ") {
		t.Fatalf("expected timestamp prefix, got %q", line)
	}
}

func TestRenderDirectoryMarker(t *testing.T) {
	notification := watch.Notification{
		Kind:  watch.Created,
		Path:  "/data/sub",
		Dir:   "/data/",
		Name:  "sub",
		IsDir: true,
	}

	var output bytes.Buffer
	if err := Render(&output, Parse("%e"), notification); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(output.String(), "CREATE,ISDIR") {
		t.Fatalf("expected directory marker, got %q", output.String())
	}
}

func TestRenderLiteralTokens(t *testing.T) {
	notification := watch.Notification{
		Kind: watch.Deleted,
		Name: "gone.txt",
		Dir:  "/data/",
	}

	var output bytes.Buffer
	if err := Render(&output, Parse("event=%e file=%f"), notification); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(output.String(), "event=DELETE file=gone.txt") {
		t.Fatalf("unexpected output %q", output.String())
	}
}
