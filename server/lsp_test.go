package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple word", "x = ucas", protocol.Position{Line: 0, Character: 8}, "ucas"},
		{"at start", "pri", protocol.Position{Line: 0, Character: 3}, "pri"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "main()\n{\n  whi", protocol.Position{Line: 2, Character: 5}, "whi"},
		{"after paren", "print(le", protocol.Position{Line: 0, Character: 8}, "le"},
		{"cursor at beginning", "hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"line beyond document", "single line", protocol.Position{Line: 5, Character: 0}, ""},
		{"column beyond line", "abc", protocol.Position{Line: 0, Character: 40}, "abc"},
	}
	for _, tt := range tests {
		if got := extractPrefix(tt.text, tt.pos); got != tt.want {
			t.Errorf("%s: extractPrefix = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// extractWord
// ---------------------------------------------------------------------------

func TestExtractWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"inside word", "hello world", protocol.Position{Line: 0, Character: 3}, "hello"},
		{"at end", "hello world", protocol.Position{Line: 0, Character: 5}, "hello"},
		{"second word", "hello world", protocol.Position{Line: 0, Character: 7}, "world"},
		{"underscore", "a = my_var + 1", protocol.Position{Line: 0, Character: 6}, "my_var"},
		{"on operator", "a + b", protocol.Position{Line: 0, Character: 2}, ""},
		{"second line", "x\nmid(s, 1)", protocol.Position{Line: 1, Character: 1}, "mid"},
	}
	for _, tt := range tests {
		if got := extractWord(tt.text, tt.pos); got != tt.want {
			t.Errorf("%s: extractWord = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Completion and hover
// ---------------------------------------------------------------------------

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func TestComplete(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		prefix string
		want   []string
	}{
		{"wh", []string{"while"}},
		{"L", []string{"lcase", "left", "len"}},
		{"pr", []string{"print"}},
		{"s", []string{"step", "sgn", "sqrt", "str"}},
		{"zzz", nil},
	}
	for _, tt := range tests {
		got := labels(complete(e, tt.prefix))
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("complete(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}

	items := complete(e, "mid")
	if len(items) != 1 || *items[0].Detail != "mid(2..3 args)" || *items[0].Kind != protocol.CompletionItemKindFunction {
		t.Errorf("mid completion = %+v", items)
	}
	items = complete(e, "print")
	if *items[0].Detail != "host print(0+ args)" {
		t.Errorf("print detail = %q", *items[0].Detail)
	}
}

func TestHover(t *testing.T) {
	e := newTestEngine(t)

	h := hover(e, "LEN")
	if h == nil {
		t.Fatal("no hover for LEN")
	}
	content := h.Contents.(protocol.MarkupContent)
	if content.Kind != protocol.MarkupKindMarkdown || !strings.Contains(content.Value, "**len(1 arg)**") {
		t.Errorf("hover = %+v", content)
	}

	h = hover(e, "print")
	if h == nil || !strings.Contains(h.Contents.(protocol.MarkupContent).Value, "Host function") {
		t.Errorf("print hover = %+v", h)
	}

	if hover(e, "while") != nil {
		t.Error("keywords should have no hover")
	}
}

func TestIntrinsicDocsCoverTable(t *testing.T) {
	e := newTestEngine(t)
	for _, item := range complete(e, "") {
		if *item.Kind == protocol.CompletionItemKindFunction && !strings.HasPrefix(*item.Detail, "host") {
			if intrinsicDocs[item.Label] == "" {
				t.Errorf("no doc for intrinsic %s", item.Label)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestToDiagnostics(t *testing.T) {
	e := newTestEngine(t)
	text := "main()\r\n{\r\n  return nope\r\n}\r\n"

	diags := toDiagnostics(text, e.Check(text))
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0]
	if d.Range.Start.Line != 2 || d.Range.End.Line != 2 || d.Range.End.Character != 13 {
		t.Errorf("range = %+v", d.Range)
	}
	if *d.Severity != protocol.DiagnosticSeverityError || *d.Source != lspName {
		t.Errorf("severity/source = %v/%v", *d.Severity, *d.Source)
	}
	if d.Code.Value != "1013" {
		t.Errorf("code = %v, want 1013", d.Code.Value)
	}
	if !strings.Contains(d.Message, "nope") {
		t.Errorf("message = %q", d.Message)
	}

	if diags := toDiagnostics(helloSource, e.Check(helloSource)); diags == nil || len(diags) != 0 {
		t.Errorf("clean source diagnostics = %#v, want empty non-nil", diags)
	}
}
