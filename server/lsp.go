package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/weft/compiler"
	"github.com/chazu/weft/vm"
)

const lspName = "weft-lsp"

// intrinsicDocs are the hover texts for the built-in functions.
var intrinsicDocs = map[string]string{
	"abs":   "abs(n) returns the absolute value of n.",
	"asc":   "asc(s) returns the code of the first character of s, or 0 for an empty string.",
	"chr":   "chr(n) returns the one-character string with code n.",
	"float": "float(x) converts x to a float.",
	"hex":   "hex(n) formats n as upper-case hexadecimal.",
	"int":   "int(x) converts x to an integer, truncating floats.",
	"lcase": "lcase(s) returns s in lower case.",
	"left":  "left(s, n) returns the first n characters of s.",
	"len":   "len(x) returns the element count of a list or the length of a string.",
	"max":   "max(a, ...) returns the largest argument. Lists are flattened.",
	"mid":   "mid(s, start[, count]) returns a substring; start is 1-based.",
	"min":   "min(a, ...) returns the smallest argument. Lists are flattened.",
	"right": "right(s, n) returns the last n characters of s.",
	"sgn":   "sgn(n) returns -1, 0 or 1.",
	"sqrt":  "sqrt(n) returns the square root of n as a float.",
	"str":   "str(x) converts x to a string.",
	"trim":  "trim(s) removes leading and trailing white space.",
	"type":  "type(x) returns the name of x's type.",
	"ucase": "ucase(s) returns s in upper case.",
	"val":   "val(s) parses s as a number, returning 0 if it is not one.",
}

// LspServer bridges LSP editor features to the Weft compiler via an
// Executor.
type LspServer struct {
	exec *Executor

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server around the given engine.
func NewLSP(e *Engine) *LspServer {
	s := &LspServer{
		exec:    NewExecutor(e),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Weft LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.exec.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	return Submit(context.Background(), s.exec, func(e *Engine) (any, error) {
		return complete(e, prefix), nil
	})
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	h, err := Submit(context.Background(), s.exec, func(e *Engine) (*protocol.Hover, error) {
		return hover(e, word), nil
	})
	if err != nil {
		return nil, nil
	}
	return h, nil
}

// --- Engine-backed logic (called on the executor goroutine) ---

func complete(e *Engine, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			return
		}
		nameCopy, detailCopy := name, detail
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detailCopy,
			InsertText: &nameCopy,
		})
	}

	keywords := compiler.Keywords()
	sort.Strings(keywords)
	for _, kw := range keywords {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}
	for _, f := range vm.Intrinsics() {
		add(f.Name, protocol.CompletionItemKindFunction, signature(f.Name, f.MinParameters, f.MaxParameters))
	}
	for _, h := range e.Hosts() {
		add(h.Name, protocol.CompletionItemKindFunction, "host "+signature(h.Name, h.MinParameters, h.MaxParameters))
	}

	return items
}

func hover(e *Engine, word string) *protocol.Hover {
	var b strings.Builder
	if f, ok := vm.LookupIntrinsic(word); ok {
		fmt.Fprintf(&b, "**%s**\n\n%s", signature(f.Name, f.MinParameters, f.MaxParameters), intrinsicDocs[f.Name])
	} else {
		for _, h := range e.Hosts() {
			if strings.EqualFold(h.Name, word) {
				fmt.Fprintf(&b, "**%s**\n\nHost function.", signature(h.Name, h.MinParameters, h.MaxParameters))
				break
			}
		}
	}
	if b.Len() == 0 {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// signature renders an argument-count summary such as "mid(2..3 args)".
func signature(name string, min, max int) string {
	switch {
	case max < 0:
		return fmt.Sprintf("%s(%d+ args)", name, min)
	case min == max && min == 1:
		return fmt.Sprintf("%s(1 arg)", name)
	case min == max:
		return fmt.Sprintf("%s(%d args)", name, min)
	default:
		return fmt.Sprintf("%s(%d..%d args)", name, min, max)
	}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	errs, err := Submit(context.Background(), s.exec, func(e *Engine) (compiler.ErrorList, error) {
		return e.Check(text), nil
	})
	if err != nil {
		log.Warningf("diagnostics for %s: %s", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: toDiagnostics(text, errs),
	})
}

// toDiagnostics maps compiler errors onto whole-line ranges.
func toDiagnostics(text string, errs compiler.ErrorList) []protocol.Diagnostic {
	lines := strings.Split(text, "\n")
	diagnostics := []protocol.Diagnostic{}
	for _, e := range errs {
		line := 0
		if e.Line > 0 {
			line = e.Line - 1
		}
		end := 0
		if line < len(lines) {
			end = len(strings.TrimRight(lines[line], "\r"))
		}

		severity := protocol.DiagnosticSeverityError
		source := lspName
		code := protocol.IntegerOrString{Value: fmt.Sprintf("%d", 1000+int(e.Code))}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
				End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(end)},
			},
			Severity: &severity,
			Code:     &code,
			Source:   &source,
			Message:  e.Description,
		})
	}
	return diagnostics
}

// --- Text extraction helpers ---

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
