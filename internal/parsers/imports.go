package parsers

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ImportKind classifies how a module references another.
type ImportKind string

const (
	ImportStatic  ImportKind = "static"  // import x from "y"; import "y"
	ImportExport  ImportKind = "export"  // export { x } from "y"; export * from "y"
	ImportDynamic ImportKind = "dynamic" // import("y")
	ImportRequire ImportKind = "require" // require("y")
)

// Import is one module specifier referenced by a program.
type Import struct {
	Specifier string
	Kind      ImportKind
	Line      int // 1-indexed
}

// Imports extracts every string-literal module specifier referenced by the
// program, in source order. Type-only imports are skipped since they have no
// runtime edge.
func Imports(p *Program) []Import {
	var imports []Import
	add := func(node *sitter.Node, kind ImportKind) {
		spec, ok := StringValue(node, p.Source)
		if !ok || spec == "" {
			return
		}
		imports = append(imports, Import{
			Specifier: spec,
			Kind:      kind,
			Line:      int(node.StartPosition().Row) + 1,
		})
	}

	Walk(p.Root(), func(n *sitter.Node) bool {
		switch n.Kind() {
		case "import_statement":
			if isTypeOnly(n) {
				return false
			}
			source := n.ChildByFieldName("source")
			if source == nil {
				source = findChildByType(n, "string")
			}
			add(source, ImportStatic)
			return false
		case "export_statement":
			if source := n.ChildByFieldName("source"); source != nil && !isTypeOnly(n) {
				add(source, ImportExport)
			}
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil {
				return true
			}
			switch {
			case fn.Kind() == "import":
				if arg := FirstArgument(n); arg != nil {
					add(arg, ImportDynamic)
				}
			case fn.Kind() == "identifier" && extractNodeText(fn, p.Source) == "require":
				if arg := FirstArgument(n); arg != nil {
					add(arg, ImportRequire)
				}
			}
		}
		return true
	})

	return imports
}

// FirstArgument returns the first non-comment argument of a call expression.
func FirstArgument(call *sitter.Node) *sitter.Node {
	args := NamedChildren(call.ChildByFieldName("arguments"))
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// StringValue returns the decoded value of a string literal, or of a template
// string without substitutions.
func StringValue(node *sitter.Node, source []byte) (string, bool) {
	if node == nil {
		return "", false
	}

	switch node.Kind() {
	case "string", "template_string":
	default:
		return "", false
	}

	var sb jsString
	for _, child := range NamedChildren(node) {
		text := extractNodeText(child, source)
		switch child.Kind() {
		case "template_substitution":
			return "", false
		case "string_fragment":
			sb.writeString(text)
		case "escape_sequence":
			decodeEscape(&sb, text)
		}
	}
	return sb.String(), true
}

// jsString builds a decoded string from UTF-16 code units, joining surrogate
// pairs written as two \u escapes.
type jsString struct {
	b    strings.Builder
	high rune
}

func (s *jsString) writeString(str string) {
	s.flush()
	s.b.WriteString(str)
}

func (s *jsString) writeUnit(r rune) {
	switch {
	case s.high != 0 && r >= 0xDC00 && r <= 0xDFFF:
		s.b.WriteRune(utf16.DecodeRune(s.high, r))
		s.high = 0
	case r >= 0xD800 && r <= 0xDBFF:
		s.flush()
		s.high = r
	default:
		s.flush()
		s.b.WriteRune(r)
	}
}

// flush writes a pending unpaired high surrogate as U+FFFD.
func (s *jsString) flush() {
	if s.high != 0 {
		s.b.WriteRune(utf8.RuneError)
		s.high = 0
	}
}

func (s *jsString) String() string {
	s.flush()
	return s.b.String()
}

var singleEscapes = map[byte]rune{
	'b': '\b',
	'f': '\f',
	'n': '\n',
	'r': '\r',
	't': '\t',
	'v': '\v',
}

// decodeEscape decodes one JavaScript escape sequence into sb. Unknown
// escapes stand for the escaped character itself.
func decodeEscape(sb *jsString, seq string) {
	body := strings.TrimPrefix(seq, `\`)
	if body == "" {
		return
	}

	switch c := body[0]; {
	case c == '\n' || c == '\r' || body == "\u2028" || body == "\u2029":
		// Line continuation.
		return
	case c == 'x' && len(body) == 3:
		if v, err := strconv.ParseUint(body[1:], 16, 8); err == nil {
			sb.writeUnit(rune(v))
			return
		}
	case c == 'u' && strings.HasPrefix(body, "u{") && strings.HasSuffix(body, "}"):
		if v, err := strconv.ParseUint(body[2:len(body)-1], 16, 32); err == nil && v <= unicode.MaxRune {
			sb.writeUnit(rune(v))
			return
		}
	case c == 'u' && len(body) == 5:
		if v, err := strconv.ParseUint(body[1:], 16, 16); err == nil {
			sb.writeUnit(rune(v))
			return
		}
	case c >= '0' && c <= '7':
		// Legacy octal takes three digits only when the first is 0-3.
		digits, rest := body, ""
		if len(digits) == 3 && c > '3' {
			digits, rest = body[:2], body[2:]
		}
		if v, err := strconv.ParseUint(digits, 8, 16); err == nil {
			sb.writeUnit(rune(v))
			sb.writeString(rest)
			return
		}
	default:
		if r, ok := singleEscapes[c]; ok && len(body) == 1 {
			sb.writeUnit(r)
			return
		}
	}
	sb.writeString(body)
}

// isTypeOnly reports whether an import/export statement is `import type` / `export type`.
func isTypeOnly(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(uint(i))
		if child.Kind() == "type" && !child.IsNamed() {
			return true
		}
	}
	return false
}
