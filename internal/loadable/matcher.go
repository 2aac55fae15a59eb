// Package loadable recognizes loadable() wrapper calls in parsed JavaScript and
// TypeScript programs and extracts their generated metadata.
//
// The recognized shape is the output of the dynamic() / loadable() compiler
// transform:
//
//	loadable(() => import("./Hello"), {
//	  loadableGenerated: { modules: ["pages/index.js -> ./Hello"] },
//	})
//
// The first argument must be, or contain, a dynamic import() call. A later
// argument must be an object literal carrying a loadableGenerated object.
package loadable

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/loadmap/internal/parsers"
)

// GeneratedKey is the reserved property holding compiler-generated metadata.
const GeneratedKey = "loadableGenerated"

// Version identifies the extraction rules. Persisted results computed under a
// different version are not reused.
const Version = "1"

// Match walks the whole program and returns the merged metadata of every
// loadable wrapper call, or nil when the program contains none.
//
// Properties whose key or value is not a static string shape are skipped. A
// wrapper whose loadableGenerated object yields no usable property still
// counts as a match and produces an empty, non-nil ActionMap.
func Match(p *parsers.Program) *ActionMap {
	m := &matcher{
		prog:   p,
		values: make(map[string][]value),
	}
	parsers.Walk(p.Root(), m.visit)

	if m.calls == 0 {
		return nil
	}
	return m.build()
}

// value is one extracted property value: a string or a list of strings.
type value struct {
	scalar string
	list   []string
	isList bool
}

// matcher accumulates properties across every wrapper call in one program.
type matcher struct {
	prog   *parsers.Program
	calls  int
	values map[string][]value // key -> one value per contributing call, in document order
}

func (m *matcher) visit(n *sitter.Node) bool {
	if n.Kind() != "call_expression" {
		return true
	}

	argsNode := n.ChildByFieldName("arguments")
	if argsNode == nil || argsNode.Kind() != "arguments" {
		return true
	}

	args := parsers.NamedChildren(argsNode)
	if len(args) < 2 || !m.loadsDynamically(args[0]) {
		return true
	}

	for _, arg := range args[1:] {
		obj := unwrap(arg)
		if obj.Kind() != "object" {
			continue
		}
		generated, found := m.generatedObject(obj)
		if !found {
			continue
		}
		m.calls++
		if generated != nil {
			m.collect(generated)
		}
		break
	}

	// Nested wrapper calls inside the arguments are matched on their own.
	return true
}

// loadsDynamically reports whether node is an import() call, or a function
// whose body performs one.
func (m *matcher) loadsDynamically(node *sitter.Node) bool {
	node = unwrap(node)
	switch node.Kind() {
	case "call_expression":
		return isImportCall(node)
	case "arrow_function", "function_expression", "function":
		found := false
		parsers.Walk(node.ChildByFieldName("body"), func(n *sitter.Node) bool {
			if found {
				return false
			}
			if n.Kind() == "call_expression" && isImportCall(n) {
				found = true
				return false
			}
			return true
		})
		return found
	}
	return false
}

// generatedObject finds the loadableGenerated property of an options object.
// found is true when the property exists; obj is nil if its value is not an
// object literal.
func (m *matcher) generatedObject(options *sitter.Node) (obj *sitter.Node, found bool) {
	for _, prop := range parsers.NamedChildren(options) {
		if prop.Kind() != "pair" {
			continue
		}
		name, ok := m.propertyName(prop.ChildByFieldName("key"))
		if !ok || name != GeneratedKey {
			continue
		}
		v := unwrap(prop.ChildByFieldName("value"))
		if v == nil || v.Kind() != "object" {
			return nil, true
		}
		return v, true
	}
	return nil, false
}

// collect extracts the static properties of one loadableGenerated object.
func (m *matcher) collect(obj *sitter.Node) {
	local := make(map[string]value)
	var order []string

	for _, prop := range parsers.NamedChildren(obj) {
		if prop.Kind() != "pair" {
			continue // shorthand, spread and method properties carry no static value
		}
		name, ok := m.propertyName(prop.ChildByFieldName("key"))
		if !ok {
			continue
		}
		v, ok := m.literal(prop.ChildByFieldName("value"))
		if !ok {
			continue
		}
		if _, seen := local[name]; !seen {
			order = append(order, name)
		}
		local[name] = v // later duplicates win, as in JavaScript
	}

	for _, name := range order {
		m.values[name] = append(m.values[name], local[name])
	}
}

// propertyName returns the static name of an object key.
func (m *matcher) propertyName(key *sitter.Node) (string, bool) {
	if key == nil {
		return "", false
	}
	switch key.Kind() {
	case "property_identifier", "number":
		return m.prog.Text(key), true
	case "string":
		return parsers.StringValue(key, m.prog.Source)
	}
	return "", false
}

// literal extracts a static string or string array value.
func (m *matcher) literal(node *sitter.Node) (value, bool) {
	node = unwrap(node)
	if node == nil {
		return value{}, false
	}

	if node.Kind() == "array" {
		list := []string{}
		for _, el := range parsers.NamedChildren(node) {
			s, ok := m.stringish(el)
			if !ok {
				return value{}, false
			}
			list = append(list, s)
		}
		return value{list: list, isList: true}, true
	}

	s, ok := m.stringish(node)
	if !ok {
		return value{}, false
	}
	return value{scalar: s}, true
}

// stringish evaluates string literals, substitution-free templates and `+`
// concatenations of them.
func (m *matcher) stringish(node *sitter.Node) (string, bool) {
	node = unwrap(node)
	if node == nil {
		return "", false
	}

	if node.Kind() == "binary_expression" {
		op := node.ChildByFieldName("operator")
		if op == nil || op.Kind() != "+" {
			return "", false
		}
		left, ok := m.stringish(node.ChildByFieldName("left"))
		if !ok {
			return "", false
		}
		right, ok := m.stringish(node.ChildByFieldName("right"))
		if !ok {
			return "", false
		}
		return left + right, true
	}

	return parsers.StringValue(node, m.prog.Source)
}

// build merges every contribution into one ActionMap. A key contributed by a
// single call keeps its value. A key contributed by several calls becomes a
// JSON array of all their strings, flattened and de-duplicated in document
// order, so no call's metadata is dropped.
func (m *matcher) build() *ActionMap {
	pairs := make(map[string]string, len(m.values))
	for key, contributions := range m.values {
		if len(contributions) == 1 {
			if rendered, ok := render(contributions[0]); ok {
				pairs[key] = rendered
			}
			continue
		}

		seen := make(map[string]bool)
		merged := []string{}
		for _, c := range contributions {
			items := c.list
			if !c.isList {
				items = []string{c.scalar}
			}
			for _, item := range items {
				if !seen[item] {
					seen[item] = true
					merged = append(merged, item)
				}
			}
		}
		if rendered, ok := render(value{list: merged, isList: true}); ok {
			pairs[key] = rendered
		}
	}
	return NewActionMap(pairs)
}

func render(v value) (string, bool) {
	if !v.isList {
		return v.scalar, true
	}
	data, err := marshalJSON(v.list)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// isImportCall reports whether call is a dynamic import() expression.
func isImportCall(call *sitter.Node) bool {
	fn := call.ChildByFieldName("function")
	return fn != nil && fn.Kind() == "import"
}

// unwrap strips parentheses and TypeScript type assertions around an expression.
func unwrap(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Kind() {
		case "parenthesized_expression", "as_expression", "satisfies_expression", "non_null_expression":
			inner := parsers.NamedChildren(node)
			if len(inner) == 0 {
				return node
			}
			node = inner[0]
		default:
			return node
		}
	}
	return nil
}
