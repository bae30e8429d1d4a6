// Package syntax extracts documentable declarations from source files with
// tree-sitter and computes their documentation ids.
package syntax

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Kind classifies a declaration.
type Kind string

const (
	KindType     Kind = "type"
	KindMethod   Kind = "method"
	KindProperty Kind = "property"
	KindField    Kind = "field"
	KindEvent    Kind = "event"
)

// Declaration is one documentable declaration found in a file.
type Declaration struct {
	DocID string
	Kind  Kind
	Name  string

	// Span covers the declaration plus the indentation in front of it.
	Span Span

	// Body is the interior of the declaration's body, when it has one.
	Body *Span
}

// Declarations parses src according to the language of path and returns
// its public declarations in source order.
func Declarations(ctx context.Context, path string, src []byte) ([]Declaration, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, nil
	}
	grammar, _ := GrammarForLanguage(lang)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("syntax: parse %s: %w", path, err)
	}
	defer tree.Close()

	w := &walker{src: src}
	w.members(tree.RootNode(), scope{})
	return w.decls, nil
}

// scope is the declaration context of a node: its namespace and the chain
// of containing types.
type scope struct {
	namespace string
	types     []typeFrame
}

type typeFrame struct {
	name       string
	typeParams []string
	kind       string
	public     bool
}

func (s scope) push(f typeFrame) scope {
	types := make([]typeFrame, len(s.types), len(s.types)+1)
	copy(types, s.types)
	return scope{namespace: s.namespace, types: append(types, f)}
}

// qualified returns the dotted name of the innermost type, with generic
// arities, e.g. "Ns.Outer`1.Inner".
func (s scope) qualified() string {
	parts := make([]string, 0, len(s.types)+1)
	if s.namespace != "" {
		parts = append(parts, s.namespace)
	}
	for _, t := range s.types {
		name := t.name
		if n := len(t.typeParams); n > 0 {
			name += fmt.Sprintf("`%d", n)
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ".")
}

func (s scope) container() (typeFrame, bool) {
	if len(s.types) == 0 {
		return typeFrame{}, false
	}
	return s.types[len(s.types)-1], true
}

type walker struct {
	src   []byte
	decls []Declaration
}

var typeDeclarations = map[string]bool{
	"class_declaration":         true,
	"struct_declaration":        true,
	"interface_declaration":     true,
	"record_declaration":        true,
	"record_struct_declaration": true,
	"enum_declaration":          true,
}

// members visits the member declarations directly below n.
func (w *walker) members(n *sitter.Node, sc scope) {
	for _, child := range namedChildren(n) {
		switch t := child.Type(); {
		case t == "namespace_declaration":
			inner := sc
			inner.namespace = joinName(sc.namespace, w.name(child))
			if body := child.ChildByFieldName("body"); body != nil {
				w.members(body, inner)
			}
		case t == "file_scoped_namespace_declaration":
			// Later siblings belong to the namespace; some grammar versions
			// nest them inside the declaration instead.
			sc.namespace = joinName(sc.namespace, w.name(child))
			w.members(child, sc)
		case t == "declaration_list":
			w.members(child, sc)
		case t == "global_statement":
			// A top-level method parses as a local function.
			for _, stmt := range namedChildren(child) {
				if stmt.Type() == "local_function_statement" {
					w.method(stmt, sc)
				}
			}
		case typeDeclarations[t]:
			w.typeDecl(child, sc)
		case t == "delegate_declaration":
			w.delegate(child, sc)
		case t == "method_declaration":
			w.method(child, sc)
		case t == "constructor_declaration":
			w.constructor(child, sc)
		case t == "destructor_declaration":
			w.destructor(child, sc)
		case t == "property_declaration":
			w.property(child, sc)
		case t == "indexer_declaration":
			w.indexer(child, sc)
		case t == "field_declaration":
			w.fields(child, sc, KindField)
		case t == "event_field_declaration":
			w.fields(child, sc, KindEvent)
		case t == "event_declaration":
			w.event(child, sc)
		case t == "enum_member_declaration":
			w.enumMember(child, sc)
		}
	}
}

func (w *walker) typeDecl(n *sitter.Node, sc scope) {
	frame := typeFrame{
		name:       w.name(n),
		typeParams: w.typeParams(n),
		kind:       n.Type(),
		public:     w.isPublic(n, sc),
	}
	if frame.name == "" {
		return
	}
	inner := sc.push(frame)
	body := n.ChildByFieldName("body")
	if frame.public {
		w.add(n, "T:"+inner.qualified(), KindType, frame.name, braceInterior(body, w.src))
	}
	if body != nil {
		w.members(body, inner)
	}
}

func (w *walker) delegate(n *sitter.Node, sc scope) {
	name := w.name(n)
	if name == "" || !w.isPublic(n, sc) {
		return
	}
	inner := sc.push(typeFrame{name: name, typeParams: w.typeParams(n)})
	w.add(n, "T:"+inner.qualified(), KindType, name, nil)
}

func (w *walker) method(n *sitter.Node, sc scope) {
	name := w.name(n)
	if name == "" || !w.isPublic(n, sc) {
		return
	}
	methodParams := w.typeParams(n)
	id := memberPrefix("M:", sc, name)
	if len(methodParams) > 0 {
		id += fmt.Sprintf("``%d", len(methodParams))
	}
	id += w.parameterList(n.ChildByFieldName("parameters"), sc, methodParams)
	w.add(n, id, KindMethod, name, w.memberBody(n))
}

func (w *walker) constructor(n *sitter.Node, sc scope) {
	static := w.hasModifier(n, "static")
	if !static && !w.isPublic(n, sc) {
		return
	}
	name := "#ctor"
	if static {
		name = "#cctor"
	}
	id := memberPrefix("M:", sc, name) + w.parameterList(n.ChildByFieldName("parameters"), sc, nil)
	w.add(n, id, KindMethod, w.name(n), w.memberBody(n))
}

// destructor declarations carry no access modifier; they are documented
// whenever their type is.
func (w *walker) destructor(n *sitter.Node, sc scope) {
	for _, t := range sc.types {
		if !t.public {
			return
		}
	}
	if len(sc.types) == 0 {
		return
	}
	w.add(n, memberPrefix("M:", sc, "Finalize"), KindMethod, "Finalize", w.memberBody(n))
}

func (w *walker) property(n *sitter.Node, sc scope) {
	name := w.name(n)
	if name == "" || !w.isPublic(n, sc) {
		return
	}
	w.add(n, memberPrefix("P:", sc, name), KindProperty, name, w.memberBody(n))
}

func (w *walker) indexer(n *sitter.Node, sc scope) {
	if !w.isPublic(n, sc) {
		return
	}
	id := memberPrefix("P:", sc, "Item") + w.parameterList(n.ChildByFieldName("parameters"), sc, nil)
	w.add(n, id, KindProperty, "this", w.memberBody(n))
}

func (w *walker) event(n *sitter.Node, sc scope) {
	name := w.name(n)
	if name == "" || !w.isPublic(n, sc) {
		return
	}
	w.add(n, memberPrefix("E:", sc, name), KindEvent, name, w.memberBody(n))
}

// fields handles field and field-like event declarations, which declare one
// symbol per variable declarator sharing the declaration's span.
func (w *walker) fields(n *sitter.Node, sc scope, kind Kind) {
	if !w.isPublic(n, sc) {
		return
	}
	prefix := "F:"
	if kind == KindEvent {
		prefix = "E:"
	}
	for _, decl := range namedChildren(n) {
		if decl.Type() != "variable_declaration" {
			continue
		}
		for _, v := range namedChildren(decl) {
			if v.Type() != "variable_declarator" {
				continue
			}
			if name := w.name(v); name != "" {
				w.add(n, memberPrefix(prefix, sc, name), kind, name, nil)
			}
		}
	}
}

func (w *walker) enumMember(n *sitter.Node, sc scope) {
	name := w.name(n)
	if name == "" || !w.isPublic(n, sc) {
		return
	}
	w.add(n, memberPrefix("F:", sc, name), KindField, name, nil)
}

func (w *walker) add(n *sitter.Node, docID string, kind Kind, name string, body *Span) {
	start := int(n.StartByte())
	length := int(n.EndByte()) - start
	w.decls = append(w.decls, Declaration{
		DocID: docID,
		Kind:  kind,
		Name:  name,
		Span:  ExtendSpan(w.src, start, length),
		Body:  body,
	})
}

// isPublic reports whether n is visible as a public declaration: every
// containing type must be public too. Members of interfaces and enums
// without an access modifier take the visibility of their container.
func (w *walker) isPublic(n *sitter.Node, sc scope) bool {
	for _, t := range sc.types {
		if !t.public {
			return false
		}
	}
	if w.hasModifier(n, "public") {
		return true
	}
	parent, ok := sc.container()
	if !ok {
		return false
	}
	switch parent.kind {
	case "enum_declaration":
		return true
	case "interface_declaration":
		for _, m := range []string{"private", "protected", "internal"} {
			if w.hasModifier(n, m) {
				return false
			}
		}
		return true
	}
	return false
}

func (w *walker) hasModifier(n *sitter.Node, word string) bool {
	for _, child := range allChildren(n) {
		t := child.Type()
		if t == word || (t == "modifier" && child.Content(w.src) == word) {
			return true
		}
	}
	return false
}

// name returns the declared name of n: its "name" field, or its first
// identifier child for grammar versions without the field.
func (w *walker) name(n *sitter.Node) string {
	if f := n.ChildByFieldName("name"); f != nil {
		return compact(f.Content(w.src))
	}
	for _, child := range namedChildren(n) {
		if child.Type() == "identifier" {
			return child.Content(w.src)
		}
	}
	return ""
}

func (w *walker) typeParams(n *sitter.Node) []string {
	list := n.ChildByFieldName("type_parameters")
	if list == nil {
		for _, child := range namedChildren(n) {
			if child.Type() == "type_parameter_list" {
				list = child
				break
			}
		}
	}
	if list == nil {
		return nil
	}
	var names []string
	for _, p := range namedChildren(list) {
		if p.Type() == "type_parameter" {
			names = append(names, w.name(p))
		}
	}
	return names
}

// memberBody returns the normalizable body of a method-like or property-like
// member: the interior of its block or accessor list, or the expression of
// an expression body.
func (w *walker) memberBody(n *sitter.Node) *Span {
	if body := n.ChildByFieldName("body"); body != nil {
		if body.Type() == "arrow_expression_clause" {
			return arrowExpression(body)
		}
		return braceInterior(body, w.src)
	}
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "block", "accessor_list":
			return braceInterior(child, w.src)
		case "arrow_expression_clause":
			return arrowExpression(child)
		}
	}
	if acc := n.ChildByFieldName("accessors"); acc != nil {
		return braceInterior(acc, w.src)
	}
	return nil
}

func arrowExpression(n *sitter.Node) *Span {
	expr := n.NamedChild(0)
	if expr == nil {
		return nil
	}
	return &Span{Start: int(expr.StartByte()), Length: int(expr.EndByte() - expr.StartByte())}
}

// braceInterior returns the span strictly between a node's braces.
func braceInterior(n *sitter.Node, src []byte) *Span {
	if n == nil {
		return nil
	}
	start, end := int(n.StartByte()), int(n.EndByte())
	if end-start < 2 || src[start] != '{' || src[end-1] != '}' {
		return nil
	}
	return &Span{Start: start + 1, Length: end - start - 2}
}

func memberPrefix(prefix string, sc scope, name string) string {
	if q := sc.qualified(); q != "" {
		return prefix + q + "." + name
	}
	return prefix + name
}

func joinName(outer, inner string) string {
	if outer == "" {
		return inner
	}
	if inner == "" {
		return outer
	}
	return outer + "." + inner
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

func allChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.Child(i))
	}
	return out
}

// compact removes whitespace from a name such as "A . B".
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
