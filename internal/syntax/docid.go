package syntax

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// predefinedTypes maps C# keyword types to their metadata names.
var predefinedTypes = map[string]string{
	"bool":    "System.Boolean",
	"byte":    "System.Byte",
	"sbyte":   "System.SByte",
	"char":    "System.Char",
	"decimal": "System.Decimal",
	"double":  "System.Double",
	"float":   "System.Single",
	"int":     "System.Int32",
	"uint":    "System.UInt32",
	"nint":    "System.IntPtr",
	"nuint":   "System.UIntPtr",
	"long":    "System.Int64",
	"ulong":   "System.UInt64",
	"short":   "System.Int16",
	"ushort":  "System.UInt16",
	"object":  "System.Object",
	"string":  "System.String",
	"dynamic": "System.Object",
	"void":    "System.Void",
}

// referenceKeywords are predefined types whose nullable annotation is erased.
var referenceKeywords = map[string]bool{
	"string":  true,
	"object":  true,
	"dynamic": true,
}

// parameterList formats a parameter list node as "(T1,T2)". It returns ""
// for a nil or empty list. Type names that are not predefined cannot be
// resolved syntactically and are emitted as written.
func (w *walker) parameterList(list *sitter.Node, sc scope, methodParams []string) string {
	if list == nil {
		return ""
	}
	var typeParams []string
	for _, t := range sc.types {
		typeParams = append(typeParams, t.typeParams...)
	}
	f := typeFormatter{src: w.src, typeParams: typeParams, methodParams: methodParams}

	var parts []string
	for _, p := range namedChildren(list) {
		if p.Type() != "parameter" {
			continue
		}
		t := p.ChildByFieldName("type")
		if t == nil {
			continue
		}
		s := f.format(t)
		if w.byRef(p) {
			s += "@"
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (w *walker) byRef(p *sitter.Node) bool {
	for _, child := range allChildren(p) {
		switch child.Type() {
		case "ref", "out", "in":
			return true
		case "parameter_modifier", "modifier":
			switch child.Content(w.src) {
			case "ref", "out", "in":
				return true
			}
		}
	}
	return false
}

type typeFormatter struct {
	src          []byte
	typeParams   []string
	methodParams []string
}

func (f typeFormatter) format(n *sitter.Node) string {
	switch n.Type() {
	case "predefined_type":
		kw := n.Content(f.src)
		if name, ok := predefinedTypes[kw]; ok {
			return name
		}
		return kw
	case "identifier":
		return f.identifier(n.Content(f.src))
	case "qualified_name":
		q := n.ChildByFieldName("qualifier")
		name := n.ChildByFieldName("name")
		if q == nil || name == nil {
			return compact(n.Content(f.src))
		}
		return f.format(q) + "." + f.format(name)
	case "alias_qualified_name":
		if name := n.ChildByFieldName("name"); name != nil {
			return f.format(name)
		}
	case "generic_name":
		return f.generic(n)
	case "array_type":
		elem := n.ChildByFieldName("type")
		rank := n.ChildByFieldName("rank")
		if elem == nil {
			break
		}
		dims := 1
		if rank != nil {
			dims += strings.Count(rank.Content(f.src), ",")
		}
		if dims == 1 {
			return f.format(elem) + "[]"
		}
		bounds := make([]string, dims)
		for i := range bounds {
			bounds[i] = "0:"
		}
		return f.format(elem) + "[" + strings.Join(bounds, ",") + "]"
	case "nullable_type":
		inner := n.ChildByFieldName("type")
		if inner == nil {
			inner = n.NamedChild(0)
		}
		if inner == nil {
			break
		}
		if inner.Type() == "predefined_type" && !referenceKeywords[inner.Content(f.src)] {
			return "System.Nullable{" + f.format(inner) + "}"
		}
		return f.format(inner)
	case "pointer_type":
		if inner := n.NamedChild(0); inner != nil {
			return f.format(inner) + "*"
		}
	case "tuple_type":
		var elems []string
		for _, el := range namedChildren(n) {
			if t := el.ChildByFieldName("type"); t != nil {
				elems = append(elems, f.format(t))
			} else if el.NamedChildCount() > 0 {
				elems = append(elems, f.format(el.NamedChild(0)))
			}
		}
		return "System.ValueTuple{" + strings.Join(elems, ",") + "}"
	}
	return strings.NewReplacer("<", "{", ">", "}").Replace(compact(n.Content(f.src)))
}

func (f typeFormatter) identifier(name string) string {
	for i, p := range f.methodParams {
		if p == name {
			return fmt.Sprintf("``%d", i)
		}
	}
	for i, p := range f.typeParams {
		if p == name {
			return fmt.Sprintf("`%d", i)
		}
	}
	return name
}

func (f typeFormatter) generic(n *sitter.Node) string {
	var name string
	var args []string
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "identifier":
			name = child.Content(f.src)
		case "type_argument_list":
			for _, a := range namedChildren(child) {
				args = append(args, f.format(a))
			}
		}
	}
	if name == "" {
		name = compact(n.Content(f.src))
		if i := strings.IndexByte(name, '<'); i >= 0 {
			name = name[:i]
		}
	}
	return name + "{" + strings.Join(args, ",") + "}"
}
