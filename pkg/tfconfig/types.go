package tfconfig

import (
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Attribute is a single attribute inside a block. The expression is never
// evaluated against a variable scope; literals are resolved statically and
// everything else is kept as opaque source text.
type Attribute struct {
	// Name is the attribute name.
	Name string

	// RawText is the exact source text of the attribute expression.
	RawText string

	// Reference is true when the expression is a bare traversal such as
	// var.sso_session_duration or local.tags.
	Reference bool

	// ReferenceRoot is the root symbol of the traversal ("var", "local",
	// "data", ...) when Reference is true.
	ReferenceRoot string

	// Value is the statically known literal value, or cty.NilVal when the
	// expression is not a self-contained literal.
	Value cty.Value

	// Range is the source range of the expression.
	Range hcl.Range
}

// IsVariableRef reports whether the attribute is sourced from an input
// variable rather than a hard-coded value.
func (a Attribute) IsVariableRef() bool {
	return a.Reference && a.ReferenceRoot == "var"
}

// StringLiteral returns the attribute value as a string when it is a known
// string literal.
func (a Attribute) StringLiteral() (string, bool) {
	if a.Value == cty.NilVal || !a.Value.IsKnown() || a.Value.Type() != cty.String {
		return "", false
	}
	return a.Value.AsString(), true
}

// BoolLiteral returns the attribute value as a bool when it is a known bool
// literal.
func (a Attribute) BoolLiteral() (bool, bool) {
	if a.Value == cty.NilVal || !a.Value.IsKnown() || a.Value.Type() != cty.Bool {
		return false, false
	}
	return a.Value.True(), true
}

// NumberLiteral returns the attribute value as a float64 when it is a known
// numeric literal.
func (a Attribute) NumberLiteral() (float64, bool) {
	if a.Value == cty.NilVal || !a.Value.IsKnown() || a.Value.Type() != cty.Number {
		return 0, false
	}
	f, _ := a.Value.AsBigFloat().Float64()
	return f, true
}

// StringList returns the attribute value as a string slice when it is a
// known list or tuple of string literals.
func (a Attribute) StringList() ([]string, bool) {
	if a.Value == cty.NilVal || !a.Value.IsKnown() {
		return nil, false
	}
	t := a.Value.Type()
	if !t.IsTupleType() && !t.IsListType() && !t.IsSetType() {
		return nil, false
	}
	var out []string
	for it := a.Value.ElementIterator(); it.Next(); {
		_, v := it.Element()
		if !v.IsKnown() || v.Type() != cty.String {
			return nil, false
		}
		out = append(out, v.AsString())
	}
	return out, true
}

// ObjectKeys returns the sorted key set of the attribute value when it is a
// known object or map literal.
func (a Attribute) ObjectKeys() ([]string, bool) {
	if a.Value == cty.NilVal || !a.Value.IsKnown() {
		return nil, false
	}
	t := a.Value.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return nil, false
	}
	var keys []string
	for it := a.Value.ElementIterator(); it.Next(); {
		k, _ := it.Element()
		if k.Type() == cty.String {
			keys = append(keys, k.AsString())
		}
	}
	sort.Strings(keys)
	return keys, true
}

// Block is a named declaration unit: a resource, variable, provider or any
// other top-level or nested HCL block.
type Block struct {
	// Type is the block type tag, e.g. "resource" or "variable".
	Type string

	// Labels are the block labels, e.g. ["aws_s3_bucket", "intents_raw"].
	Labels []string

	// Attributes maps attribute name to attribute. Keys are unique within
	// a block by HCL grammar.
	Attributes map[string]Attribute

	// Blocks are nested blocks in declaration order.
	Blocks []*Block

	// Range is the source range of the block definition.
	Range hcl.Range
}

// Address renders the block as a dotted address, e.g.
// "resource.aws_s3_bucket.intents_raw".
func (b *Block) Address() string {
	parts := append([]string{b.Type}, b.Labels...)
	return strings.Join(parts, ".")
}

// FirstLabel returns the first label, or "" when the block has none.
func (b *Block) FirstLabel() string {
	if len(b.Labels) == 0 {
		return ""
	}
	return b.Labels[0]
}

// Attr looks up an attribute by name.
func (b *Block) Attr(name string) (Attribute, bool) {
	a, ok := b.Attributes[name]
	return a, ok
}

// Descendants returns the block and all nested blocks, depth first.
func (b *Block) Descendants() []*Block {
	out := []*Block{b}
	for _, nb := range b.Blocks {
		out = append(out, nb.Descendants()...)
	}
	return out
}

// NestedOfType returns all nested blocks (at any depth) with the given type.
func (b *Block) NestedOfType(blockType string) []*Block {
	var out []*Block
	for _, d := range b.Descendants() {
		if d != b && d.Type == blockType {
			out = append(out, d)
		}
	}
	return out
}

// Document is one parsed infrastructure file. Documents are immutable once
// the loader returns them.
type Document struct {
	// Path is the file path as given to the loader.
	Path string

	// Name is the base file name, e.g. "iam-users-groups.tf".
	Name string

	// Source holds the raw file bytes so text-level checks can run even
	// when structural parsing failed.
	Source []byte

	// Blocks are the top-level blocks. Nil when the file is unparsable.
	Blocks []*Block

	// Diagnostics holds parse problems. A document with diagnostics is
	// flagged unparsable but does not abort the run.
	Diagnostics []string
}

// Parsed reports whether the document was structurally parsed.
func (d *Document) Parsed() bool {
	return len(d.Diagnostics) == 0
}

// ContainsText reports whether the raw source contains the substring.
func (d *Document) ContainsText(s string) bool {
	return strings.Contains(string(d.Source), s)
}

// AllBlocks returns every block in the document, nested blocks included.
func (d *Document) AllBlocks() []*Block {
	var out []*Block
	for _, b := range d.Blocks {
		out = append(out, b.Descendants()...)
	}
	return out
}

// BlockRef pairs a block with the document that declares it, so rule
// diagnostics can name the offending file.
type BlockRef struct {
	Doc   *Document
	Block *Block
}

// Set is the immutable snapshot of a loaded configuration directory that
// rules evaluate against.
type Set struct {
	// Dir is the directory the set was loaded from.
	Dir string

	// Documents are the loaded documents, sorted by file name.
	Documents []*Document
}

// Document returns the document with the given base name, or nil.
func (s *Set) Document(name string) *Document {
	for _, d := range s.Documents {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// BlocksOfType returns every block (nested included) with the given type
// tag across all parsed documents.
func (s *Set) BlocksOfType(blockType string) []BlockRef {
	var out []BlockRef
	for _, d := range s.Documents {
		for _, b := range d.AllBlocks() {
			if b.Type == blockType {
				out = append(out, BlockRef{Doc: d, Block: b})
			}
		}
	}
	return out
}

// ResourcesOfType returns every "resource" block whose resource type (first
// label) is one of the given types.
func (s *Set) ResourcesOfType(resourceTypes ...string) []BlockRef {
	want := make(map[string]bool, len(resourceTypes))
	for _, t := range resourceTypes {
		want[t] = true
	}
	var out []BlockRef
	for _, ref := range s.BlocksOfType("resource") {
		if want[ref.Block.FirstLabel()] {
			out = append(out, ref)
		}
	}
	return out
}

// Variables returns all declared input variables keyed by variable name.
func (s *Set) Variables() map[string]BlockRef {
	out := make(map[string]BlockRef)
	for _, ref := range s.BlocksOfType("variable") {
		if name := ref.Block.FirstLabel(); name != "" {
			out[name] = ref
		}
	}
	return out
}

// Unparsable returns the documents that failed structural parsing.
func (s *Set) Unparsable() []*Document {
	var out []*Document
	for _, d := range s.Documents {
		if !d.Parsed() {
			out = append(out, d)
		}
	}
	return out
}
