// Package tfconfig loads a directory of Terraform configuration files into
// an immutable in-memory representation. Parsing is structural (blocks and
// attributes via HCL syntax) but never evaluates expressions: interpolation
// and references are carried as opaque text and classified, not resolved.
package tfconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/rs/zerolog"
)

// DefaultExtension is the file extension recognized by default.
const DefaultExtension = ".tf"

// LoadError is the fatal loader failure: the configuration directory does
// not exist or cannot be read. Individual file problems are never a
// LoadError; they are recorded on the affected document instead.
type LoadError struct {
	Dir string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load configuration directory %s: %v", e.Dir, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader reads infrastructure configuration files from disk.
type Loader struct {
	logger     zerolog.Logger
	extensions []string
}

// NewLoader creates a loader recognizing the default .tf extension.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:     logger.With().Str("component", "config-loader").Logger(),
		extensions: []string{DefaultExtension},
	}
}

// LoadDirectory reads every recognized file in dir (top level, the way the
// infrastructure tool itself globs *.tf) and returns the parsed set.
// A missing or unreadable directory returns a *LoadError; a file that fails
// to parse yields a document flagged unparsable and the load continues.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) (*Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{Dir: dir, Err: fmt.Errorf("not a directory")}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Dir: dir, Err: err}
	}

	set := &Set{Dir: dir}
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if entry.IsDir() || !l.recognized(entry.Name()) {
			continue
		}

		doc, err := l.loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			// Unreadable file inside an otherwise readable directory:
			// record it as an unparsable document, not a fatal error.
			doc = &Document{
				Path:        filepath.Join(dir, entry.Name()),
				Name:        entry.Name(),
				Diagnostics: []string{fmt.Sprintf("cannot read file: %v", err)},
			}
		}
		set.Documents = append(set.Documents, doc)
	}

	sort.Slice(set.Documents, func(i, j int) bool {
		return set.Documents[i].Name < set.Documents[j].Name
	})

	l.logger.Debug().
		Str("dir", dir).
		Int("documents", len(set.Documents)).
		Int("unparsable", len(set.Unparsable())).
		Msg("Configuration directory loaded")

	return set, nil
}

// LoadFile parses a single file into a document.
func (l *Loader) LoadFile(path string) (*Document, error) {
	return l.loadFile(path)
}

func (l *Loader) recognized(name string) bool {
	for _, ext := range l.extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func (l *Loader) loadFile(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Path:   path,
		Name:   filepath.Base(path),
		Source: src,
	}

	file, diags := hclsyntax.ParseConfig(src, path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		for _, d := range diags.Errs() {
			doc.Diagnostics = append(doc.Diagnostics, d.Error())
		}
		l.logger.Warn().
			Str("file", doc.Name).
			Int("problems", len(doc.Diagnostics)).
			Msg("File could not be parsed, keeping raw text only")
		return doc, nil
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		doc.Diagnostics = append(doc.Diagnostics, "unexpected body type from parser")
		return doc, nil
	}

	doc.Blocks = convertBody(body, src)
	return doc, nil
}

// convertBody converts an HCL syntax body into Block structures. Top-level
// bodies in Terraform only contain blocks, but nested bodies mix blocks and
// attributes.
func convertBody(body *hclsyntax.Body, src []byte) []*Block {
	blocks := make([]*Block, 0, len(body.Blocks))
	for _, hb := range body.Blocks {
		blocks = append(blocks, convertBlock(hb, src))
	}
	return blocks
}

func convertBlock(hb *hclsyntax.Block, src []byte) *Block {
	b := &Block{
		Type:       hb.Type,
		Labels:     append([]string(nil), hb.Labels...),
		Attributes: make(map[string]Attribute, len(hb.Body.Attributes)),
		Range:      hb.DefRange(),
	}

	for name, attr := range hb.Body.Attributes {
		b.Attributes[name] = convertAttribute(name, attr, src)
	}
	b.Blocks = convertBody(hb.Body, src)

	return b
}

func convertAttribute(name string, attr *hclsyntax.Attribute, src []byte) Attribute {
	rng := attr.Expr.Range()
	a := Attribute{
		Name:    name,
		RawText: rawText(src, rng),
		Range:   rng,
	}

	if trav, ok := attr.Expr.(*hclsyntax.ScopeTraversalExpr); ok {
		a.Reference = true
		a.ReferenceRoot = trav.Traversal.RootName()
		return a
	}

	// Literal resolution with an empty evaluation context: anything that
	// references variables, locals or functions stays opaque.
	val, diags := attr.Expr.Value(nil)
	if !diags.HasErrors() && val.IsWhollyKnown() {
		a.Value = val
	}
	return a
}

func rawText(src []byte, rng hcl.Range) string {
	start, end := rng.Start.Byte, rng.End.Byte
	if start < 0 || end > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}
