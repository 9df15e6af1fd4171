// Package parser turns the token stream of a template into directives and
// segments, flattening include directives as it goes.
package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/tokenizer"
)

// DefaultMaxIncludeDepth bounds include nesting so that include cycles
// terminate with a diagnostic.
const DefaultMaxIncludeDepth = 64

// Options configures a parse.
type Options struct {
	Logger          logging.Logger
	MaxIncludeDepth int
}

type parser struct {
	pt       *ParsedTemplate
	resolver IncludeResolver
	logger   logging.Logger
	maxDepth int

	// seen holds the canonical identity of every document included so far,
	// across all nesting levels.
	seen map[string]bool
	// deferred collects helper sections of included documents, directives
	// after their first helper included; they are appended to the root once
	// the whole parse completes.
	deferred []Item
}

// Parse reads every token of tok into a ParsedTemplate. Includes are
// resolved through resolver, which may be nil when includes are not
// supported. Problems are reported through the template's diagnostics.
func Parse(tok *tokenizer.Tokenizer, resolver IncludeResolver, opts Options) *ParsedTemplate {
	maxDepth := opts.MaxIncludeDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxIncludeDepth
	}

	p := &parser{
		pt:       NewParsedTemplate(tok.File(), tok.Content()),
		resolver: resolver,
		logger:   logging.OrNop(opts.Logger).WithComponent("parser"),
		maxDepth: maxDepth,
		seen:     make(map[string]bool),
	}

	p.parseDocument(tok, false, 0)
	for _, it := range p.deferred {
		p.pt.add(it)
	}

	return p.pt
}

// ParseString parses content named file.
func ParseString(content, file string, resolver IncludeResolver, opts Options) *ParsedTemplate {
	return Parse(tokenizer.New(content, file), resolver, opts)
}

// ParseFile reads and parses the template at path. Includes default to a
// FileIncludeResolver when resolver is nil.
func ParseFile(path string, resolver IncludeResolver, opts Options) (*ParsedTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileOperationError("read template", path, err)
	}
	if resolver == nil {
		resolver = &FileIncludeResolver{}
	}
	return ParseString(string(data), path, resolver, opts), nil
}

func (p *parser) parseDocument(tok *tokenizer.Tokenizer, included bool, depth int) {
	dir := ""
	if tok.File() != "" {
		dir = filepath.Dir(tok.File())
	}

	// Everything from the first helper of an included document on belongs
	// to its helper section.
	deferring := false
	replay := false

	for {
		if !replay {
			ok, err := tok.Advance()
			if err != nil {
				p.pt.Diagnostics.AddError(err)
				return
			}
			if !ok {
				return
			}
		}
		replay = false

		switch tok.State() {
		case tokenizer.EOF:
			return

		case tokenizer.Content, tokenizer.Block, tokenizer.Expression, tokenizer.Helper:
			if tok.State() == tokenizer.Helper && included {
				deferring = true
			}
			if tok.Value() == "" {
				continue
			}
			seg := &Segment{
				Kind:     segmentKind(tok.State()),
				Text:     tok.Value(),
				Start:    tok.Location(),
				End:      tok.TagEnd(),
				TagStart: tok.TagStart(),
			}
			if deferring {
				p.deferred = append(p.deferred, seg)
			} else {
				p.pt.add(seg)
			}

		case tokenizer.Directive:
			d, err := p.readDirective(tok)
			if err != nil {
				p.pt.Diagnostics.AddError(err)
				return
			}
			// readDirective stops on the first token after the directive.
			replay = true
			if d == nil {
				continue
			}
			if d.Is("include") {
				p.include(d, dir, depth)
				continue
			}
			if deferring {
				p.deferred = append(p.deferred, d)
			} else {
				p.pt.add(d)
			}

		default:
			p.pt.Errorf(tok.Location(), errors.CodeUnexpectedCharacter,
				"unexpected %s token", tok.State())
		}
	}
}

func (p *parser) readDirective(tok *tokenizer.Tokenizer) (*Directive, error) {
	tagStart := tok.TagStart()
	var d *Directive
	attName := ""

	for {
		ok, err := tok.Advance()
		if err != nil {
			return nil, err
		}

		switch tok.State() {
		case tokenizer.DirectiveName:
			if d == nil {
				d = &Directive{
					Name:       tok.Value(),
					Attributes: NewAttributes(),
					Start:      tok.Location(),
					TagStart:   tagStart,
				}
				continue
			}
			if attName != "" {
				p.pt.Warnf(tok.Location(), errors.CodeMalformedDirective,
					"attribute '%s' of directive '%s' has no value", attName, d.Name)
			}
			attName = tok.Value()

		case tokenizer.DirectiveValue:
			if d != nil && attName != "" {
				d.Attributes.Set(attName, tok.Value())
			}
			attName = ""

		default:
			if d == nil {
				p.pt.Errorf(tagStart, errors.CodeMalformedDirective, "directive has no name")
				return nil, nil
			}
			if attName != "" {
				p.pt.Warnf(d.Start, errors.CodeMalformedDirective,
					"attribute '%s' of directive '%s' has no value", attName, d.Name)
			}
			d.End = tok.DirectiveEnd()
			return d, nil
		}

		if !ok {
			return d, nil
		}
	}
}

func (p *parser) include(d *Directive, dir string, depth int) {
	file, ok := d.Attributes.Get("file")
	if !ok || file == "" {
		p.pt.Errorf(d.Start, errors.CodeIncludeMissingFile, "include directive has no file attribute")
		return
	}

	// Only "true" turns once on.
	once := false
	if v, ok := d.Attributes.Get("once"); ok {
		once = strings.EqualFold(v, "true")
		if !once && !strings.EqualFold(v, "false") {
			p.pt.Warnf(d.Start, errors.CodeInvalidAttribute,
				"include once attribute has invalid value '%s'; the file is included every time", v)
		}
	}

	if depth >= p.maxDepth {
		p.pt.Errorf(d.Start, errors.CodeIncludeTooDeep,
			"include '%s' exceeds the maximum nesting depth of %d", file, p.maxDepth)
		return
	}

	content, identity, found := p.resolve(file, dir)
	if !found {
		p.pt.Errorf(d.Start, errors.CodeIncludeNotFound, "could not resolve include file '%s'", file)
		return
	}

	if once && p.seen[identity] {
		p.logger.Debug(context.Background(), "skipping include already read", "file", identity)
		return
	}
	p.seen[identity] = true
	p.pt.includes = append(p.pt.includes, identity)

	p.logger.Debug(context.Background(), "including file", "file", identity, "depth", depth+1)
	p.parseDocument(tokenizer.New(content, identity), true, depth+1)
}

// resolve tries name relative to the including document's directory, then
// as requested.
func (p *parser) resolve(name, dir string) (string, string, bool) {
	if p.resolver == nil {
		return "", "", false
	}
	if dir != "" && !filepath.IsAbs(name) {
		if content, identity, ok := p.resolver.ResolveInclude(filepath.Join(dir, name)); ok {
			return content, identity, true
		}
	}
	return p.resolver.ResolveInclude(name)
}

func segmentKind(s tokenizer.State) SegmentKind {
	switch s {
	case tokenizer.Block:
		return BlockSegment
	case tokenizer.Expression:
		return ExpressionSegment
	case tokenizer.Helper:
		return HelperSegment
	default:
		return ContentSegment
	}
}
