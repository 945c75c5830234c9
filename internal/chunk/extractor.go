package chunk

import (
	"context"
	"strings"
	"sync"

	"github.com/Aman-CERP/coderag/internal/store"
)

// Extraction holds what one snippet declares and imports.
type Extraction struct {
	Symbols []Symbol
	Imports []string
}

// SymbolNames returns unique symbol names in declaration order.
func (x Extraction) SymbolNames() []string {
	seen := make(map[string]bool, len(x.Symbols))
	names := make([]string, 0, len(x.Symbols))
	for _, s := range x.Symbols {
		if s.Name == "" || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	return names
}

// Extractor recovers symbols and imports from snippet code.
// It serializes parses over a single tree-sitter parser.
type Extractor struct {
	mu       sync.Mutex
	parser   *Parser
	registry *LanguageRegistry
}

// NewExtractor creates an extractor over the default registry.
func NewExtractor() *Extractor {
	return &Extractor{parser: NewParser(), registry: DefaultRegistry()}
}

// Supports reports whether a snippet's language can be parsed.
func (e *Extractor) Supports(language, filePath string) bool {
	_, ok := e.registry.Resolve(language, filePath)
	return ok
}

// Extract parses code and collects declarations and imports.
// Unsupported languages yield an empty Extraction and no error.
func (e *Extractor) Extract(ctx context.Context, language, filePath, code string) (Extraction, error) {
	lang, ok := e.registry.Resolve(language, filePath)
	if !ok || strings.TrimSpace(code) == "" {
		return Extraction{}, nil
	}
	cfg, _ := e.registry.GetByName(lang)

	source := []byte(code)
	e.mu.Lock()
	tree, err := e.parser.Parse(ctx, source, lang)
	e.mu.Unlock()
	if err != nil {
		return Extraction{}, err
	}

	var out Extraction
	seenImport := make(map[string]bool)
	tree.Root.Walk(func(n *Node) bool {
		if typ, ok := cfg.SymbolTypes[n.Type]; ok {
			if name := symbolName(n, source, lang); name != "" {
				out.Symbols = append(out.Symbols, Symbol{
					Name:      name,
					Type:      typ,
					StartLine: int(n.StartPoint.Row) + 1,
					EndLine:   int(n.EndPoint.Row) + 1,
				})
			}
		}
		for _, it := range cfg.ImportTypes {
			if n.Type != it {
				continue
			}
			for _, imp := range importPaths(n, source, lang) {
				if imp != "" && !seenImport[imp] {
					seenImport[imp] = true
					out.Imports = append(out.Imports, imp)
				}
			}
			return false
		}
		return true
	})
	return out, nil
}

// Enrich fills a snippet's empty Symbols and Imports from its code.
// It reports whether the snippet changed.
func (e *Extractor) Enrich(ctx context.Context, s *store.Snippet) (bool, error) {
	if len(s.Symbols) > 0 && len(s.Imports) > 0 {
		return false, nil
	}
	x, err := e.Extract(ctx, s.Language, s.FilePath, s.Code)
	if err != nil {
		return false, err
	}
	changed := false
	if len(s.Symbols) == 0 {
		if names := x.SymbolNames(); len(names) > 0 {
			s.Symbols = names
			changed = true
		}
	}
	if len(s.Imports) == 0 && len(x.Imports) > 0 {
		s.Imports = x.Imports
		changed = true
	}
	if s.Language == "" {
		if lang, ok := e.registry.Resolve("", s.FilePath); ok {
			s.Language = lang
			changed = true
		}
	}
	return changed, nil
}

// Close releases the parser.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parser.Close()
}

func symbolName(n *Node, source []byte, lang string) string {
	switch lang {
	case "go":
		switch n.Type {
		case "method_declaration":
			return childContent(n, source, "field_identifier")
		case "type_spec":
			return childContent(n, source, "type_identifier")
		default:
			return childContent(n, source, "identifier")
		}
	case "typescript", "tsx", "javascript", "jsx":
		switch n.Type {
		case "method_definition":
			return childContent(n, source, "property_identifier")
		case "variable_declarator":
			// Only declarators bound to functions or classes name a symbol.
			for _, c := range n.Children {
				switch c.Type {
				case "arrow_function", "function", "function_expression", "class":
					return childContent(n, source, "identifier")
				}
			}
			return ""
		default:
			if name := childContent(n, source, "type_identifier"); name != "" {
				return name
			}
			return childContent(n, source, "identifier")
		}
	default:
		return childContent(n, source, "identifier")
	}
}

func importPaths(n *Node, source []byte, lang string) []string {
	switch lang {
	case "go":
		return []string{unquote(childContent(n, source, "interpreted_string_literal"))}
	case "python":
		var out []string
		for _, c := range n.Children {
			switch c.Type {
			case "dotted_name", "relative_import":
				out = append(out, c.GetContent(source))
			case "aliased_import":
				out = append(out, childContent(c, source, "dotted_name"))
			}
			if n.Type == "import_from_statement" && len(out) > 0 {
				// Only the module after "from" is an import path.
				return out[:1]
			}
		}
		return out
	default:
		return []string{unquote(childContent(n, source, "string"))}
	}
}

func childContent(n *Node, source []byte, nodeType string) string {
	if c := n.FindChildByType(nodeType); c != nil {
		return c.GetContent(source)
	}
	return ""
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}
