package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry maps language names and extensions to grammars.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	aliases     map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with Go, TypeScript, JavaScript and Python.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
		aliases: map[string]string{
			"golang": "go",
			"ts":     "typescript",
			"js":     "javascript",
			"py":     "python",
		},
	}
	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	return r
}

// Resolve picks a registered language from a snippet's language tag,
// falling back to its file extension.
func (r *LanguageRegistry) Resolve(language, filePath string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := r.aliases[name]; ok {
		name = alias
	}
	if _, ok := r.configs[name]; ok {
		return name, true
	}
	if lang, ok := r.extToLang[strings.ToLower(filepath.Ext(filePath))]; ok {
		return lang, true
	}
	return "", false
}

// GetByName returns the configuration for a registered language.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetTreeSitterLanguage returns the grammar for a registered language.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

func (r *LanguageRegistry) registerLanguage(cfg *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = tsLang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	r.registerLanguage(&LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		SymbolTypes: map[string]SymbolType{
			"function_declaration": SymbolTypeFunction,
			"method_declaration":   SymbolTypeMethod,
			"type_spec":            SymbolTypeType,
			"const_spec":           SymbolTypeConstant,
			"var_spec":             SymbolTypeVariable,
		},
		ImportTypes: []string{"import_spec"},
	}, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	symbols := map[string]SymbolType{
		"function_declaration":   SymbolTypeFunction,
		"method_definition":      SymbolTypeMethod,
		"class_declaration":      SymbolTypeClass,
		"interface_declaration":  SymbolTypeInterface,
		"type_alias_declaration": SymbolTypeType,
		"variable_declarator":    SymbolTypeVariable,
	}
	imports := []string{"import_statement"}
	r.registerLanguage(&LanguageConfig{
		Name: "typescript", Extensions: []string{".ts"},
		SymbolTypes: symbols, ImportTypes: imports,
	}, typescript.GetLanguage())
	r.registerLanguage(&LanguageConfig{
		Name: "tsx", Extensions: []string{".tsx"},
		SymbolTypes: symbols, ImportTypes: imports,
	}, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	symbols := map[string]SymbolType{
		"function_declaration": SymbolTypeFunction,
		"method_definition":    SymbolTypeMethod,
		"class_declaration":    SymbolTypeClass,
		"variable_declarator":  SymbolTypeVariable,
	}
	imports := []string{"import_statement"}
	r.registerLanguage(&LanguageConfig{
		Name: "javascript", Extensions: []string{".js", ".mjs", ".cjs"},
		SymbolTypes: symbols, ImportTypes: imports,
	}, javascript.GetLanguage())
	r.registerLanguage(&LanguageConfig{
		Name: "jsx", Extensions: []string{".jsx"},
		SymbolTypes: symbols, ImportTypes: imports,
	}, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	r.registerLanguage(&LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		SymbolTypes: map[string]SymbolType{
			"function_definition": SymbolTypeFunction,
			"class_definition":    SymbolTypeClass,
		},
		ImportTypes: []string{"import_statement", "import_from_statement"},
	}, python.GetLanguage())
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
