// Package chunk parses snippet code with tree-sitter to recover the
// symbol names and imports that feed the lexical index.
package chunk

// SymbolType classifies a declaration.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeMethod    SymbolType = "method"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeVariable  SymbolType = "variable"
)

// Symbol is a named declaration found in a snippet.
type Symbol struct {
	Name      string
	Type      SymbolType
	StartLine int // 1-indexed, relative to the snippet
	EndLine   int
}

// LanguageConfig lists the node types that declare symbols or imports.
type LanguageConfig struct {
	Name        string
	Extensions  []string
	SymbolTypes map[string]SymbolType
	ImportTypes []string
}

// Tree is a parsed snippet.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a detached copy of a tree-sitter node.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a row/column position.
type Point struct {
	Row    uint32 // 0-indexed
	Column uint32
}
