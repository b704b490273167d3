// Package chunk turns source file bytes into AST-aligned, content-hashed
// spans ready for embedding.
package chunk

import (
	"context"
)

// Kind is the closed tag set a Chunk carries. Purely informational — it
// never affects chunk identity or search ranking.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindImpl      Kind = "impl"
	KindTrait     Kind = "trait"
	KindInterface Kind = "interface"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindType      Kind = "type"
	KindModule    Kind = "module"
	KindTopLevel  Kind = "top_level"
)

// Chunk is an indexable code span extracted from one SourceFile. It
// excludes the embedding vector, which is attached later by the indexer.
type Chunk struct {
	FilePath   string // workspace-relative, POSIX-style
	Ordinal    int    // 0-based index within the file, source order
	Kind       Kind
	ParentName string // enclosing symbol name, if any
	StartLine  int    // 1-based, inclusive
	EndLine    int    // 1-based, inclusive
	Text       string // exact source bytes between line boundaries
	Hash       uint64 // 64-bit digest of normalized Text, see hashText
}

// FileInput is the input to a Chunker.
type FileInput struct {
	Path      string // workspace-relative path
	Content   []byte
	Extension string // one of "rs", "py", "js", "ts", "tsx", "jsx"
}

// Chunker splits one file into an ordered sequence of chunks.
//
// It fails with a parse error only when the underlying parser crashes;
// grammars are error-recovering, so syntactically invalid input never
// causes a failure on its own.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]Chunk, error)
	SupportedExtensions() []string
}

// MaxFileBytes is the file-size ceiling above which a file is skipped
// silently (with a warning event) rather than chunked. See spec §4.1.
const MaxFileBytes = 1 << 20 // 1 MiB

// OversizeLines is the line count above which a chunk is considered
// oversize. Oversize chunks are emitted as-is; this version performs no
// forced splitting (resolved Open Question, see SPEC_FULL.md).
const OversizeLines = 400

// MinNonBlankLines is the minimum non-blank line count for a dangling
// top_level chunk to be emitted. Chunks anchored on a named node below
// this threshold are still emitted ("the reranker decides").
const MinNonBlankLines = 3

// Tree is a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig configures chunkable node sets for one grammar.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	ClassTypes     []string // also carries struct_item/enum_item where applicable
	InterfaceTypes []string
	MethodTypes    []string
	TypeDefTypes   []string
	ImplTypes      []string // Rust impl_item
	TraitTypes     []string // Rust trait_item
	ModuleTypes    []string // Rust mod_item

	// KindOf maps a matched node type to its Kind tag.
	KindOf map[string]Kind
}
