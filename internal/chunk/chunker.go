package chunk

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// CodeChunker is the tree-sitter-backed Chunker. It walks the parsed AST
// for one of the closed grammar set (rust, python, javascript, jsx,
// typescript, tsx), emits one Chunk per matched named node, and folds any
// source lines not covered by a matched node into a single top_level
// chunk per file.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	fallback *LineChunker
}

// NewCodeChunker builds a CodeChunker over the default language registry.
func NewCodeChunker() *CodeChunker {
	registry := DefaultRegistry()
	return &CodeChunker{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		fallback: NewLineChunker(),
	}
}

// Close releases the underlying tree-sitter parser.
func (c *CodeChunker) Close() {
	c.parser.Close()
}

// SupportedExtensions reports the closed extension set this chunker parses.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits file into an ordered slice of chunks. Files above
// MaxFileBytes are skipped (nil, nil); the caller is expected to log a
// warning event for the skip, since this package has no logger of its own.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]Chunk, error) {
	if len(file.Content) > MaxFileBytes {
		return nil, nil
	}
	if !strings.HasPrefix(file.Extension, ".") {
		file.Extension = "." + file.Extension
	}

	lang, ok := c.registry.GetByExtension(file.Extension)
	if !ok {
		return c.fallback.Chunk(ctx, file)
	}

	tree, err := c.parser.Parse(ctx, file.Content, lang.Name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file.Path, err)
	}

	matches := findSymbolNodes(tree.Root, lang, file.Content)
	sortMatches(matches)

	chunks := make([]Chunk, 0, len(matches)+1)
	covered := make([]bool, len(file.Content))
	for i, m := range matches {
		text := m.node.GetContent(file.Content)
		startLine := int(m.node.StartPoint.Row) + 1
		endLine := int(m.node.EndPoint.Row) + 1
		chunks = append(chunks, Chunk{
			FilePath:   file.Path,
			Ordinal:    i,
			Kind:       m.kind,
			ParentName: m.parentName,
			StartLine:  startLine,
			EndLine:    endLine,
			Text:       text,
			Hash:       hashText(text),
		})
		markCovered(covered, m.node.StartByte, m.node.EndByte)
	}

	if topLevel, ok := buildTopLevelChunk(file, covered, len(chunks)); ok {
		chunks = append(chunks, topLevel)
	}

	return chunks, nil
}

type symbolMatch struct {
	node       *Node
	kind       Kind
	parentName string
}

// findSymbolNodes walks the tree depth-first, collecting every node whose
// type is chunkable for lang. parentName is the nearest enclosing matched
// node's symbol name, so a method chunk records the class/impl it belongs
// to.
func findSymbolNodes(root *Node, lang *LanguageConfig, source []byte) []symbolMatch {
	var matches []symbolMatch
	var walk func(n *Node, parentName string)
	walk = func(n *Node, parentName string) {
		kind, matched := lang.KindOf[n.Type]
		switch {
		case matched && n.Type == "mod_item":
			// Only a mod_item whose body holds at least one item is chunkable.
			matched = false
			for _, c := range n.Children {
				if c.Type == "declaration_list" && len(c.Children) > 2 {
					matched = true
				}
			}
		case !matched && n.Type == "variable_declarator":
			// An arrow_function bound to a named variable (JS/TS).
			for _, c := range n.Children {
				if c.Type == "arrow_function" {
					kind, matched = KindFunction, true
				}
			}
		}
		nextParent := parentName
		if matched {
			name := symbolName(n, source)
			matches = append(matches, symbolMatch{node: n, kind: kind, parentName: parentName})
			if name != "" {
				nextParent = name
			}
		}
		for _, child := range n.Children {
			walk(child, nextParent)
		}
	}
	walk(root, "")
	return matches
}

// sortMatches orders matches by byte offset ascending; when two nodes
// start at the same offset the larger span (the outer node) sorts first,
// so a file's chunk ordinals always place an enclosing chunk before the
// chunks nested within it.
func sortMatches(matches []symbolMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].node, matches[j].node
		if a.StartByte != b.StartByte {
			return a.StartByte < b.StartByte
		}
		return (a.EndByte - a.StartByte) > (b.EndByte - b.StartByte)
	})
}

// symbolName looks for the first direct child that is plausibly this
// node's name, covering every identifier node type used across the
// closed grammar set.
func symbolName(n *Node, source []byte) string {
	for _, c := range n.Children {
		switch c.Type {
		case "identifier", "type_identifier", "property_identifier", "field_identifier":
			return c.GetContent(source)
		}
	}
	// Rust impl_item's target type and trait_item/mod_item names can sit
	// nested one level deeper (e.g. impl Trait for Type).
	for _, c := range n.Children {
		if name := symbolName(c, source); name != "" {
			return name
		}
	}
	return ""
}

func markCovered(covered []bool, start, end uint32) {
	if int(end) > len(covered) {
		end = uint32(len(covered))
	}
	for i := start; i < end; i++ {
		covered[i] = true
	}
}

// buildTopLevelChunk folds every byte not claimed by a matched symbol into
// a single top_level chunk, emitted only when it has at least
// MinNonBlankLines non-blank lines (spec §4.1).
func buildTopLevelChunk(file *FileInput, covered []bool, ordinal int) (Chunk, bool) {
	var b strings.Builder
	start := -1
	for i, c := range covered {
		if !c {
			if start == -1 {
				start = i
			}
			b.WriteByte(file.Content[i])
		}
	}
	if start == -1 {
		return Chunk{}, false
	}

	text := b.String()
	if countNonBlankLines(text) < MinNonBlankLines {
		return Chunk{}, false
	}

	startLine := strings.Count(string(file.Content[:start]), "\n") + 1
	endLine := startLine + strings.Count(text, "\n")

	return Chunk{
		FilePath:  file.Path,
		Ordinal:   ordinal,
		Kind:      KindTopLevel,
		StartLine: startLine,
		EndLine:   endLine,
		Text:      text,
		Hash:      hashText(text),
	}, true
}

func countNonBlankLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// hashText computes the 64-bit content digest stored as Chunk.Hash.
// Line endings are normalized to "\n" and trailing whitespace is
// stripped per line before hashing, so re-saving a file with only
// whitespace churn does not invalidate cached embeddings.
func hashText(text string) uint64 {
	normalized := normalizeForHash(text)
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalized))
	return h.Sum64()
}

func normalizeForHash(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
