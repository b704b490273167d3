package chunk

import (
	"context"
	"strings"
)

// fallbackChunkLines is the fixed window size the LineChunker groups
// source lines into when no grammar is registered for a file's extension.
const fallbackChunkLines = 100

// LineChunker is a grammar-free Chunker used when a file's extension has
// no registered tree-sitter grammar. It groups source lines into
// fixed-size, non-overlapping windows, each emitted as a single
// top_level chunk.
type LineChunker struct{}

// NewLineChunker builds a LineChunker.
func NewLineChunker() *LineChunker {
	return &LineChunker{}
}

// SupportedExtensions returns nil: the LineChunker accepts any extension,
// it is never itself registered against one.
func (c *LineChunker) SupportedExtensions() []string { return nil }

// Chunk groups file's lines into fixed-size windows.
func (c *LineChunker) Chunk(ctx context.Context, file *FileInput) ([]Chunk, error) {
	if len(file.Content) > MaxFileBytes {
		return nil, nil
	}

	lines := strings.Split(string(file.Content), "\n")
	var chunks []Chunk
	for start := 0; start < len(lines); start += fallbackChunkLines {
		end := start + fallbackChunkLines
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start:end], "\n")
		if countNonBlankLines(text) < MinNonBlankLines {
			continue
		}
		chunks = append(chunks, Chunk{
			FilePath:  file.Path,
			Ordinal:   len(chunks),
			Kind:      KindTopLevel,
			StartLine: start + 1,
			EndLine:   end,
			Text:      text,
			Hash:      hashText(text),
		})
	}
	return chunks, nil
}
