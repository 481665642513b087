// Package chunker splits documents into overlapping retrieval units.
package chunker

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"docqa/internal/domain"
)

const (
	DefaultWindowSize    = 1000
	DefaultWindowOverlap = 200
)

func newChunk(doc domain.Document, index, offset int, content string) domain.Chunk {
	source := doc.Path
	if source == "" {
		source = doc.ID
	}
	return domain.Chunk{
		ID:         doc.ID + ":" + strconv.Itoa(index),
		DocumentID: doc.ID,
		Source:     filepath.Base(source),
		Content:    content,
		Index:      index,
		Offset:     offset,
	}
}

// WindowChunker cuts text into windows of at most size characters that
// overlap by roughly overlap characters. Cuts prefer paragraph breaks, then
// line breaks, then spaces in the second half of a window.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &WindowChunker{size: size, overlap: overlap}
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Content)
	n := len(runes)
	var chunks []domain.Chunk
	for start := 0; start < n; {
		end := min(start+c.size, n)
		if end < n {
			end = breakPoint(runes, start+c.size/2, end)
		}
		if text := strings.TrimSpace(string(runes[start:end])); text != "" {
			lead := 0
			for lead < end-start && unicode.IsSpace(runes[start+lead]) {
				lead++
			}
			chunks = append(chunks, newChunk(document, len(chunks), start+lead, text))
		}
		if end >= n {
			break
		}
		next := end - c.overlap
		// Start the overlap on a word boundary.
		for next > start && next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		if next <= start || next >= end {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// breakPoint returns the best cut in runes[lo:hi], or hi when none exists.
func breakPoint(runes []rune, lo, hi int) int {
	for i := hi - 1; i > lo; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := hi - 1; i >= lo; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := hi - 1; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return hi
}
