package chunker

import (
	"strings"

	"docqa/internal/domain"
	"docqa/internal/textproc"
)

// SentenceChunker groups consecutive sentences into chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := textproc.Sentences(document.Content)
	if len(sentences) == 0 {
		return nil, nil
	}
	// Offsets are approximate: each sentence is located after the previous one.
	offsets := make([]int, len(sentences))
	pos := 0
	for i, s := range sentences {
		if at := strings.Index(document.Content[pos:], s); at >= 0 {
			pos += at
		}
		offsets[i] = pos
	}

	var chunks []domain.Chunk
	for i := 0; i < len(sentences); {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, newChunk(document, len(chunks), offsets[i], strings.Join(sentences[i:end], " ")))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}
