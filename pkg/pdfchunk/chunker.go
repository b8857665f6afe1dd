// Package pdfchunk splits oversize agenda packets into chunks bounded by
// serialized size and page count so each fits a single extraction and
// summarization pass.
package pdfchunk

import (
	"fmt"

	"github.com/agendawatch/agendawatch/pkg/config"
)

// Chunk is one slice of a packet. Pages are zero-based and inclusive.
type Chunk struct {
	Content     []byte
	StartPage   int
	EndPage     int
	ChunkNumber int
	TotalChunks int
	SizeBytes   int64
}

// Engine abstracts the PDF operations the chunker needs. The production
// implementation wraps pdfcpu; tests substitute synthetic page sizes.
type Engine interface {
	// PageCount returns the number of pages in the document.
	PageCount(pdf []byte) (int, error)

	// ExtractRange serializes pages from..to (1-based, inclusive) as a
	// standalone PDF.
	ExtractRange(pdf []byte, from, to int) ([]byte, error)
}

// Chunker splits PDFs under the configured caps.
type Chunker struct {
	cfg    *config.ChunkerConfig
	engine Engine
}

// New creates a Chunker over the given engine.
func New(cfg *config.ChunkerConfig, engine Engine) *Chunker {
	return &Chunker{cfg: cfg, engine: engine}
}

// NeedsSplit reports whether a packet exceeds either cap.
func (c *Chunker) NeedsSplit(pdf []byte) (bool, error) {
	if int64(len(pdf)) > c.cfg.MaxBytes {
		return true, nil
	}
	pages, err := c.engine.PageCount(pdf)
	if err != nil {
		return false, fmt.Errorf("counting pages: %w", err)
	}
	return pages > c.cfg.MaxPages, nil
}

// Split cuts the packet into ordered chunks, each within MaxBytes and
// MaxPages. Page sizes are measured by serializing one page at a time; a
// page is added to the current chunk only while both caps hold.
func (c *Chunker) Split(pdf []byte) ([]Chunk, error) {
	totalPages, err := c.engine.PageCount(pdf)
	if err != nil {
		return nil, fmt.Errorf("counting pages: %w", err)
	}
	if totalPages == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	var chunks []Chunk
	startPage := 1
	var accSize int64

	flush := func(endPage int) error {
		content, err := c.engine.ExtractRange(pdf, startPage, endPage)
		if err != nil {
			return fmt.Errorf("extracting pages %d-%d: %w", startPage, endPage, err)
		}
		chunks = append(chunks, Chunk{
			Content:     content,
			StartPage:   startPage - 1,
			EndPage:     endPage - 1,
			ChunkNumber: len(chunks) + 1,
			SizeBytes:   accSize,
		})
		startPage = endPage + 1
		accSize = 0
		return nil
	}

	for page := 1; page <= totalPages; page++ {
		single, err := c.engine.ExtractRange(pdf, page, page)
		if err != nil {
			return nil, fmt.Errorf("measuring page %d: %w", page, err)
		}
		pageSize := int64(len(single))

		pagesInChunk := page - startPage
		if pagesInChunk > 0 && (accSize+pageSize > c.cfg.MaxBytes || pagesInChunk >= c.cfg.MaxPages) {
			if err := flush(page - 1); err != nil {
				return nil, err
			}
		}
		accSize += pageSize
	}
	if err := flush(totalPages); err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks, nil
}

// PromptPrefix returns the instruction identifying a chunk's page range.
// Single-chunk documents get no prefix.
func PromptPrefix(chunk Chunk) string {
	if chunk.TotalChunks <= 1 {
		return ""
	}
	return fmt.Sprintf(
		"This is chunk %d of %d, covering pages %d through %d of the full packet. Summarize only this portion.\n\n",
		chunk.ChunkNumber, chunk.TotalChunks, chunk.StartPage+1, chunk.EndPage+1)
}

// Section is one summarized chunk ready for stitching.
type Section struct {
	Index     int
	StartPage int
	EndPage   int
	Text      string
}

// stitchPreamble opens every stitched multi-chunk summary.
const stitchPreamble = "This agenda packet was summarized in sections due to its size.\n\n"

// Stitch assembles the final summary: the fixed overview preamble, then
// each chunk's text labeled with its page range. A single section is
// returned verbatim.
func Stitch(sections []Section) string {
	if len(sections) == 1 {
		return sections[0].Text
	}
	out := stitchPreamble
	for _, s := range sections {
		out += fmt.Sprintf("Section %d (Pages %d-%d)\n%s\n\n", s.Index, s.StartPage, s.EndPage, s.Text)
	}
	return out
}
