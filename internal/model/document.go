package model

import (
	"fmt"
	"time"
)

// Document identifies one ingested guidance document. Immutable once
// created; chunks and records reference it by hash.
type Document struct {
	Hash     string     `json:"hash"`
	Filename string     `json:"filename"`
	DocType  string     `json:"doc_type,omitempty"`
	Agency   string     `json:"agency,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
}

// Chunk is an ordered, sentence-bounded segment of a document's text.
// Never mutated after creation; re-chunking identical text with an
// identical budget must reproduce identical chunks.
type Chunk struct {
	ID         string `json:"id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	PageStart  int    `json:"page_start"`
	PageEnd    int    `json:"page_end"`
	TokenCount int    `json:"token_count,omitempty"`
	// Section is the last section number seen at or before this chunk
	// (e.g. "4.2"), empty if the document has no numbered sections.
	Section string `json:"section,omitempty"`
}

// ChunkID builds the stable chunk identifier for a document hash and index.
func ChunkID(docHash string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docHash, index)
}
