// Package chunker splits normalized document text into ordered,
// sentence-bounded segments under a character budget. Chunk boundaries are
// deterministic for identical input and budget, which downstream dedupe
// keys rely on.
package chunker

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// Defaults applied when the config leaves a knob at zero.
const (
	DefaultMaxChars     = 4000
	DefaultCharsPerPage = 3000
)

// ErrEmptyDocument is returned when the input text is empty or whitespace.
// This is the fatal precondition case: the upstream text extraction step
// produced nothing usable.
var ErrEmptyDocument = eris.New("chunker: document text is empty")

// sectionHeader matches numbered section headings at line start, e.g.
// "4. Perimeter Security", "Section 3.2 Access Control", "5.1.1 Doors".
var sectionHeader = regexp.MustCompile(`(?m)^\s*(?:Section\s+)?(\d{1,2}(?:\.\d{1,2}){0,3})[.):]?\s+\S`)

// Chunker produces chunks for one document at a time. Safe for concurrent
// use; it holds only configuration.
type Chunker struct {
	maxChars     int
	charsPerPage int
}

// New creates a Chunker, filling unset config values with defaults.
func New(cfg config.ChunkerConfig) *Chunker {
	c := &Chunker{maxChars: cfg.MaxChars, charsPerPage: cfg.CharsPerPage}
	if c.maxChars <= 0 {
		c.maxChars = DefaultMaxChars
	}
	if c.charsPerPage <= 0 {
		c.charsPerPage = DefaultCharsPerPage
	}
	return c
}

// Split chunks the document text. Boundaries fall on sentence ends; a
// chunk exceeds the budget only when a single sentence alone exceeds it.
func (c *Chunker) Split(docHash, text string) ([]model.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	sentences := splitSentences(text)
	sections := sectionOffsets(text)

	var chunks []model.Chunk
	start := sentences[0].start
	end := start

	flush := func() {
		if end <= start {
			return
		}
		idx := len(chunks)
		chunkText := text[start:end]
		chunks = append(chunks, model.Chunk{
			ID:         model.ChunkID(docHash, idx),
			Index:      idx,
			Text:       chunkText,
			StartChar:  start,
			EndChar:    end,
			PageStart:  start/c.charsPerPage + 1,
			PageEnd:    (end-1)/c.charsPerPage + 1,
			TokenCount: estimateTokens(chunkText),
			Section:    sectionAt(sections, start),
		})
	}

	for _, s := range sentences {
		if s.end-start > c.maxChars && end > start {
			flush()
			start = s.start
		}
		end = s.end
	}
	flush()

	zap.L().Debug("chunker: split document",
		zap.String("document", docHash),
		zap.Int("sentences", len(sentences)),
		zap.Int("chunks", len(chunks)),
	)

	return chunks, nil
}

// Sentences returns the trimmed sentence texts of the input, in order.
// Used by the candidate generator to walk chunk text sentence by sentence
// with the same boundaries the chunker itself uses.
func Sentences(text string) []string {
	spans := splitSentences(text)
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		if t := strings.TrimSpace(text[s.start:s.end]); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type sentence struct {
	start, end int
}

// splitSentences walks the text and records sentence spans. A sentence
// ends at '.', '!', '?' followed by whitespace, or at a blank line.
// Offsets are byte offsets into the original text.
func splitSentences(text string) []sentence {
	var out []sentence
	start := -1

	isTerminator := func(b byte) bool {
		return b == '.' || b == '!' || b == '?'
	}

	for i := 0; i < len(text); i++ {
		b := text[i]

		if start < 0 {
			if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
				continue
			}
			start = i
		}

		// Blank line ends the current sentence even without a terminator.
		if b == '\n' && i+1 < len(text) && text[i+1] == '\n' {
			out = append(out, sentence{start: start, end: i})
			start = -1
			continue
		}

		if isTerminator(b) && (i+1 == len(text) || isSpace(text[i+1])) {
			out = append(out, sentence{start: start, end: i + 1})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, sentence{start: start, end: len(text)})
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

type sectionMark struct {
	offset int
	number string
}

// sectionOffsets finds numbered section headings and their byte offsets,
// in document order.
func sectionOffsets(text string) []sectionMark {
	matches := sectionHeader.FindAllStringSubmatchIndex(text, -1)
	marks := make([]sectionMark, 0, len(matches))
	for _, m := range matches {
		marks = append(marks, sectionMark{
			offset: m[0],
			number: text[m[2]:m[3]],
		})
	}
	return marks
}

// sectionAt returns the number of the last section heading at or before
// the given offset, or "".
func sectionAt(marks []sectionMark, offset int) string {
	current := ""
	for _, m := range marks {
		if m.offset > offset {
			break
		}
		current = m.number
	}
	return current
}

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
)

// estimateTokens counts tokens with the cl100k_base encoding; if the
// encoding cannot be loaded it falls back to a chars/4 estimate so
// chunking never depends on the tokenizer being available.
func estimateTokens(text string) int {
	encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			zap.L().Warn("chunker: tokenizer unavailable, using char estimate", zap.Error(err))
			return
		}
		encoder = enc
	})
	if encoder == nil {
		return len(text) / 4
	}
	return len(encoder.Encode(text, nil, nil))
}
