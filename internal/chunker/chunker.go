// Package chunker splits bioMod text into blocks for search indexing.
package chunker

import (
	"strings"
)

const (
	DefaultMaxSize = 2000
)

// Options configures chunking behavior.
type Options struct {
	MaxSize int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{MaxSize: DefaultMaxSize}
}

// ChunkResult is one block of a bioMod file with its position in the text.
// Kind is the block keyword ("segment", "marker", ...) or "header" for the
// lines before the first block.
type ChunkResult struct {
	Kind      string
	Name      string
	Text      string
	StartLine int
	EndLine   int
}

var blockKinds = map[string]bool{
	"segment":     true,
	"marker":      true,
	"contact":     true,
	"musclegroup": true,
	"muscle":      true,
	"viapoint":    true,
}

// Chunk splits text into one chunk per block. Blocks longer than MaxSize are
// split on line boundaries and keep their kind and name.
func Chunk(text string, opts Options) []ChunkResult {
	if opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var results []ChunkResult
	for _, b := range splitBlocks(text) {
		if len(b.Text) > opts.MaxSize {
			results = append(results, hardSplit(b, opts)...)
			continue
		}
		results = append(results, b)
	}
	return results
}

// splitBlocks walks the lines once. Comment-only and blank lines between
// blocks are dropped.
func splitBlocks(text string) []ChunkResult {
	lines := strings.Split(text, "\n")
	var blocks []ChunkResult
	var current []string
	var cur ChunkResult
	inBlock := false
	last := 0

	flush := func(endLine int) {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			cur.Text = t
			cur.EndLine = endLine
			blocks = append(blocks, cur)
		}
		current = nil
		cur = ChunkResult{}
	}

	for i, line := range lines {
		lineNum := i + 1
		fields := strings.Fields(stripComment(line))
		if len(fields) == 0 {
			if inBlock {
				current = append(current, line)
			}
			continue
		}
		kw := strings.ToLower(fields[0])

		if !inBlock && blockKinds[kw] {
			if len(current) > 0 {
				flush(last)
			}
			inBlock = true
			cur = ChunkResult{Kind: kw, StartLine: lineNum}
			if len(fields) > 1 {
				cur.Name = fields[1]
			}
			current = append(current, line)
			last = lineNum
			continue
		}

		if !inBlock && len(current) == 0 {
			cur = ChunkResult{Kind: "header", StartLine: lineNum}
		}
		current = append(current, line)
		last = lineNum
		if inBlock && kw == "end"+cur.Kind {
			flush(lineNum)
			inBlock = false
		}
	}
	if len(current) > 0 {
		flush(last)
	}
	return blocks
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

// hardSplit breaks a block that exceeds MaxSize on line boundaries.
func hardSplit(b ChunkResult, opts Options) []ChunkResult {
	lines := strings.Split(b.Text, "\n")
	var results []ChunkResult
	var current []string
	curStart := b.StartLine
	curLen := 0

	emit := func(end int) {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			results = append(results, ChunkResult{
				Kind:      b.Kind,
				Name:      b.Name,
				Text:      t,
				StartLine: curStart,
				EndLine:   end,
			})
		}
	}

	for i, line := range lines {
		if curLen+len(line) > opts.MaxSize && len(current) > 0 {
			emit(b.StartLine + i - 1)
			current = nil
			curStart = b.StartLine + i
			curLen = 0
		}
		current = append(current, line)
		curLen += len(line) + 1 // +1 for newline
	}
	if len(current) > 0 {
		emit(b.StartLine + len(lines) - 1)
	}
	return results
}
