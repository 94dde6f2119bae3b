package conversation

import "strings"

// Segment is one piece of a turn's text after fence splitting. Rendering
// collaborators display code segments specially (monospace, highlighting by
// Lang) and prose segments as-is.
type Segment struct {
	// Code reports whether this segment was fenced.
	Code bool

	// Lang is the declared language tag of a fenced block ("go", "python",
	// …). Empty for prose segments and untagged fences.
	Lang string

	// Text is the segment content, without the fence markers.
	Text string
}

// SplitCodeFences splits text on triple-backtick fences into alternating
// prose and code segments. An unterminated fence swallows the rest of the
// text as one code segment. Empty prose runs between fences are dropped.
func SplitCodeFences(text string) []Segment {
	var segs []Segment
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			break
		}
		if prose := text[:start]; prose != "" {
			segs = append(segs, Segment{Text: prose})
		}
		rest := text[start+3:]

		// The language tag is whatever sits between the fence and the
		// first newline.
		lang := ""
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			lang = strings.TrimSpace(rest[:nl])
			rest = rest[nl+1:]
		}

		end := strings.Index(rest, "```")
		if end < 0 {
			segs = append(segs, Segment{Code: true, Lang: lang, Text: rest})
			return segs
		}
		segs = append(segs, Segment{Code: true, Lang: lang, Text: rest[:end]})
		text = rest[end+3:]
	}
	if text != "" {
		segs = append(segs, Segment{Text: text})
	}
	return segs
}
