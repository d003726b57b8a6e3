package answer

import (
	"encoding/json"

	"github.com/hopline-ai/hopline/internal/llm"
)

// Block is one unit of structured answer output.
type Block struct {
	Type     string   `json:"type"`
	Content  string   `json:"content,omitempty"`
	Items    []string `json:"items,omitempty"`
	Language string   `json:"language,omitempty"`
}

// Block types produced by the parser.
const (
	BlockParagraph = "paragraph"
	BlockList      = "list"
	BlockCode      = "code"
	BlockHeading   = "heading"
)

// Source is provenance attached to an answer.
type Source struct {
	Title  string  `json:"title"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Paragraph wraps text as a single paragraph block.
func Paragraph(text string) Block {
	return Block{Type: BlockParagraph, Content: text}
}

type blockEnvelope struct {
	Blocks []json.RawMessage `json:"blocks"`
}

// ParseLLMJSON parses model output into blocks. It strips optional code
// fences and accepts a {"blocks": [...]} envelope; anything unparseable is
// wrapped as a single paragraph. Never fails, always returns at least one
// block.
func ParseLLMJSON(text string) []Block {
	stripped := llm.StripCodeFences(text)

	var envelope blockEnvelope
	if err := json.Unmarshal([]byte(stripped), &envelope); err != nil || envelope.Blocks == nil {
		return []Block{Paragraph(text)}
	}

	blocks := make([]Block, 0, len(envelope.Blocks))
	for _, raw := range envelope.Blocks {
		var b Block
		if err := json.Unmarshal(raw, &b); err != nil {
			continue
		}
		if b.Type == "" {
			b.Type = BlockParagraph
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return []Block{Paragraph(text)}
	}
	return blocks
}
