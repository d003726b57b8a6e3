package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the system prompt templates. They can be overridden from a
// YAML file so prompt tuning does not require a rebuild.
type Prompts struct {
	General       string `yaml:"general"`
	RAG           string `yaml:"rag"`
	Decomposition string `yaml:"decomposition"`
}

const defaultGeneralPrompt = `You are a helpful assistant. Respond with a JSON object of the form
{"blocks": [{"type": "paragraph", "content": "..."}]}.
Valid block types are "paragraph", "heading", "list" (with an "items" array)
and "code" (with a "language" field). Respond with JSON only.`

const defaultRAGPrompt = `You are a helpful assistant answering strictly from the provided context.
If the context does not contain the answer, say you do not have that
information. Respond with a JSON object of the form
{"blocks": [{"type": "paragraph", "content": "..."}]}.
Valid block types are "paragraph", "heading", "list" (with an "items" array)
and "code" (with a "language" field). Respond with JSON only.

Context:
%s`

const defaultDecompositionPrompt = `You evaluate whether retrieved context is sufficient to answer a question.
Respond with a JSON object only, no prose:
{"sufficient": true|false, "queries": ["sub-query", ...]}
If the context fully answers the question, set "sufficient" to true and
"queries" to []. Otherwise set it to false and propose up to 3 focused
sub-queries that would retrieve the missing information.

Context:
%s

Question:
%s`

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() Prompts {
	return Prompts{
		General:       defaultGeneralPrompt,
		RAG:           defaultRAGPrompt,
		Decomposition: defaultDecompositionPrompt,
	}
}

// LoadPrompts reads overrides from a YAML file; missing fields keep their
// defaults. An empty path returns the defaults unchanged.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("parse prompts file: %w", err)
	}

	if override.General != "" {
		prompts.General = override.General
	}
	if override.RAG != "" {
		prompts.RAG = override.RAG
	}
	if override.Decomposition != "" {
		prompts.Decomposition = override.Decomposition
	}
	return prompts, nil
}

// RenderRAG fills the RAG template with the retrieved context.
func (p Prompts) RenderRAG(context string) string {
	return fmt.Sprintf(p.RAG, context)
}

// RenderDecomposition fills the decomposition template.
func (p Prompts) RenderDecomposition(context, question string) string {
	return fmt.Sprintf(p.Decomposition, context, question)
}
