package answer

import "strings"

// Answer modes.
const (
	ModeGeneral   = "general"
	ModeKnowledge = "knowledge"
)

// smalltalk phrases answered without retrieval.
var smalltalkPhrases = []string{
	"hello", "hi", "hey", "yo", "good morning", "good afternoon",
	"good evening", "how are you", "how's it going", "thanks", "thank you",
	"bye", "goodbye", "see you", "ok", "okay", "cool", "nice",
}

// knowledge markers that indicate an information-seeking question.
var knowledgeMarkers = []string{
	"what", "who", "when", "where", "why", "how", "which",
	"explain", "describe", "compare", "summarize", "tell me about",
	"list", "define", "difference between",
}

// DetectMode classifies a message as general chat or a knowledge question.
// Deterministic and purely textual: smalltalk wins, then question markers,
// then message shape.
func DetectMode(message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.TrimRight(normalized, ".!?")

	for _, phrase := range smalltalkPhrases {
		if normalized == phrase || strings.HasPrefix(normalized, phrase+" ") {
			return ModeGeneral
		}
	}

	lower := strings.ToLower(message)
	for _, marker := range knowledgeMarkers {
		if strings.HasPrefix(normalized, marker+" ") || strings.Contains(lower, " "+marker+" ") {
			return ModeKnowledge
		}
	}
	if strings.Contains(message, "?") {
		return ModeKnowledge
	}

	// short statements without question markers read as chat
	if len(strings.Fields(normalized)) <= 3 {
		return ModeGeneral
	}
	return ModeKnowledge
}
