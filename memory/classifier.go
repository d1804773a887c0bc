package memory

import "strings"

// Classifier assigns a memory type and importance score to a completed
// conversation turn.
//
// Implementations must be pure functions of their two string inputs:
// identical inputs always produce identical output, with no hidden state
// and no I/O. Classification feeds deterministic test fixtures, so an
// LLM-backed implementation must cache or pin its outputs to keep this
// contract.
type Classifier interface {
	Classify(userText, assistantText string) (Type, float64)
}

// RuleClassifier is the default keyword/pattern classifier.
//
// Definitional language marks semantic memory, preference/instruction
// language marks procedural memory, and everything else is recorded as an
// episodic turn. Unclassifiable or empty input degrades to a low-importance
// episodic item; Classify never fails.
type RuleClassifier struct{}

// NewRuleClassifier creates the default rule-based classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

var semanticMarkers = []string{
	"is a", "is an", "is the", "are a", "means", "refers to",
	"stands for", "defined as", "what is", "what are", "explain",
}

var proceduralMarkers = []string{
	"prefer", "always", "never", "don't", "do not", "please use",
	"from now on", "i like", "i want you to", "remember to",
}

// Classify inspects the combined turn text and returns (type, importance).
func (c *RuleClassifier) Classify(userText, assistantText string) (Type, float64) {
	combined := strings.ToLower(strings.TrimSpace(userText + " " + assistantText))
	if combined == "" {
		return TypeEpisodic, 0.3
	}

	for _, marker := range proceduralMarkers {
		if strings.Contains(combined, marker) {
			return TypeProcedural, 0.8
		}
	}
	for _, marker := range semanticMarkers {
		if strings.Contains(combined, marker) {
			return TypeSemantic, 0.7
		}
	}
	return TypeEpisodic, 0.5
}
