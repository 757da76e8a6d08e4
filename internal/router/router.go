// Package router classifies chat messages into task classes and maps each
// class to an ordered list of candidate tools.
package router

import (
	"strings"
)

// Task classes.
const (
	ClassCodeEditing = "code_editing"
	ClassResearch    = "research"
	ClassGeneralChat = "general_chat"
)

// Keyword buckets, checked in order. First match wins; the terminal bucket
// exists only to classify automation phrasing, which still routes through
// the general rule.
var (
	codeEditingKeywords = []string{
		"refactor", "edit", "fix", "bug", "function", "class", "import",
		"code", "file", "module", "package", "syntax", "error", "compile",
		"test", "debug", "implement", "rewrite", "optimize",
		// Generation phrasing routes to the same tools as editing.
		"generate", "create", "write", "make", "build", "new",
		"scaffold", "boilerplate", "template",
	}
	researchKeywords = []string{
		"research", "find", "search", "what is", "explain", "how does",
		"information", "article", "paper", "source", "citation",
		"reference", "learn about", "tell me about", "investigate",
	}
	terminalKeywords = []string{
		"run", "execute", "command", "terminal", "shell", "script",
		"automate", "workflow", "cli", "bash", "zsh",
	}
)

// Decision is the routing outcome: an ordered candidate list plus a
// human-readable rationale.
type Decision struct {
	Class      string
	Candidates []string
	Reasoning  string
}

// Router maps task classes to ordered tool lists.
type Router struct {
	rules       map[string][]string
	defaultTool string
}

// New creates a Router from the configured rule table and default tool.
func New(rules map[string][]string, defaultTool string) *Router {
	return &Router{rules: rules, defaultTool: defaultTool}
}

// Classify returns the task class for a message.
func Classify(message string) string {
	m := strings.ToLower(message)
	if containsAny(m, codeEditingKeywords) {
		return ClassCodeEditing
	}
	if containsAny(m, researchKeywords) {
		return ClassResearch
	}
	if containsAny(m, terminalKeywords) {
		// Automation requests have no dedicated rule; the general list
		// serves them.
		return ClassGeneralChat
	}
	return ClassGeneralChat
}

func containsAny(m string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(m, k) {
			return true
		}
	}
	return false
}

// Route returns the ordered candidate tools for a message. A non-empty
// explicitTool short-circuits classification entirely.
func (r *Router) Route(message, explicitTool string) Decision {
	if explicitTool != "" {
		return Decision{
			Class:      "explicit",
			Candidates: []string{explicitTool},
			Reasoning:  "explicit tool requested: " + explicitTool,
		}
	}

	class := Classify(message)
	candidates := r.rules[class]
	if len(candidates) == 0 {
		return Decision{
			Class:      class,
			Candidates: []string{r.defaultTool},
			Reasoning:  "no rule for class " + class + ", using default tool " + r.defaultTool,
		}
	}
	// Copy so callers cannot mutate the rule table.
	out := make([]string, len(candidates))
	copy(out, candidates)
	return Decision{
		Class:      class,
		Candidates: out,
		Reasoning:  "classified as " + class,
	}
}
