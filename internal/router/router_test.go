package router

import (
	"testing"
)

func testRules() map[string][]string {
	return map[string][]string{
		ClassCodeEditing: {"claude", "gpt"},
		ClassResearch:    {"perplexity", "claude"},
		ClassGeneralChat: {"claude", "gpt"},
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    string
	}{
		{"Please refactor this function", ClassCodeEditing},
		{"fix the bug in my parser", ClassCodeEditing},
		{"generate a new scaffold for the service", ClassCodeEditing},
		{"write me a template", ClassCodeEditing},
		{"what is a monad", ClassResearch},
		{"tell me about the history of unix", ClassResearch},
		{"find papers with citations on raft", ClassResearch},
		{"automate my deploy workflow in bash", ClassGeneralChat}, // terminal collapses to general
		{"run this shell command", ClassGeneralChat},
		{"good morning", ClassGeneralChat},
		{"REFACTOR THIS", ClassCodeEditing}, // case-insensitive
	}
	for _, tt := range tests {
		if got := Classify(tt.message); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestClassify_BucketOrder(t *testing.T) {
	t.Parallel()

	// "explain this code" matches both code_editing and research;
	// code_editing wins because buckets are checked in order.
	if got := Classify("explain this code"); got != ClassCodeEditing {
		t.Errorf("got %q, want code_editing (first bucket wins)", got)
	}
}

func TestRoute_ExplicitTool(t *testing.T) {
	t.Parallel()

	r := New(testRules(), "claude")
	d := r.Route("refactor everything", "gemini")
	if len(d.Candidates) != 1 || d.Candidates[0] != "gemini" {
		t.Fatalf("candidates = %v, want [gemini]", d.Candidates)
	}
	if d.Reasoning == "" {
		t.Error("reasoning should name the explicit tool")
	}
}

func TestRoute_RuleTable(t *testing.T) {
	t.Parallel()

	r := New(testRules(), "claude")

	d := r.Route("fix this bug", "")
	if d.Class != ClassCodeEditing {
		t.Errorf("class = %q", d.Class)
	}
	if len(d.Candidates) != 2 || d.Candidates[0] != "claude" || d.Candidates[1] != "gpt" {
		t.Errorf("candidates = %v, want rule order preserved", d.Candidates)
	}

	d = r.Route("research the latest paper", "")
	if d.Candidates[0] != "perplexity" {
		t.Errorf("research first candidate = %q, want perplexity", d.Candidates[0])
	}
}

func TestRoute_MissingRuleFallsBack(t *testing.T) {
	t.Parallel()

	r := New(map[string][]string{}, "local")
	d := r.Route("hello there", "")
	if len(d.Candidates) != 1 || d.Candidates[0] != "local" {
		t.Fatalf("candidates = %v, want [local]", d.Candidates)
	}
}

func TestRoute_CandidatesAreACopy(t *testing.T) {
	t.Parallel()

	rules := testRules()
	r := New(rules, "claude")
	d := r.Route("fix this bug", "")
	d.Candidates[0] = "mutated"
	if rules[ClassCodeEditing][0] != "claude" {
		t.Error("mutating a decision must not touch the rule table")
	}
}
