package rag

import (
	"testing"
)

func TestPostProcessSentinels(t *testing.T) {
	tests := []struct {
		name       string
		current    string
		output     string
		wantForget bool
		wantMemory string
	}{
		{
			name:       "forget all signals deletion",
			current:    "- likes Go",
			output:     "FORGET_ALL",
			wantForget: true,
		},
		{
			name:    "no update leaves memory unchanged",
			current: "- likes Go",
			output:  "NO_UPDATE",
		},
		{
			name:    "too short after cleanup",
			current: "",
			output:  "- x",
		},
		{
			name:    "whitespace only",
			current: "",
			output:  "   \n  ",
		},
		{
			name:       "plain extraction with empty current",
			current:    "",
			output:     "- works as a nurse\n- lives in Oslo",
			wantMemory: "- works as a nurse\n- lives in Oslo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := postProcess(tt.current, tt.output)
			if got.Forget != tt.wantForget {
				t.Errorf("Forget = %v, want %v", got.Forget, tt.wantForget)
			}
			if got.Memory != tt.wantMemory {
				t.Errorf("Memory = %q, want %q", got.Memory, tt.wantMemory)
			}
		})
	}
}

func TestPostProcessDropsUncertainLines(t *testing.T) {
	output := "- works as a nurse\n- location is unknown\n- age not mentioned\n- maybe owns a dog\n- lives in Oslo"

	got := postProcess("", output)

	want := "- works as a nurse\n- lives in Oslo"
	if got.Memory != want {
		t.Errorf("got %q, want %q", got.Memory, want)
	}
}

func TestPostProcessStripsCodeFences(t *testing.T) {
	output := "```\n- works as a nurse\n```"

	got := postProcess("", output)

	if got.Memory != "- works as a nurse" {
		t.Errorf("got %q", got.Memory)
	}
}

func TestPostProcessMergesAsSortedSet(t *testing.T) {
	current := "- b fact\n- a fact"
	output := "- c fact\n- a fact"

	got := postProcess(current, output)

	want := "- a fact\n- b fact\n- c fact"
	if got.Memory != want {
		t.Errorf("got %q, want %q", got.Memory, want)
	}
}

func TestPostProcessMergeIdempotent(t *testing.T) {
	current := "- a fact\n- b fact"

	first := postProcess(current, "- b fact")
	second := postProcess(first.Memory, "- b fact")

	if first.Memory != second.Memory {
		t.Errorf("merge not idempotent: %q then %q", first.Memory, second.Memory)
	}
}
