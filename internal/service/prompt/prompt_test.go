package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPrompt_Sections(t *testing.T) {
	tests := []struct {
		name         string
		instructions string
		memory       string
		enabled      bool
		want         string
	}{
		{
			name: "persona only",
			want: Persona,
		},
		{
			name:         "instructions trimmed",
			instructions: "  Be concise.  ",
			want:         Persona + "\n\n## User Instructions\nBe concise.",
		},
		{
			name:         "whitespace instructions omitted",
			instructions: " \n\t",
			want:         Persona,
		},
		{
			name:    "memory disabled",
			memory:  "- likes tea",
			enabled: false,
			want:    Persona,
		},
		{
			name:         "all sections in order",
			instructions: "Be concise.",
			memory:       "- likes tea\n",
			enabled:      true,
			want:         Persona + "\n\n## User Instructions\nBe concise.\n\n## Memory\n- likes tea",
		},
		{
			name:    "empty memory omitted",
			memory:  "   ",
			enabled: true,
			want:    Persona,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildSystemPrompt(tt.instructions, tt.memory, tt.enabled))
		})
	}
}

func TestBuildSystemPrompt_MemoryTruncation(t *testing.T) {
	exact := strings.Repeat("a", MaxMemoryBytes)
	got := BuildSystemPrompt("", exact, true)
	assert.True(t, strings.HasSuffix(got, "## Memory\n"+exact))
	assert.NotContains(t, got, "[memory truncated]")

	over := strings.Repeat("b", MaxMemoryBytes+1)
	got = BuildSystemPrompt("", over, true)
	assert.True(t, strings.HasSuffix(got, "## Memory\n"+strings.Repeat("b", MaxMemoryBytes)+TruncationMarker))
}

func TestBuildSystemPrompt_TruncationSplitsMultiByteRune(t *testing.T) {
	// "é" 占两个字节，跨过上限时只保留第一个字节
	memory := strings.Repeat("a", MaxMemoryBytes-1) + "é"
	assert.Len(t, memory, MaxMemoryBytes+1)

	got := BuildSystemPrompt("", memory, true)
	kept := strings.Repeat("a", MaxMemoryBytes-1) + "\xc3"
	assert.True(t, strings.HasSuffix(got, "## Memory\n"+kept+TruncationMarker))
	assert.False(t, utf8.ValidString(got))
}
