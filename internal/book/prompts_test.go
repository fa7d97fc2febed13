package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinPromptParts(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{
			name:  "joins non-empty parts",
			parts: []string{"watercolor style", "riding a dragon"},
			want:  "watercolor style, riding a dragon",
		},
		{
			name:  "skips empty parts",
			parts: []string{"", "child portrait", "  "},
			want:  "child portrait",
		},
		{
			name:  "trims stray commas and whitespace",
			parts: []string{" storybook, ", ",happy child,"},
			want:  "storybook, happy child",
		},
		{
			name:  "all empty",
			parts: []string{"", "  ", ","},
			want:  "",
		},
		{
			name:  "no parts",
			parts: nil,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinPromptParts(tt.parts...))
		})
	}
}
