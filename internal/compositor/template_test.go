package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablepress/backend/internal/book"
)

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{
		"child_name": "Mila",
		"child_age":  "5",
	}

	tests := []struct {
		name    string
		layer   book.TextLayer
		want    string
		wantErr string
	}{
		{
			name:  "substitutes placeholders",
			layer: book.TextLayer{TextTemplate: "{child_name} is {child_age}!", TemplateEngine: "format"},
			want:  "Mila is 5!",
		},
		{
			name:  "empty engine defaults to format",
			layer: book.TextLayer{TextTemplate: "Hello {child_name}"},
			want:  "Hello Mila",
		},
		{
			name:  "doubled braces escape",
			layer: book.TextLayer{TextTemplate: "{{literal}} {child_name}"},
			want:  "{literal} Mila",
		},
		{
			name:  "no placeholders",
			layer: book.TextLayer{TextTemplate: "The End"},
			want:  "The End",
		},
		{
			name:    "unknown placeholder",
			layer:   book.TextLayer{TextTemplate: "Hi {nobody}"},
			wantErr: `unknown placeholder "nobody"`,
		},
		{
			name:    "unclosed placeholder",
			layer:   book.TextLayer{TextTemplate: "Hi {child_name"},
			wantErr: "unclosed placeholder",
		},
		{
			name:    "stray closing brace",
			layer:   book.TextLayer{TextTemplate: "oops } here"},
			wantErr: "stray '}'",
		},
		{
			name:    "unsupported engine",
			layer:   book.TextLayer{TextTemplate: "x", TemplateEngine: "jinja2"},
			wantErr: "unsupported template engine",
		},
		{
			name:    "no text source",
			layer:   book.TextLayer{},
			wantErr: "no text source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(&tt.layer, vars)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
