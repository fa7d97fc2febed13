package compositor

import (
	"fmt"
	"strings"

	"github.com/fablepress/backend/internal/book"
)

// RenderTemplate resolves a layer's text through its template engine.
// Only the "format" engine exists: {name} placeholders substituted from
// vars, doubled braces escaping literal ones. Unknown placeholders and
// unknown engines are errors; book text must never silently ship with a
// hole in it.
func RenderTemplate(layer *book.TextLayer, vars map[string]string) (string, error) {
	template := layer.TextTemplate
	if template == "" {
		// Stored text resolved upstream lands in TextKey as a literal.
		template = layer.TextKey
	}
	if template == "" {
		return "", fmt.Errorf("text layer has no text source")
	}

	engine := strings.ToLower(strings.TrimSpace(layer.TemplateEngine))
	if engine == "" {
		engine = "format"
	}
	if engine != "format" {
		return "", fmt.Errorf("unsupported template engine %q", layer.TemplateEngine)
	}

	return formatTemplate(template, vars)
}

func formatTemplate(template string, vars map[string]string) (string, error) {
	var out strings.Builder
	out.Grow(len(template))

	for i := 0; i < len(template); {
		ch := template[i]
		switch ch {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				out.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			name := template[i+1 : i+end]
			value, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("unknown placeholder %q", name)
			}
			out.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				out.WriteByte('}')
				i += 2
				continue
			}
			return "", fmt.Errorf("stray '}' at offset %d", i)
		default:
			out.WriteByte(ch)
			i++
		}
	}

	return out.String(), nil
}
