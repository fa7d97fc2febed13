package book

import (
	"encoding/json"
	"fmt"

	"github.com/fablepress/backend/internal/domain"
)

// Availability flags a page into the stages that may generate it.
type Availability struct {
	Prepay  bool `json:"prepay"`
	Postpay bool `json:"postpay"`
}

// ForStage returns the flag for the given stage.
func (a Availability) ForStage(stage domain.Stage) bool {
	if stage == domain.StagePrepay {
		return a.Prepay
	}
	return a.Postpay
}

// TextLayer describes one text overlay on a page.
type TextLayer struct {
	// TextTemplate is an inline template; TextKey points at a stored one.
	// Exactly one must be set.
	TextTemplate string `json:"text_template,omitempty"`
	TextKey      string `json:"text_key,omitempty"`
	// TemplateEngine names the placeholder syntax; only "format" is known.
	TemplateEngine string            `json:"template_engine"`
	TemplateVars   []string          `json:"template_vars,omitempty"`
	FontKey        string            `json:"font_key,omitempty"`
	// Engine selects the rasterizer: "html" (default) or "native".
	Engine string `json:"engine,omitempty"`
	// AllowTitleHTML opts the layer into the title markup whitelist.
	AllowTitleHTML bool              `json:"allow_title_html,omitempty"`
	Style          map[string]string `json:"style,omitempty"`
}

// Page is one illustrated page of the book template.
type Page struct {
	PageNum        int          `json:"page_num"`
	BaseKey        string       `json:"base_key"`
	NeedsFaceSwap  bool         `json:"needs_face_swap"`
	TextLayers     []TextLayer  `json:"text_layers,omitempty"`
	Availability   Availability `json:"availability"`
	Prompt         string       `json:"prompt,omitempty"`
	NegativePrompt string       `json:"negative_prompt,omitempty"`
}

// Output is the print geometry every final page must match.
type Output struct {
	DPI        int `json:"dpi"`
	PageSizePx int `json:"page_size_px"`
}

// Manifest is the full description of one book template.
type Manifest struct {
	Slug string `json:"slug"`
	// PositivePrompt is prepended to every page prompt sent to inference.
	PositivePrompt string `json:"positive_prompt,omitempty"`
	Pages          []Page `json:"pages"`
	Output         Output `json:"output"`
}

// ParseManifest decodes and validates manifest JSON.
func ParseManifest(slug string, data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &domain.ManifestInvalidError{Slug: slug, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if m.Slug == "" {
		m.Slug = slug
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks structural invariants. A manifest failing here is a
// configuration defect, never retried.
func (m *Manifest) Validate() error {
	invalid := func(reason string) error {
		return &domain.ManifestInvalidError{Slug: m.Slug, Reason: reason}
	}

	if len(m.Pages) == 0 {
		return invalid("no pages")
	}
	if m.Output.DPI <= 0 || m.Output.PageSizePx <= 0 {
		return invalid("output geometry must be positive")
	}

	seen := make(map[int]bool, len(m.Pages))
	for _, p := range m.Pages {
		if p.PageNum < 1 {
			return invalid(fmt.Sprintf("page number %d out of range", p.PageNum))
		}
		if seen[p.PageNum] {
			return invalid(fmt.Sprintf("duplicate page number %d", p.PageNum))
		}
		seen[p.PageNum] = true

		if p.BaseKey == "" {
			return invalid(fmt.Sprintf("page %d has no base image", p.PageNum))
		}

		for i, layer := range p.TextLayers {
			if layer.TextTemplate == "" && layer.TextKey == "" {
				return invalid(fmt.Sprintf("page %d layer %d has no text source", p.PageNum, i))
			}
			if layer.TextTemplate != "" && layer.TextKey != "" {
				return invalid(fmt.Sprintf("page %d layer %d has both inline and stored text", p.PageNum, i))
			}
		}
	}

	// Page numbers must be contiguous from 1.
	for n := 1; n <= len(m.Pages); n++ {
		if !seen[n] {
			return invalid(fmt.Sprintf("page numbers not contiguous, missing %d", n))
		}
	}

	return nil
}

// PageByNum returns the page with the given number.
func (m *Manifest) PageByNum(num int) (*Page, bool) {
	for i := range m.Pages {
		if m.Pages[i].PageNum == num {
			return &m.Pages[i], true
		}
	}
	return nil, false
}
