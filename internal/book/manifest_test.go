package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablepress/backend/internal/domain"
)

func TestParseManifest(t *testing.T) {
	data := []byte(`{
		"positive_prompt": "watercolor storybook style",
		"output": {"dpi": 300, "page_size_px": 1024},
		"pages": [
			{
				"page_num": 1,
				"base_key": "templates/demo/pages/01.png",
				"needs_face_swap": false,
				"availability": {"prepay": true, "postpay": true}
			},
			{
				"page_num": 2,
				"base_key": "templates/demo/pages/02.png",
				"needs_face_swap": true,
				"prompt": "riding a dragon",
				"availability": {"prepay": true, "postpay": true},
				"text_layers": [
					{"text_template": "{child_name} flies!", "template_engine": "format"}
				]
			}
		]
	}`)

	m, err := ParseManifest("demo", data)
	require.NoError(t, err)

	assert.Equal(t, "demo", m.Slug)
	assert.Equal(t, "watercolor storybook style", m.PositivePrompt)
	assert.Equal(t, 1024, m.Output.PageSizePx)
	require.Len(t, m.Pages, 2)
	assert.True(t, m.Pages[1].NeedsFaceSwap)
	require.Len(t, m.Pages[1].TextLayers, 1)
	assert.Equal(t, "{child_name} flies!", m.Pages[1].TextLayers[0].TextTemplate)
}

func TestParseManifest_MalformedJSON(t *testing.T) {
	_, err := ParseManifest("demo", []byte("{not json"))

	var mi *domain.ManifestInvalidError
	require.ErrorAs(t, err, &mi)
	assert.Equal(t, "demo", mi.Slug)
	assert.Contains(t, mi.Reason, "malformed JSON")
}

func TestManifest_Validate(t *testing.T) {
	valid := func() *Manifest {
		return &Manifest{
			Slug:   "demo",
			Output: Output{DPI: 300, PageSizePx: 1024},
			Pages: []Page{
				{PageNum: 1, BaseKey: "a.png"},
				{PageNum: 2, BaseKey: "b.png"},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Manifest)
		reason string
	}{
		{
			name:   "valid",
			mutate: func(m *Manifest) {},
		},
		{
			name:   "no pages",
			mutate: func(m *Manifest) { m.Pages = nil },
			reason: "no pages",
		},
		{
			name:   "zero page size",
			mutate: func(m *Manifest) { m.Output.PageSizePx = 0 },
			reason: "output geometry must be positive",
		},
		{
			name:   "page number below one",
			mutate: func(m *Manifest) { m.Pages[0].PageNum = 0 },
			reason: "out of range",
		},
		{
			name: "duplicate page number",
			mutate: func(m *Manifest) {
				m.Pages[1].PageNum = 1
			},
			reason: "duplicate page number",
		},
		{
			name: "gap in page numbers",
			mutate: func(m *Manifest) {
				m.Pages[1].PageNum = 5
			},
			reason: "not contiguous",
		},
		{
			name:   "missing base key",
			mutate: func(m *Manifest) { m.Pages[0].BaseKey = "" },
			reason: "has no base image",
		},
		{
			name: "layer without text source",
			mutate: func(m *Manifest) {
				m.Pages[0].TextLayers = []TextLayer{{TemplateEngine: "format"}}
			},
			reason: "has no text source",
		},
		{
			name: "layer with both text sources",
			mutate: func(m *Manifest) {
				m.Pages[0].TextLayers = []TextLayer{{
					TextTemplate: "hello",
					TextKey:      "texts/hello.txt",
				}}
			},
			reason: "both inline and stored text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)

			err := m.Validate()

			if tt.reason == "" {
				require.NoError(t, err)
				return
			}
			var mi *domain.ManifestInvalidError
			require.ErrorAs(t, err, &mi)
			assert.Contains(t, mi.Reason, tt.reason)
		})
	}
}

func TestManifest_PageByNum(t *testing.T) {
	m := storybook()

	page, ok := m.PageByNum(7)
	require.True(t, ok)
	assert.Equal(t, 7, page.PageNum)

	_, ok = m.PageByNum(99)
	assert.False(t, ok)
}

func TestAvailability_ForStage(t *testing.T) {
	a := Availability{Prepay: true, Postpay: false}

	assert.True(t, a.ForStage(domain.StagePrepay))
	assert.False(t, a.ForStage(domain.StagePostpay))
}
