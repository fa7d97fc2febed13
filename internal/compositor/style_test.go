package compositor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTextStyle(t *testing.T) {
	s := DefaultTextStyle()

	assert.Equal(t, 70, s.FontSize)
	assert.Equal(t, 600, s.FontWeight)
	assert.Equal(t, 1.15, s.LineHeight)
	assert.Equal(t, []int{0, 20, 40, 60}, s.ShadowBlur)
	assert.Equal(t, 1611, s.BoxW)
	assert.Equal(t, 1784, s.BoxH)
	assert.Equal(t, 451, s.Top)
	assert.Equal(t, -36, s.MarginLeft)
	assert.Equal(t, "pre-line", s.WhiteSpace)
}

func TestTextStyle_Merge(t *testing.T) {
	s := DefaultTextStyle().Merge(map[string]string{
		"font_size":    "90",
		"text_align":   "center",
		"shadow_blur":  "0, 10, 20",
		"line_height":  "1.4",
		"margin_left":  "12",
		"stroke_width": "6",
		"unknown_key":  "ignored",
		"font_weight":  "not-a-number",
	})

	assert.Equal(t, 90, s.FontSize)
	assert.Equal(t, "center", s.TextAlign)
	assert.Equal(t, []int{0, 10, 20}, s.ShadowBlur)
	assert.Equal(t, 1.4, s.LineHeight)
	assert.Equal(t, 12, s.MarginLeft)
	assert.Equal(t, 6, s.StrokeWidth)
	// Unparsable override keeps the default.
	assert.Equal(t, 600, s.FontWeight)
}

func TestTextStyle_TitleSizes(t *testing.T) {
	s := DefaultTextStyle()
	big, small := s.titleSizes()
	assert.Equal(t, 150, big) // 70+80 beats 70*2
	assert.Equal(t, 70, small)

	s.FontSize = 100
	big, small = s.titleSizes()
	assert.Equal(t, 200, big) // 100*2 beats 100+80
	assert.Equal(t, 100, small)

	s = s.Merge(map[string]string{"title_big_size": "240", "title_small_size": "80"})
	big, small = s.titleSizes()
	assert.Equal(t, 240, big)
	assert.Equal(t, 80, small)
}

func TestHexToRGB(t *testing.T) {
	r, g, b, err := hexToRGB("#ff8800")
	require.NoError(t, err)
	assert.Equal(t, []int{255, 136, 0}, []int{r, g, b})

	r, g, b, err = hexToRGB("#fff")
	require.NoError(t, err)
	assert.Equal(t, []int{255, 255, 255}, []int{r, g, b})

	_, _, _, err = hexToRGB("#zzz")
	assert.Error(t, err)

	_, _, _, err = hexToRGB("red")
	assert.Error(t, err)
}

func TestBuildTextShadowCSS(t *testing.T) {
	t.Run("default has four shadow layers and no stroke", func(t *testing.T) {
		css := DefaultTextStyle().BuildTextShadowCSS()
		layers := strings.Split(css, ",\n  ")
		assert.Len(t, layers, 4)
		assert.Equal(t, "4px 4px 0px rgba(0,0,0,1)", layers[0])
		assert.Equal(t, "4px 4px 60px rgba(0,0,0,1)", layers[3])
	})

	t.Run("stroke adds sixteen offset layers", func(t *testing.T) {
		s := DefaultTextStyle()
		s.StrokeWidth = 4
		s.StrokeColor = "#000000"

		css := s.BuildTextShadowCSS()
		layers := strings.Split(css, ",\n  ")
		assert.Len(t, layers, 20)
		assert.Contains(t, css, "-4px 0px 0 rgb(0,0,0)")
		assert.Contains(t, css, "2px 4px 0 rgb(0,0,0)")
	})

	t.Run("no layers yields none", func(t *testing.T) {
		s := DefaultTextStyle()
		s.ShadowBlur = nil
		assert.Equal(t, "none", s.BuildTextShadowCSS())
	})
}
