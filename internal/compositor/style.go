package compositor

import (
	"fmt"
	"strconv"
	"strings"
)

// TextStyle is the resolved CSS-ish styling for one text layer. Values are
// tuned for 2551px print pages; manifests override per layer.
type TextStyle struct {
	FontSize       int
	FontFamily     string
	FontWeight     int
	LineHeight     float64
	TextAlign      string
	StrokeWidth    int
	StrokeColor    string
	Color          string
	ShadowColor    string // "r,g,b"
	ShadowOpacity  float64
	ShadowOffset   int
	ShadowBlur     []int
	BoxW           int
	BoxH           int
	Top            int
	MarginLeft     int
	WhiteSpace     string
	TitleBigSize   int
	TitleSmallSize int
}

// DefaultTextStyle returns the baseline layout.
func DefaultTextStyle() TextStyle {
	return TextStyle{
		FontSize:      70,
		FontFamily:    "CustomFont, 'Comic Sans MS', sans-serif",
		FontWeight:    600,
		LineHeight:    1.15,
		TextAlign:     "left",
		StrokeWidth:   0,
		StrokeColor:   "#ffffff",
		Color:         "#ffffff",
		ShadowColor:   "0,0,0",
		ShadowOpacity: 1.0,
		ShadowOffset:  4,
		ShadowBlur:    []int{0, 20, 40, 60},
		BoxW:          1611,
		BoxH:          1784,
		Top:           451,
		MarginLeft:    -36,
		WhiteSpace:    "pre-line",
	}
}

// Merge applies manifest style overrides onto s. Unknown keys are ignored
// so manifests can carry hints for other consumers.
func (s TextStyle) Merge(overrides map[string]string) TextStyle {
	for key, value := range overrides {
		switch key {
		case "font_size":
			s.FontSize = atoiOr(value, s.FontSize)
		case "font_family":
			s.FontFamily = value
		case "font_weight":
			s.FontWeight = atoiOr(value, s.FontWeight)
		case "line_height":
			s.LineHeight = atofOr(value, s.LineHeight)
		case "text_align":
			s.TextAlign = value
		case "stroke_width":
			s.StrokeWidth = atoiOr(value, s.StrokeWidth)
		case "stroke_color":
			s.StrokeColor = value
		case "color":
			s.Color = value
		case "shadow_color":
			s.ShadowColor = value
		case "shadow_opacity":
			s.ShadowOpacity = atofOr(value, s.ShadowOpacity)
		case "shadow_offset":
			s.ShadowOffset = atoiOr(value, s.ShadowOffset)
		case "shadow_blur":
			if blurs := parseIntList(value); len(blurs) > 0 {
				s.ShadowBlur = blurs
			}
		case "box_w":
			s.BoxW = atoiOr(value, s.BoxW)
		case "box_h":
			s.BoxH = atoiOr(value, s.BoxH)
		case "top":
			s.Top = atoiOr(value, s.Top)
		case "margin_left":
			s.MarginLeft = atoiOr(value, s.MarginLeft)
		case "white_space":
			s.WhiteSpace = value
		case "title_big_size":
			s.TitleBigSize = atoiOr(value, s.TitleBigSize)
		case "title_small_size":
			s.TitleSmallSize = atoiOr(value, s.TitleSmallSize)
		}
	}
	return s
}

// titleSizes resolves the title span sizes, deriving defaults from the
// body size when not overridden.
func (s TextStyle) titleSizes() (big, small int) {
	big = s.TitleBigSize
	if big == 0 {
		big = max(s.FontSize*2, s.FontSize+80)
	}
	small = s.TitleSmallSize
	if small == 0 {
		small = s.FontSize
	}
	return big, small
}

func atoiOr(value string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return n
	}
	return fallback
}

func atofOr(value string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return f
	}
	return fallback
}

func parseIntList(value string) []int {
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

// hexToRGB parses #rgb or #rrggbb.
func hexToRGB(hexColor string) (r, g, b int, err error) {
	s := strings.TrimPrefix(strings.TrimSpace(hexColor), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", hexColor)
	}
	rv, err := strconv.ParseUint(s[0:2], 16, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", hexColor)
	}
	gv, err := strconv.ParseUint(s[2:4], 16, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", hexColor)
	}
	bv, err := strconv.ParseUint(s[4:6], 16, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", hexColor)
	}
	return int(rv), int(gv), int(bv), nil
}

// buildShadowLayers builds the drop-shadow text-shadow entries.
func buildShadowLayers(offset int, blurs []int, rgbColor string, opacity float64) []string {
	color := fmt.Sprintf("rgba(%s,%g)", rgbColor, opacity)
	layers := make([]string, 0, len(blurs))
	for _, blur := range blurs {
		layers = append(layers, fmt.Sprintf("%dpx %dpx %dpx %s", offset, offset, blur, color))
	}
	return layers
}

// buildStrokeLayers approximates an outline with offset text-shadows,
// which render reliably where -webkit-text-stroke does not.
func buildStrokeLayers(width int, strokeColor string) []string {
	if width <= 0 {
		return nil
	}
	r, g, b, err := hexToRGB(strokeColor)
	if err != nil {
		r, g, b = 255, 255, 255
	}
	color := fmt.Sprintf("rgb(%d,%d,%d)", r, g, b)

	w := width
	h := w / 2
	offsets := [][2]int{
		{-w, 0}, {w, 0}, {0, -w}, {0, w},
		{-w, -w}, {-w, w}, {w, -w}, {w, w},
		{-w, -h}, {-w, h}, {w, -h}, {w, h},
		{-h, -w}, {h, -w}, {-h, w}, {h, w},
	}

	layers := make([]string, 0, len(offsets))
	for _, off := range offsets {
		if off[0] == 0 && off[1] == 0 {
			continue
		}
		layers = append(layers, fmt.Sprintf("%dpx %dpx 0 %s", off[0], off[1], color))
	}
	return layers
}

// BuildTextShadowCSS combines stroke and drop-shadow layers into one
// text-shadow value.
func (s TextStyle) BuildTextShadowCSS() string {
	var layers []string
	layers = append(layers, buildStrokeLayers(s.StrokeWidth, s.StrokeColor)...)
	layers = append(layers, buildShadowLayers(s.ShadowOffset, s.ShadowBlur, s.ShadowColor, s.ShadowOpacity)...)
	if len(layers) == 0 {
		return "none"
	}
	return strings.Join(layers, ",\n  ")
}
