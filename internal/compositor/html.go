package compositor

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
)

// BytesToDataURI embeds raw bytes as a data: URI.
func BytesToDataURI(data []byte, mime string) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

// BuildHTMLDocument assembles the self-contained page used for
// rasterization. The background and the font travel inline as data URIs;
// the document never references the network.
func BuildHTMLDocument(bgDataURI, fontDataURI, text string, style TextStyle, sizePx int, allowTitleHTML bool) string {
	var safeText string
	if allowTitleHTML {
		safeText = SanitizeTitleHTML(text)
	} else {
		// Newlines survive through white-space: pre-line.
		safeText = html.EscapeString(text)
	}

	fontFace := ""
	if fontDataURI != "" {
		fontFace = fmt.Sprintf(`@font-face {
  font-family: 'CustomFont';
  src: url('%s');
}`, fontDataURI)
	}

	titleBig, titleSmall := style.titleSizes()

	var doc strings.Builder
	fmt.Fprintf(&doc, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
%s

html, body {
  margin: 0;
  padding: 0;
  width: %dpx;
  height: %dpx;
  overflow: hidden;
}

body {
  background: url('%s') center center / cover no-repeat;
  display: flex;
  justify-content: center;
  align-items: flex-start;
}

.text {
  position: relative;
  margin-top: %dpx;
  margin-left: %dpx;
  width: %dpx;
  height: %dpx;
}

.fill {
  color: %s;
  font-family: %s;
  font-size: %dpx;
  font-weight: %d;
  line-height: %g;
  text-align: %s;
  white-space: %s;

  -webkit-font-smoothing: antialiased;
  text-rendering: geometricPrecision;

  text-stroke: %dpx %s;
  -webkit-text-stroke: %dpx %s;
  paint-order: stroke fill;

  text-shadow:
  %s;
}

.fill * {
  -webkit-text-stroke: inherit;
  text-stroke: inherit;
  paint-order: inherit;
}

.title-big {
  font-size: %dpx;
  line-height: 1.0;
  display: inline-block;
}

.title-small {
  font-size: %dpx;
  line-height: 1.05;
  display: inline-block;
}
</style>
</head>

<body>
  <div class="text">
    <div class="fill">%s</div>
  </div>
</body>
</html>
`,
		fontFace,
		sizePx, sizePx,
		bgDataURI,
		style.Top, style.MarginLeft, style.BoxW, style.BoxH,
		style.Color, style.FontFamily, style.FontSize, style.FontWeight,
		style.LineHeight, style.TextAlign, style.WhiteSpace,
		style.StrokeWidth, style.StrokeColor, style.StrokeWidth, style.StrokeColor,
		style.BuildTextShadowCSS(),
		titleBig, titleSmall,
		safeText,
	)
	return doc.String()
}
