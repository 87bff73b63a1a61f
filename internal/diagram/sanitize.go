package diagram

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var svgElements = []string{
	"svg", "g", "path", "rect", "circle", "ellipse", "line", "polyline", "polygon",
	"text", "tspan", "textpath", "defs", "marker", "style", "title", "desc",
	"clippath", "lineargradient", "radialgradient", "stop", "symbol", "pattern", "mask",
	"filter", "fedropshadow", "feoffset", "fegaussianblur", "feblend", "feflood", "fecomposite",
	"foreignobject", "div", "span", "p", "br", "b", "i", "strong", "em",
}

// The HTML tokenizer folds names to lowercase, so the policy is written in
// lowercase and svgCase restores the names XML parsers need.
var svgPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(svgElements...)
	p.AllowNoAttrs().OnElements(svgElements...)
	p.AllowAttrs(
		"id", "class", "style", "xmlns", "version", "role", "viewbox", "width", "height",
		"preserveaspectratio", "x", "y", "x1", "x2", "y1", "y2", "cx", "cy", "r", "rx", "ry",
		"d", "points", "transform", "fill", "fill-opacity", "fill-rule", "stroke", "stroke-width",
		"stroke-dasharray", "stroke-linecap", "stroke-linejoin", "stroke-opacity", "opacity",
		"marker-start", "marker-mid", "marker-end", "markerwidth", "markerheight", "markerunits",
		"refx", "refy", "orient", "text-anchor", "dominant-baseline", "alignment-baseline",
		"font-family", "font-size", "font-weight", "dx", "dy", "offset", "stop-color",
		"stop-opacity", "gradientunits", "gradienttransform", "clip-path", "mask", "filter",
		"stddeviation", "flood-color", "flood-opacity", "in", "in2", "mode", "result",
		"aria-roledescription", "aria-labelledby", "aria-describedby", "data-id", "data-node",
	).Globally()
	p.AllowUnsafe(true) // keeps <style> bodies; <script> is still not allowed
	return p
}()

// Text and attribute values come out escaped, so "<name" and ` name="` only
// match markup.
var svgCase = func() *strings.Replacer {
	var pairs []string
	for _, el := range []string{
		"foreignObject", "clipPath", "linearGradient", "radialGradient", "textPath",
		"feDropShadow", "feOffset", "feGaussianBlur", "feBlend", "feFlood", "feComposite",
	} {
		lower := strings.ToLower(el)
		pairs = append(pairs, "<"+lower, "<"+el, "</"+lower+">", "</"+el+">")
	}
	for _, attr := range []string{
		"viewBox", "preserveAspectRatio", "markerWidth", "markerHeight", "markerUnits",
		"refX", "refY", "gradientUnits", "gradientTransform", "stdDeviation",
	} {
		pairs = append(pairs, " "+strings.ToLower(attr)+`="`, " "+attr+`="`)
	}
	return strings.NewReplacer(pairs...)
}()

// sanitizeSVG strips scripts, event handlers and links from compiler output.
// It reports false when nothing usable is left.
func sanitizeSVG(raw []byte) (string, bool) {
	out := svgCase.Replace(strings.TrimSpace(svgPolicy.Sanitize(string(raw))))
	if !strings.Contains(out, "<svg") {
		return "", false
	}
	return out, true
}
