package render

import "embed"

//go:embed static/style.css static/favicon.svg
var staticAssets embed.FS

// StyleCSS returns the embedded, precompiled stylesheet. The preprocessor
// source is out of scope for this module; only the compiled output ships.
func StyleCSS() []byte {
	data, _ := staticAssets.ReadFile("static/style.css")
	return data
}

// FaviconSVG returns the embedded favicon.
func FaviconSVG() []byte {
	data, _ := staticAssets.ReadFile("static/favicon.svg")
	return data
}
