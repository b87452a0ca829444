package iconconfig

import (
	"github.com/ethpandaops/iconbench/pkg/record"
)

const (
	pngPixel = "data:image/png;base64," +
		"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="
	gifPixel = "data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"

	svgPath = `<path d="M12 2l3 7h7l-5.5 4 2 7-6.5-4.5L5.5 20l2-7L2 9h7z"/>`
)

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Formats: map[record.Format][]Variant{
			record.FormatCSS: {
				{
					Name:     "CSS Shape",
					Selector: ".icon-shape",
					Markup:   `<i class="icon-shape" data-i="{{.Index}}"></i>`,
					Style: `.icon-shape{display:inline-block;width:24px;height:24px;` +
						`background:#333;clip-path:polygon(50% 0,61% 35%,98% 35%,68% 57%,79% 91%,50% 70%,21% 91%,32% 57%,2% 35%,39% 35%)}`,
				},
				{
					Name:     "CSS Mask",
					Selector: ".icon-mask",
					Markup:   `<i class="icon-mask" data-i="{{.Index}}"></i>`,
					Style: `.icon-mask{display:inline-block;width:24px;height:24px;background:#333;` +
						`-webkit-mask:radial-gradient(circle,#000 60%,transparent 61%);mask:radial-gradient(circle,#000 60%,transparent 61%)}`,
				},
				{
					Name:     "Pseudo Element",
					Selector: ".icon-pseudo",
					Markup:   `<i class="icon-pseudo" data-i="{{.Index}}"></i>`,
					Style: `.icon-pseudo{display:inline-block;width:24px;height:24px;position:relative}` +
						`.icon-pseudo::before{content:"";position:absolute;inset:4px;border:2px solid #333;border-radius:50%}`,
				},
			},
			record.FormatSVG: {
				{
					Name:     "Inline SVG",
					Selector: "svg.icon-inline",
					Markup: `<svg class="icon-inline" width="24" height="24" viewBox="0 0 24 24" data-i="{{.Index}}">` +
						svgPath + `</svg>`,
				},
				{
					Name:     "SVG Sprite",
					Selector: "svg.icon-sprite",
					Markup: `<svg class="icon-sprite" width="24" height="24" data-i="{{.Index}}">` +
						`<use href="#icon-star"></use></svg>`,
					Style: `.icon-sprite{fill:#333}`,
					Hints: map[string]string{
						"sprite": `<svg style="display:none"><symbol id="icon-star" viewBox="0 0 24 24">` +
							svgPath + `</symbol></svg>`,
					},
				},
				{
					Name:               "SVG Image",
					Selector:           "img.icon-svg-img",
					Markup:             `<img class="icon-svg-img" src="icons/star.svg" width="24" height="24" alt="" data-i="{{.Index}}">`,
					HasNetworkOverhead: true,
				},
			},
			record.FormatPNG:  rasterVariants("png", pngPixel),
			record.FormatGIF:  rasterVariants("gif", gifPixel),
			record.FormatJPEG: rasterVariants("jpeg", ""),
			record.FormatWebP: append(rasterVariants("webp", ""), Variant{
				Name:               "Lossless WebP",
				Selector:           "img.icon-webp-lossless",
				Markup:             `<img class="icon-webp-lossless" src="icons/star-lossless.webp" width="24" height="24" alt="" data-i="{{.Index}}">`,
				HasNetworkOverhead: true,
				Hints:              map[string]string{"quality": "lossless"},
			}),
			record.FormatAVIF: rasterVariants("avif", ""),
		},
		TestTypes: map[string]TestType{
			"quick":    {Name: "quick", Iterations: 5, IconCount: 100},
			"standard": {Name: "standard", Iterations: 10, IconCount: 500},
			"stress":   {Name: "stress", Iterations: 20, IconCount: 1000},
		},
	}
}

// rasterVariants returns the image-element and background variants of a
// raster format, plus a data URI variant when dataURI is set.
func rasterVariants(ext, dataURI string) []Variant {
	out := []Variant{
		{
			Name:               "Image Element",
			Selector:           "img.icon-" + ext,
			Markup:             `<img class="icon-` + ext + `" src="icons/star.` + ext + `" width="24" height="24" alt="" data-i="{{.Index}}">`,
			HasNetworkOverhead: true,
		},
		{
			Name:     "CSS Background",
			Selector: ".icon-bg-" + ext,
			Markup:   `<i class="icon-bg-` + ext + `" data-i="{{.Index}}"></i>`,
			Style: `.icon-bg-` + ext + `{display:inline-block;width:24px;height:24px;` +
				`background:url(icons/star.` + ext + `) center/contain no-repeat}`,
			HasNetworkOverhead: true,
		},
	}

	if dataURI != "" {
		out = append(out, Variant{
			Name:     "Data URI",
			Selector: "img.icon-data-" + ext,
			Markup:   `<img class="icon-data-` + ext + `" src="` + dataURI + `" width="24" height="24" alt="" data-i="{{.Index}}">`,
		})
	}

	return out
}
