package benchmark

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/iconbench/pkg/iconconfig"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Compile-time interface check.
var _ Renderer = (*MarkupRenderer)(nil)

// MarkupRenderer renders in-process: it expands the markup and parses it
// into a node tree under a container element. It measures document
// construction only; there is no style or layout engine behind it.
type MarkupRenderer struct {
	log     logrus.FieldLogger
	builder markupBuilder
	prefix  string
}

// NewMarkupRenderer creates a MarkupRenderer.
func NewMarkupRenderer(log logrus.FieldLogger) *MarkupRenderer {
	return &MarkupRenderer{log: log.WithField("component", "renderer-markup")}
}

func (r *MarkupRenderer) Prepare(_ context.Context, v iconconfig.Variant) error {
	r.prefix = v.Hints["sprite"]

	return nil
}

func (r *MarkupRenderer) Render(ctx context.Context, v iconconfig.Variant, count int) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()

	markup, err := r.builder.build(v, count)
	if err != nil {
		return 0, err
	}

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}

	nodes, err := html.ParseFragment(strings.NewReader(r.prefix+markup), container)
	if err != nil {
		return 0, fmt.Errorf("parsing %s markup: %w", v.Name, err)
	}

	for _, n := range nodes {
		container.AppendChild(n)
	}

	rendered := countElements(container)
	if r.prefix != "" {
		rendered--
	}

	elapsed := time.Since(start)

	if rendered < count {
		return 0, fmt.Errorf("%s: rendered %d of %d icons", v.Name, rendered, count)
	}

	return elapsed, nil
}

func (r *MarkupRenderer) Close() error {
	return nil
}

// countElements counts the element children of container.
func countElements(container *html.Node) int {
	n := 0

	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			n++
		}
	}

	return n
}
