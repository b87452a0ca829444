package benchmark

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/ethpandaops/iconbench/pkg/iconconfig"
	"github.com/sirupsen/logrus"
)

// Renderer times bulk icon rendering.
type Renderer interface {
	// Prepare resets the render target and installs the variant's styles.
	Prepare(ctx context.Context, v iconconfig.Variant) error
	// Render renders count icons of v in a single pass, forces layout and
	// returns the elapsed time.
	Render(ctx context.Context, v iconconfig.Variant, count int) (time.Duration, error)
	Close() error
}

// NewRenderer creates the Renderer selected by cfg.Renderer.
func NewRenderer(log logrus.FieldLogger, cfg *config.BenchmarkConfig) (Renderer, error) {
	switch cfg.Renderer {
	case "chrome":
		return NewChromeRenderer(log, cfg.Chrome), nil
	case "markup":
		return NewMarkupRenderer(log), nil
	default:
		return nil, fmt.Errorf("unsupported renderer: %s", cfg.Renderer)
	}
}

// markupBuilder expands variant markup templates, caching parsed templates
// per variant.
type markupBuilder struct {
	mu    sync.Mutex
	cache map[string]*template.Template
}

type iconData struct {
	Index int
}

// build returns count concatenated instances of v's markup.
func (b *markupBuilder) build(v iconconfig.Variant, count int) (string, error) {
	tmpl, err := b.template(v)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer

	buf.Grow(count * len(v.Markup))

	for i := 0; i < count; i++ {
		if err := tmpl.Execute(&buf, iconData{Index: i}); err != nil {
			return "", fmt.Errorf("expanding %s markup: %w", v.Name, err)
		}
	}

	return buf.String(), nil
}

func (b *markupBuilder) template(v iconconfig.Variant) (*template.Template, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cache == nil {
		b.cache = make(map[string]*template.Template, 4)
	}

	key := v.Name + "\x00" + v.Markup
	if t, ok := b.cache[key]; ok {
		return t, nil
	}

	t, err := template.New(v.Name).Parse(v.Markup)
	if err != nil {
		return nil, fmt.Errorf("parsing %s markup: %w", v.Name, err)
	}

	b.cache[key] = t

	return t, nil
}
