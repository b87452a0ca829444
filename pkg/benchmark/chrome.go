package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/ethpandaops/iconbench/pkg/iconconfig"
	"github.com/sirupsen/logrus"
)

const rootID = "iconbench-root"

// setupScript creates the render container and the style slot.
const setupScript = `(() => {
  document.body.style.margin = '0';
  let style = document.getElementById('iconbench-style');
  if (!style) {
    style = document.createElement('style');
    style.id = 'iconbench-style';
    document.head.appendChild(style);
  }
  let root = document.getElementById('` + rootID + `');
  if (!root) {
    root = document.createElement('div');
    root.id = '` + rootID + `';
    document.body.appendChild(root);
  }
  return true;
})()`

// prepareScript installs styles and the sprite sheet. %s are JSON strings.
const prepareScript = `(() => {
  document.getElementById('iconbench-style').textContent = %s;
  const root = document.getElementById('` + rootID + `');
  root.innerHTML = '';
  let sprite = document.getElementById('iconbench-sprite');
  if (sprite) sprite.remove();
  const markup = %s;
  if (markup) {
    sprite = document.createElement('div');
    sprite.id = 'iconbench-sprite';
    sprite.innerHTML = markup;
    document.body.insertBefore(sprite, root);
  }
  return true;
})()`

// renderScript inserts the markup in one pass inside an animation frame,
// forces a layout flush and resolves with the elapsed milliseconds once
// the next frame starts. %s is a JSON string.
const renderScript = `new Promise((resolve) => {
  const root = document.getElementById('` + rootID + `');
  root.innerHTML = '';
  requestAnimationFrame(() => {
    const start = performance.now();
    root.insertAdjacentHTML('beforeend', %s);
    void root.offsetHeight;
    requestAnimationFrame(() => resolve(performance.now() - start));
  });
})`

// Compile-time interface check.
var _ Renderer = (*ChromeRenderer)(nil)

// ChromeRenderer measures real layout in a headless Chrome tab driven over
// the DevTools protocol. The browser starts on the first Prepare.
type ChromeRenderer struct {
	log     logrus.FieldLogger
	cfg     config.ChromeConfig
	builder markupBuilder

	mu          sync.Mutex
	tabCtx      context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

// NewChromeRenderer creates a ChromeRenderer.
func NewChromeRenderer(log logrus.FieldLogger, cfg config.ChromeConfig) *ChromeRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultChromeTimeout
	}

	return &ChromeRenderer{
		log: log.WithField("component", "renderer-chrome"),
		cfg: cfg,
	}
}

func (r *ChromeRenderer) start() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tabCtx != nil {
		return r.tabCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.cfg.Headless),
		chromedp.WindowSize(1280, 800),
	)

	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}

	if r.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(r.log.Debugf),
		chromedp.WithErrorf(r.log.Debugf),
	)

	var ok bool
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.Evaluate(setupScript, &ok),
	); err != nil {
		cancelTab()
		cancelAlloc()

		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	r.tabCtx = tabCtx
	r.cancelAlloc = cancelAlloc
	r.cancelTab = cancelTab

	r.log.WithField("headless", r.cfg.Headless).Info("Chrome started")

	return tabCtx, nil
}

func (r *ChromeRenderer) Prepare(ctx context.Context, v iconconfig.Variant) error {
	tabCtx, err := r.start()
	if err != nil {
		return err
	}

	runCtx, cancel := r.bind(ctx, tabCtx)
	defer cancel()

	var ok bool
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(fmt.Sprintf(prepareScript, jsString(v.Style), jsString(v.Hints["sprite"])), &ok),
	); err != nil {
		return fmt.Errorf("preparing %s: %w", v.Name, err)
	}

	return nil
}

func (r *ChromeRenderer) Render(ctx context.Context, v iconconfig.Variant, count int) (time.Duration, error) {
	tabCtx, err := r.start()
	if err != nil {
		return 0, err
	}

	markup, err := r.builder.build(v, count)
	if err != nil {
		return 0, err
	}

	runCtx, cancel := r.bind(ctx, tabCtx)
	defer cancel()

	var ms float64
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(fmt.Sprintf(renderScript, jsString(markup)), &ms,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			},
		),
	); err != nil {
		return 0, fmt.Errorf("rendering %s: %w", v.Name, err)
	}

	return time.Duration(ms * float64(time.Millisecond)), nil
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tabCtx == nil {
		return nil
	}

	r.cancelTab()
	r.cancelAlloc()
	r.tabCtx = nil

	return nil
}

// bind derives a context from the tab that also ends when ctx ends or the
// render timeout passes.
func (r *ChromeRenderer) bind(ctx, tabCtx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(tabCtx, r.cfg.Timeout)
	stop := context.AfterFunc(ctx, cancel)

	return runCtx, func() {
		stop()
		cancel()
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)

	return string(b)
}
