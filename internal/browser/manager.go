// Package browser supplies the concrete input surface backed by a headless
// Chrome instance driven over the DevTools protocol. It is the external
// collaborator the probe core types against; everything above it sees only
// the driver.Surface capability.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/browser/stealth"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/config"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/driver"
)

// Manager owns the browser process. Surfaces for individual iterations are
// created as fresh tabs derived from the allocator context, so every replay
// observes a clean input state.
type Manager struct {
	log *zap.Logger
	cfg *config.Config

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
}

// NewManager launches the browser process and verifies it responds.
func NewManager(ctx context.Context, log *zap.Logger, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		log: log.Named("browser"),
		cfg: cfg,
	}

	opts := m.buildAllocatorOptions()
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, opts...)

	// Confirm the browser starts before the run begins; a dead browser is a
	// fatal setup error, not an iteration failure.
	testCtx, cancelTimeout := context.WithTimeout(m.allocatorCtx, 30*time.Second)
	testCtx, cancelTest := chromedp.NewContext(testCtx)
	defer cancelTest()
	defer cancelTimeout()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.log.Info("Browser launched", zap.Bool("headless", cfg.Browser.Headless))
	return m, nil
}

// NewSurface opens a fresh tab navigated to the target page and returns it as
// an input surface. The release func must be called when the iteration ends.
func (m *Manager) NewSurface(ctx context.Context) (driver.Surface, func(), error) {
	tabCtx, cancelTab := chromedp.NewContext(m.allocatorCtx)

	navCtx, cancelNav := combineContext(tabCtx, ctx)
	navCtx, cancelTimeout := context.WithTimeout(navCtx, m.cfg.Probe.NavigationTimeout)
	defer cancelTimeout()
	defer cancelNav()

	sel := m.cfg.Probe.Selectors
	if err := chromedp.Run(navCtx,
		stealth.Apply(stealth.DefaultPersona, m.log),
		chromedp.Navigate(m.cfg.Probe.URL),
		chromedp.WaitVisible(sel.Input, chromedp.ByQuery),
	); err != nil {
		cancelTab()
		return nil, nil, fmt.Errorf("navigate to %s: %w", m.cfg.Probe.URL, err)
	}

	m.log.Debug("Fresh surface ready", zap.String("url", m.cfg.Probe.URL))
	return newSurface(tabCtx, sel, m.log), cancelTab, nil
}

// Shutdown terminates the browser process.
func (m *Manager) Shutdown() {
	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
	m.log.Info("Browser shut down")
}

// buildAllocatorOptions assembles browser flags explicitly rather than
// starting from chromedp's defaults, which carry enable-automation and would
// advertise the probe to the page under test.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", false),
		// The page must not see navigator.webdriver while we probe its
		// behavioral defenses; timing is the only signal under test.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
	}

	if m.cfg.Browser.Headless {
		opts = append(opts, chromedp.Headless, chromedp.DisableGPU)
	}
	if m.cfg.Browser.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	for _, arg := range m.cfg.Browser.Args {
		key, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// combineContext derives a context from primary (keeping its chromedp
// values) that is also cancelled when secondary is done.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
