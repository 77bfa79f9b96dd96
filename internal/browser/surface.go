package browser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/config"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/driver"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
)

// resultReadBudget bounds a single ReadResultFields attempt so the collector
// controls the overall wait, not chromedp's implicit element polling.
const resultReadBudget = 2 * time.Second

var numberPattern = regexp.MustCompile(`(\d+\.?\d*)`)

// Surface implements driver.Surface on top of a single browser tab. The
// orchestrator owns exactly one surface at a time, so no locking is needed.
type Surface struct {
	tabCtx    context.Context
	selectors config.SelectorsConfig
	log       *zap.Logger
}

var _ driver.Surface = (*Surface)(nil)

func newSurface(tabCtx context.Context, selectors config.SelectorsConfig, log *zap.Logger) *Surface {
	return &Surface{
		tabCtx:    tabCtx,
		selectors: selectors,
		log:       log.Named("surface"),
	}
}

// Focus clicks the typing input, mirroring how a user starts the test.
func (s *Surface) Focus(ctx context.Context) error {
	return s.run(ctx, chromedp.Click(s.selectors.Input, chromedp.ByQuery))
}

// DispatchKey sends one event to the active element. Presses go through the
// DevTools key pipeline so the page sees real keydown/keyup traffic.
func (s *Surface) DispatchKey(ctx context.Context, ev probe.KeyEvent) error {
	keys := ev.Key
	if ev.Action == probe.ActionBackspace {
		keys = kb.Backspace
	}
	return s.run(ctx, chromedp.SendKeys("document.activeElement", keys, chromedp.ByJSPath))
}

// ReadValue returns the input's current visible text.
func (s *Surface) ReadValue(ctx context.Context) (string, error) {
	var value string
	if err := s.run(ctx, chromedp.Value(s.selectors.Input, &value, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return value, nil
}

// ReadTargetText extracts and normalizes the phrase the page asks for.
func (s *Surface) ReadTargetText(ctx context.Context) (string, error) {
	var raw string
	if err := s.run(ctx, chromedp.Text(s.selectors.TargetText, &raw, chromedp.ByQuery)); err != nil {
		return "", err
	}
	text := NormalizeTargetText(raw)
	if text == "" {
		return "", fmt.Errorf("target text selector %q matched nothing typeable", s.selectors.TargetText)
	}
	return text, nil
}

// ReadResultFields reads the page's own reported speed and accuracy. It
// returns an error while the result is not rendered yet; the collector
// retries under its own bounded wait.
func (s *Surface) ReadResultFields(ctx context.Context) (driver.ResultFields, error) {
	readCtx, cancel := context.WithTimeout(ctx, resultReadBudget)
	defer cancel()

	wpm, err := s.readNumeric(readCtx, s.selectors.ResultWPM)
	if err != nil {
		return driver.ResultFields{}, fmt.Errorf("read reported wpm: %w", err)
	}
	accuracy, err := s.readNumeric(readCtx, s.selectors.ResultAccuracy)
	if err != nil {
		return driver.ResultFields{}, fmt.Errorf("read reported accuracy: %w", err)
	}
	return driver.ResultFields{WPM: wpm, Accuracy: accuracy}, nil
}

// readNumeric pulls the text of a selector and extracts the first number in
// it. Selectors may be CSS or XPath; BySearch handles both, matching the
// loosely structured result widgets the original probe targeted.
func (s *Surface) readNumeric(ctx context.Context, selector string) (float64, error) {
	var raw string
	if err := s.run(ctx, chromedp.Text(selector, &raw, chromedp.BySearch)); err != nil {
		return 0, err
	}
	m := numberPattern.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0, fmt.Errorf("selector %q text %q contains no number", selector, raw)
	}
	return strconv.ParseFloat(m, 64)
}

// run executes chromedp actions against the tab, honoring the caller's
// context. A dead tab is reported as ErrSurfaceUnavailable so the driver can
// fail the iteration cleanly.
func (s *Surface) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := s.tabCtx.Err(); err != nil {
		return fmt.Errorf("%w: %v", driver.ErrSurfaceUnavailable, err)
	}

	opCtx, cancel := combineContext(s.tabCtx, ctx)
	defer cancel()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if s.tabCtx.Err() != nil {
			return fmt.Errorf("%w: %v", driver.ErrSurfaceUnavailable, err)
		}
		return err
	}
	return nil
}
