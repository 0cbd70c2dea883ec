package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "recall/internal/log"
	"recall/internal/model"
)

// Default viewport for a day page at the default scale.
const (
	DefaultWidth   = 720
	DefaultHeight  = 1536
	DefaultTimeout = 30 * time.Second
)

// Options defines parameters for capturing one day page.
type Options struct {
	// BaseURL of a running server, e.g. "http://127.0.0.1:8080".
	BaseURL string
	Day     model.Day
	// Scale in pixels per hour; zero leaves the server default.
	Scale float64

	// OutputPath is where the PNG screenshot will be written.
	OutputPath string

	// Width and Height are the viewport in pixels. The screenshot covers the
	// full page regardless.
	Width  int
	Height int

	Timeout time.Duration

	// Username and Password are sent as basic auth when set.
	Username string
	Password string

	// ExecPath overrides the Chromium binary chromedp looks up.
	ExecPath string
}

// DayURL builds the address of the day page.
func DayURL(base string, day model.Day, scale float64) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("capture: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("capture: base url %q needs scheme and host", base)
	}
	u = u.JoinPath("day", day.String())
	if scale > 0 {
		u.RawQuery = url.Values{"scale": {strconv.FormatFloat(scale, 'f', -1, 64)}}.Encode()
	}
	return u.String(), nil
}

// CaptureDayPNG drives headless Chromium to the day page, waits for the page
// to flag `data-ready="true"` and writes a full-page PNG.
func CaptureDayPNG(parentCtx context.Context, opts Options) error {
	if opts.Day.IsZero() {
		return errors.New("capture: day is required")
	}
	if opts.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	target, err := DayURL(opts.BaseURL, opts.Day, opts.Scale)
	if err != nil {
		return err
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height))}
	if opts.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + token}),
		)
	}
	tasks = append(tasks,
		chromedp.Navigate(target),
		chromedp.WaitVisible(`body[data-ready="true"]`, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)

	started := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	if err := writeFileAtomic(opts.OutputPath, png); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Info("day captured", "date", opts.Day.String(), "path", opts.OutputPath,
		"bytes", len(png), "took", time.Since(started).String())
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".recall-capture-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
