package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/teamresolve/internal/resilience"
)

// HTTPOptions configures Downloader.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond throttles downloads. Zero disables throttling.
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
}

// Downloader fetches upstream exports published over HTTP.
type Downloader struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewDownloader creates a Downloader.
func NewDownloader(opts HTTPOptions) *Downloader {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "teamresolve/1.0"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
		opts.Retry.InitialBackoff = 500 * time.Millisecond
		opts.Retry.MaxBackoff = 10 * time.Second
	}
	d := &Downloader{client: &http.Client{Timeout: opts.Timeout}, opts: opts}
	if opts.RequestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return d
}

// IsURL reports whether s names an http(s) resource.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Download writes rawURL into dir and returns the file path. The file keeps
// the URL's base name so ReadFile can infer the format.
func (d *Downloader) Download(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "feed: parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "feed"
	}
	dst := filepath.Join(dir, name)

	cfg := d.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("feed", "download")
	err = resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return d.fetch(ctx, rawURL, dst)
	})
	if err != nil {
		return "", eris.Wrapf(err, "feed: download %s", rawURL)
	}
	return dst, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL, dst string) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "feed: rate limit wait")
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "feed: create request")
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return resilience.NewTransientError(fmt.Errorf("feed: %s returned %d", rawURL, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("feed: %s returned %d", rawURL, resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return eris.Wrap(err, "feed: create file")
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return eris.Wrap(err, "feed: write file")
	}
	zap.L().Debug("feed downloaded",
		zap.String("component", "feed"),
		zap.String("url", rawURL),
		zap.Int64("bytes", n),
	)
	return nil
}
