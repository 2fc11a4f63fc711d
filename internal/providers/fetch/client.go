package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

// Config tunes the transport
type Config struct {
	UserAgent       string
	RequestsPerSec  float64
	FetchTimeout    time.Duration
	DownloadTimeout time.Duration
	ManifestRetries int
	BreakerTimeout  time.Duration
	Tracer          *tracing.Tracer
}

// DefaultConfig returns production transport settings
func DefaultConfig() Config {
	return Config{
		UserAgent:       "AgentOS-Apps/1.0",
		FetchTimeout:    30 * time.Second,
		DownloadTimeout: 5 * time.Minute,
		ManifestRetries: 3,
		BreakerTimeout:  30 * time.Second,
	}
}

// Download describes a fetched package
type Download struct {
	Path        string
	Size        int64
	ContentType string
}

// Client fetches manifests and packages
type Client struct {
	cfg       Config
	manifests *retryablehttp.Client
	packages  *resty.Client
	limiter   *rate.Limiter
	breakers  *resilience.Group
	logger    *zap.Logger
}

// New creates a production-ready client
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.ManifestRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.HTTPClient.Timeout = cfg.FetchTimeout
	retryClient.Logger = leveledLogger{logger.Sugar()}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.New().
		SetTimeout(cfg.DownloadTimeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent).
		SetDoNotParseResponse(true)
	// Share the pooled transport of the retrying client
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSec > 0 {
		burst := int(cfg.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}

	breakers := resilience.NewGroup(resilience.Settings{
		Timeout: cfg.BreakerTimeout,
		IsSuccessful: func(err error) bool {
			return errors.Is(err, context.Canceled) || IsPermanent(err)
		},
		OnStateChange: func(host string, from, to resilience.State) {
			logger.Info("Update source breaker changed state",
				zap.String("host", host),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return &Client{
		cfg:       cfg,
		manifests: retryClient,
		packages:  restyClient,
		limiter:   limiter,
		breakers:  breakers,
		logger:    logger,
	}
}

// Breakers exposes the per-host breakers for health reporting
func (c *Client) Breakers() *resilience.Group {
	return c.breakers
}

// FetchManifest retrieves and parses the update manifest at rawURL
func (c *Client) FetchManifest(ctx context.Context, rawURL string) (*manifest.UpdateManifest, error) {
	u, err := parseSource(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "file" {
		return manifest.ReadUpdateManifest(u.Path)
	}

	var body []byte
	err = c.remote(ctx, u, func(ctx context.Context) error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return &permanentError{err}
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", "application/json, application/manifest+json")
		tracing.Inject(ctx, req.Header)

		resp, err := c.manifests.Do(req)
		if err != nil {
			return fmt.Errorf("fetch manifest: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		body, err = readLimited(resp.Body, utils.MaxManifestSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	update, err := manifest.ParseUpdateManifest(body)
	if err != nil {
		var perr *manifest.ParseError
		if errors.As(err, &perr) {
			perr.Source = rawURL
		}
		return nil, err
	}
	return update, nil
}

// Download writes the package at rawURL to dest. maxBytes bounds the body
// size when positive. A partial file is never left at dest.
func (c *Client) Download(ctx context.Context, rawURL, dest string, maxBytes int64) (*Download, error) {
	u, err := parseSource(rawURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	if u.Scheme == "file" {
		return copyLocal(ctx, u.Path, dest, maxBytes)
	}

	var result *Download
	err = c.remote(ctx, u, func(ctx context.Context) error {
		req := c.packages.R().SetContext(ctx)
		tracing.Inject(ctx, req.Header)
		resp, err := req.Get(rawURL)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		body := resp.RawBody()
		defer body.Close()

		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return &StatusError{URL: rawURL, StatusCode: resp.StatusCode()}
		}

		size, err := writeAtomic(ctx, body, dest, maxBytes)
		if err != nil {
			return err
		}
		result = &Download{Path: dest, Size: size, ContentType: resp.Header().Get("Content-Type")}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Package downloaded",
		zap.String("url", rawURL),
		zap.Int64("size", result.Size))
	return result, nil
}

// remote applies rate limiting and the host breaker around fn
func (c *Client) remote(ctx context.Context, u *url.URL, fn func(ctx context.Context) error) error {
	span, ctx := c.cfg.Tracer.StartSpan(ctx, "fetch")
	span.SetTag("url", u.Redacted())

	err := c.limiter.Wait(ctx)
	if err != nil {
		err = fmt.Errorf("rate limit error: %w", err)
	} else {
		err = c.breakers.For(u.Host).Do(ctx, fn)
	}
	span.End(err)
	return err
}

func parseSource(rawURL string) (*url.URL, error) {
	if !utils.IsAbsoluteURI(rawURL) {
		return nil, &permanentError{fmt.Errorf("not an absolute url: %q", rawURL)}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &permanentError{err}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "file":
		u.Scheme = strings.ToLower(u.Scheme)
		return u, nil
	}
	return nil, &permanentError{fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)}
}

func readLimited(r io.Reader, max int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(max)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > max {
		return nil, &permanentError{fmt.Errorf("%w: more than %d bytes", ErrTooLarge, max)}
	}
	return data, nil
}

func copyLocal(ctx context.Context, src, dest string, maxBytes int64) (*Download, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("open package: %w", err)}
	}
	defer in.Close()

	size, err := writeAtomic(ctx, in, dest, maxBytes)
	if err != nil {
		return nil, err
	}
	return &Download{Path: dest, Size: size}, nil
}

// writeAtomic streams r into dest through a temporary sibling file
func writeAtomic(ctx context.Context, r io.Reader, dest string, maxBytes int64) (int64, error) {
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}

	src := io.Reader(&ctxReader{ctx: ctx, r: r})
	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}
	n, err := io.Copy(out, src)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = &permanentError{fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)}
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
