package planner

import (
	"context"
	"time"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/providers/fetch"
	"github.com/GriffinCanCode/AgentOS/apps/internal/providers/verify"
)

// ManifestSource retrieves update manifests
type ManifestSource interface {
	FetchManifest(ctx context.Context, rawURL string) (*manifest.UpdateManifest, error)
}

// PackageSource downloads packages
type PackageSource interface {
	Download(ctx context.Context, rawURL, dest string, maxBytes int64) (*fetch.Download, error)
}

// Verifier checks a downloaded package
type Verifier interface {
	Verify(ctx context.Context, path string, expected verify.Expected) (*verify.Result, error)
}

// Options tunes timeouts and retries
type Options struct {
	DownloadAttempts int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	FetchTimeout     time.Duration
	DownloadTimeout  time.Duration
	VerifyTimeout    time.Duration
	CommitAttempts   int
}

// DefaultOptions returns production settings
func DefaultOptions() Options {
	return Options{
		DownloadAttempts: 4,
		BackoffInitial:   500 * time.Millisecond,
		BackoffMax:       10 * time.Second,
		FetchTimeout:     30 * time.Second,
		DownloadTimeout:  5 * time.Minute,
		VerifyTimeout:    time.Minute,
		CommitAttempts:   5,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.DownloadAttempts < 1 {
		o.DownloadAttempts = d.DownloadAttempts
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = d.BackoffInitial
	}
	if o.BackoffMax < o.BackoffInitial {
		o.BackoffMax = o.BackoffInitial
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = d.DownloadTimeout
	}
	if o.VerifyTimeout <= 0 {
		o.VerifyTimeout = d.VerifyTimeout
	}
	if o.CommitAttempts < 1 {
		o.CommitAttempts = d.CommitAttempts
	}
	return o
}
