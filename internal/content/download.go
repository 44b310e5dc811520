package content

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Download resolves one file in the background. It is pending until the
// file is written; a failed resolution leaves it pending.
type Download struct {
	done    chan struct{}
	settled chan struct{}

	mu   sync.Mutex
	path string
	size int64
	err  error
}

type downloadOptions struct {
	backOff backoff.BackOff
}

// DownloadOption configures Start.
type DownloadOption func(*downloadOptions)

// WithBackOff retries failed fetches according to b. By default a fetch is
// attempted once.
func WithBackOff(b backoff.BackOff) DownloadOption {
	return func(o *downloadOptions) { o.backOff = b }
}

// Start fetches hash into dir/filename in the background.
func Start(ctx context.Context, r *Resolver, hash, filename, dir string, opts ...DownloadOption) *Download {
	o := downloadOptions{backOff: &backoff.StopBackOff{}}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Download{
		done:    make(chan struct{}),
		settled: make(chan struct{}),
	}
	go d.run(ctx, r, hash, filepath.Join(dir, filepath.Base(filename)), o)
	return d
}

func (d *Download) run(ctx context.Context, r *Resolver, hash, path string, o downloadOptions) {
	defer close(d.settled)
	lg := zctx.From(ctx).With(zap.String("hash", hash), zap.String("path", path))

	var size int64
	op := func() error {
		n, err := fetchFile(ctx, r, hash, path)
		if errors.Is(err, ErrInvalidHash) || errors.Is(err, ErrHashMismatch) {
			return backoff.Permanent(err)
		}
		size = n
		return err
	}
	notify := func(err error, next time.Duration) {
		lg.Warn("Fetch failed, retrying", zap.Error(err), zap.Duration("backoff", next))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(o.backOff, ctx), notify); err != nil {
		lg.Error("Download failed", zap.Error(err))
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		return
	}

	lg.Info("Download ready", zap.Int64("size", size))
	d.mu.Lock()
	d.path = path
	d.size = size
	d.mu.Unlock()
	close(d.done)
}

func fetchFile(ctx context.Context, r *Resolver, hash, path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := r.Fetch(ctx, hash, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close temp file")
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, errors.Wrap(err, "rename")
	}
	return n, nil
}

// Pending reports whether the file is not yet available.
func (d *Download) Pending() bool {
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// Ready returns the local path and size once the file is available.
func (d *Download) Ready() (path string, size int64, ok bool) {
	if d.Pending() {
		return "", 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path, d.size, true
}

// Err returns the last resolution error, if any.
func (d *Download) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Done is closed when the file becomes available.
func (d *Download) Done() <-chan struct{} { return d.done }

// Wait blocks until the file is available, the background fetch gives up,
// or ctx is done.
func (d *Download) Wait(ctx context.Context) (string, error) {
	select {
	case <-d.settled:
		if path, _, ok := d.Ready(); ok {
			return path, nil
		}
		return "", errors.Wrap(d.Err(), "download pending")
	case <-ctx.Done():
		if err := d.Err(); err != nil {
			return "", errors.Wrap(err, "download pending")
		}
		return "", ctx.Err()
	}
}
