// Package fetch downloads attachment references one at a time. A reference
// that cannot be fetched is reported in the Result and never stops the caller.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
)

var ErrNoFileName = errors.New("reference has no file name")

// Outcome classifies a single fetch.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
)

// StatusError reports a response the server refused to serve. Rate limits and
// expired links show up this way and are expected.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %s", e.Status)
}

// Result describes one fetch. Path is empty when nothing was stored.
type Result struct {
	Reference string
	Path      string
	Outcome   Outcome
	Bytes     int64
	Duration  time.Duration
	Err       error
}

type Options struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	Client         *http.Client
}

type Fetcher struct {
	client *http.Client
	header http.Header
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	acceptLanguage := opts.AcceptLanguage
	if acceptLanguage == "" {
		acceptLanguage = DefaultAcceptLanguage
	}

	header := make(http.Header)
	header.Set("User-Agent", userAgent)
	header.Set("Accept", "*/*")
	header.Set("Accept-Language", acceptLanguage)

	return &Fetcher{client: client, header: header, logger: logger}
}

// Fetch downloads ref into folder. counter is the position of ref in the
// batch; when a file tagged with it already exists next to the destination
// the download is skipped. Exactly one request is made.
func (f *Fetcher) Fetch(ctx context.Context, ref string, counter int, folder string) Result {
	started := time.Now()
	res := f.fetch(ctx, ref, counter, folder)
	res.Duration = time.Since(started)
	return res
}

func (f *Fetcher) fetch(ctx context.Context, ref string, counter int, folder string) Result {
	res := Result{Reference: ref}

	name := FileName(ref)
	if name == "" {
		return f.fail(res, ErrNoFileName)
	}
	dest := Destination(folder, name)

	if _, err := os.Stat(MarkerPath(dest, counter)); err == nil {
		res.Path = dest
		res.Outcome = OutcomeSkipped
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return f.fail(res, fmt.Errorf("build request: %w", err))
	}
	req.Header = f.header.Clone()

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fail(res, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		res.Outcome = OutcomeRejected
		res.Err = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		if f.logger != nil {
			f.logger.Debug("download rejected", "reference", ref, "status", resp.StatusCode)
		}
		return res
	}

	n, err := writeFile(dest, resp.Body)
	if err != nil {
		return f.fail(res, err)
	}

	res.Path = dest
	res.Bytes = n
	res.Outcome = OutcomeDownloaded
	if f.logger != nil {
		f.logger.Debug("downloaded attachment", "reference", ref, "path", dest, "bytes", n)
	}
	return res
}

func (f *Fetcher) fail(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	if f.logger != nil {
		f.logger.Error("download failed", "reference", res.Reference, "err", err)
	}
	return res
}

// FileName is the last path segment of ref without its query string.
func FileName(ref string) string {
	name := ref[strings.LastIndex(ref, "/")+1:]
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	return name
}

// Destination resolves where name is written. Without a folder the name is
// used as is; an existing directory receives the file; any other folder value
// is taken as the target path itself.
func Destination(folder, name string) string {
	if folder == "" {
		return name
	}
	if info, err := os.Stat(folder); err == nil && info.IsDir() {
		return filepath.Join(folder, name)
	}
	return folder
}

// MarkerPath inserts "[counter]" in front of the final path component of dest.
//
// Fetch only checks this path for existence; downloads are written to dest.
func MarkerPath(dest string, counter int) string {
	dir, base := filepath.Split(dest)
	return dir + fmt.Sprintf("[%d]", counter) + base
}

func writeFile(dest string, body io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("chmod %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("rename %s: %w", dest, err)
	}
	return n, nil
}
