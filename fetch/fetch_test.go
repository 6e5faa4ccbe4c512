package fetch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/limited.png":
			http.Error(w, "slow down", http.StatusTooManyRequests)
		case "/forbidden.png":
			http.Error(w, "expired", http.StatusForbidden)
		default:
			_, _ = w.Write([]byte("payload:" + r.URL.Path))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestFetchDownloads(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	dir := t.TempDir()

	var seen http.Header
	client := srv.Client()
	client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Clone()
		return http.DefaultTransport.RoundTrip(r)
	})

	f := New(Options{Client: client}, nil)
	res := f.Fetch(context.Background(), srv.URL+"/files/a.png?ex=123&is=456", 1, dir)

	require.Equal(t, OutcomeDownloaded, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, filepath.Join(dir, "a.png"), res.Path)
	assert.Equal(t, int64(len("payload:/files/a.png")), res.Bytes)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "payload:/files/a.png", string(data))

	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	assert.Equal(t, DefaultUserAgent, seen.Get("User-Agent"))
	assert.Equal(t, "*/*", seen.Get("Accept"))
	assert.Equal(t, DefaultAcceptLanguage, seen.Get("Accept-Language"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should remain")
}

func TestFetchSkipsWhenMarkerExists(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "[3]a.png"), []byte("old"), 0o600))

	f := New(Options{Client: srv.Client()}, nil)
	res := f.Fetch(context.Background(), srv.URL+"/a.png", 3, dir)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, filepath.Join(dir, "a.png"), res.Path)
	assert.Equal(t, int32(0), hits.Load())
	assert.NoFileExists(t, filepath.Join(dir, "a.png"))
}

func TestFetchMarkerIsCounterSpecific(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "[3]a.png"), []byte("old"), 0o600))

	f := New(Options{Client: srv.Client()}, nil)
	res := f.Fetch(context.Background(), srv.URL+"/a.png", 4, dir)

	assert.Equal(t, OutcomeDownloaded, res.Outcome)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchRejectionsAreSilent(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	dir := t.TempDir()
	logger, logs := newLogger()
	f := New(Options{Client: srv.Client()}, logger)

	refs := []string{srv.URL + "/limited.png", srv.URL + "/forbidden.png", srv.URL + "/ok.png"}
	var results []Result
	for i, ref := range refs {
		results = append(results, f.Fetch(context.Background(), ref, i+1, dir))
	}

	require.Len(t, results, 3)
	for _, res := range results[:2] {
		assert.Equal(t, OutcomeRejected, res.Outcome)
		assert.Empty(t, res.Path)
		var statusErr *StatusError
		require.True(t, errors.As(res.Err, &statusErr))
	}
	assert.Equal(t, OutcomeDownloaded, results[2].Outcome)
	assert.Equal(t, int32(3), hits.Load())
	assert.NotContains(t, logs.String(), "level=ERROR")
	assert.NoFileExists(t, filepath.Join(dir, "limited.png"))
}

func TestFetchFailures(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	tests := []struct {
		name   string
		ref    string
		folder string
	}{
		{name: "malformed url", ref: "http://[::1/a.png", folder: t.TempDir()},
		{name: "bare file name", ref: "a.png", folder: t.TempDir()},
		{name: "unwritable destination", ref: srv.URL + "/a.png", folder: filepath.Join(t.TempDir(), "missing", "a.png")},
		{name: "no file name", ref: srv.URL + "/", folder: t.TempDir()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := newLogger()
			f := New(Options{Client: srv.Client()}, logger)

			res := f.Fetch(context.Background(), tt.ref, 1, tt.folder)
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Empty(t, res.Path)
			assert.Error(t, res.Err)
			assert.Contains(t, logs.String(), "download failed")
		})
	}
}

func TestFetchNoFileNameError(t *testing.T) {
	f := New(Options{}, nil)
	res := f.Fetch(context.Background(), "https://cdn.example.com/", 1, t.TempDir())
	assert.ErrorIs(t, res.Err, ErrNoFileName)
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"https://cdn.example.com/attachments/1/2/a.png?ex=1&is=2": "a.png",
		"https://cdn.example.com/b.txt":                           "b.txt",
		"plain.png":                                               "plain.png",
		"https://cdn.example.com/":                                "",
	}
	for ref, want := range tests {
		assert.Equal(t, want, FileName(ref), ref)
	}
}

func TestDestination(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "target.bin")

	assert.Equal(t, "a.png", Destination("", "a.png"))
	assert.Equal(t, filepath.Join(dir, "a.png"), Destination(dir, "a.png"))
	assert.Equal(t, file, Destination(file, "a.png"))
}

func TestMarkerPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "download", "[12]a.png"), MarkerPath(filepath.Join("out", "download", "a.png"), 12))
	assert.Equal(t, "[1]a.png", MarkerPath("a.png", 1))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
