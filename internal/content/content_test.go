package content

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const packHash = "QmWWH69mTL66r3H8P4wUn24t1L5pvdTJGUTKBqT11KCHS5"

func rawCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, sum)
}

// gateway serves body for every /ipfs/ path and counts requests.
func gateway(t *testing.T, status int, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodGet || filepath.Dir(r.URL.Path) != "/ipfs" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newResolver(t *testing.T, srv *httptest.Server) *Resolver {
	t.Helper()
	r, err := NewResolver(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return r
}

func TestResolver_URL(t *testing.T) {
	r, err := NewResolver("")
	require.NoError(t, err)

	u, err := r.URL(packHash, "emojis.zip")
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.ipfscdn.io/ipfs/"+packHash+"?filename=emojis.zip", u)

	u, err = r.URL(packHash, "")
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.ipfscdn.io/ipfs/"+packHash, u)
}

func TestResolver_URLInvalidHash(t *testing.T) {
	r, err := NewResolver("")
	require.NoError(t, err)

	_, err = r.URL("not-a-cid", "x")
	require.ErrorIs(t, err, ErrInvalidHash)
}

func TestNewResolver_BadScheme(t *testing.T) {
	_, err := NewResolver("ftp://gateway")
	require.Error(t, err)
}

func TestResolver_FetchRawVerified(t *testing.T) {
	data := []byte("emoji pack contents")
	c := rawCID(t, data)
	srv, _ := gateway(t, http.StatusOK, data)

	var buf bytes.Buffer
	n, err := newResolver(t, srv).Fetch(context.Background(), c.String(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())
}

func TestResolver_FetchRawMismatch(t *testing.T) {
	c := rawCID(t, []byte("expected"))
	srv, _ := gateway(t, http.StatusOK, []byte("tampered"))

	var buf bytes.Buffer
	_, err := newResolver(t, srv).Fetch(context.Background(), c.String(), &buf)
	require.ErrorIs(t, err, ErrHashMismatch)
	assert.Zero(t, buf.Len())
}

func TestResolver_FetchDagPassThrough(t *testing.T) {
	srv, _ := gateway(t, http.StatusOK, []byte("zip bytes"))

	var buf bytes.Buffer
	_, err := newResolver(t, srv).Fetch(context.Background(), packHash, &buf)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", buf.String())
}

func TestResolver_FetchStatus(t *testing.T) {
	srv, _ := gateway(t, http.StatusNotFound, nil)

	_, err := newResolver(t, srv).Fetch(context.Background(), packHash, &bytes.Buffer{})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestDownload_Ready(t *testing.T) {
	data := []byte("payload")
	c := rawCID(t, data)
	srv, _ := gateway(t, http.StatusOK, data)
	dir := t.TempDir()

	d := Start(context.Background(), newResolver(t, srv), c.String(), "../emojis.zip", dir)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path, err := d.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "emojis.zip"), path)
	assert.False(t, d.Pending())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, size, ok := d.Ready()
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), size)
}

func TestDownload_FailureStaysPending(t *testing.T) {
	srv, hits := gateway(t, http.StatusInternalServerError, nil)
	dir := t.TempDir()

	d := Start(context.Background(), newResolver(t, srv), packHash, "emojis.zip", dir)

	require.Eventually(t, func() bool { return d.Err() != nil }, 5*time.Second, time.Millisecond)
	assert.True(t, d.Pending())
	_, _, ok := d.Ready()
	assert.False(t, ok)
	assert.Equal(t, int32(1), hits.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := d.Wait(ctx)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.NoError(t, ctx.Err())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_RetriesWithBackOff(t *testing.T) {
	data := []byte("eventually")
	c := rawCID(t, data)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
	d := Start(context.Background(), newResolver(t, srv), c.String(), "f.bin", t.TempDir(), WithBackOff(b))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := d.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDownload_MismatchNotRetried(t *testing.T) {
	c := rawCID(t, []byte("expected"))
	srv, hits := gateway(t, http.StatusOK, []byte("tampered"))

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
	d := Start(context.Background(), newResolver(t, srv), c.String(), "f.bin", t.TempDir(), WithBackOff(b))

	require.Eventually(t, func() bool { return d.Err() != nil }, 5*time.Second, time.Millisecond)
	require.ErrorIs(t, d.Err(), ErrHashMismatch)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, d.Pending())
}
