// Package content retrieves purchased files from IPFS through an HTTP
// gateway.
package content

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// DefaultGateway is the public IPFS gateway used when none is configured.
const DefaultGateway = "https://gateway.ipfscdn.io"

// maxRawBlock bounds raw blocks buffered for verification.
const maxRawBlock = 4 << 20

var (
	// ErrHashMismatch is returned when fetched bytes do not match the CID.
	ErrHashMismatch = errors.New("content does not match hash")
	// ErrInvalidHash is returned for hashes that are not valid CIDs.
	ErrInvalidHash = errors.New("invalid content hash")
)

// StatusError is returned when the gateway responds with a non-200 status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "gateway responded " + http.StatusText(e.StatusCode)
}

// Resolver maps content hashes to gateway URLs and fetches them.
type Resolver struct {
	gateway *url.URL
	client  *http.Client
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the HTTP client used for fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// NewResolver creates a Resolver for the given gateway base URL. An empty
// gateway selects DefaultGateway.
func NewResolver(gateway string, opts ...Option) (*Resolver, error) {
	if gateway == "" {
		gateway = DefaultGateway
	}
	u, err := url.Parse(gateway)
	if err != nil {
		return nil, errors.Wrap(err, "parse gateway")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported gateway scheme %q", u.Scheme)
	}
	r := &Resolver{gateway: u, client: http.DefaultClient}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Parse validates hash as a CID.
func Parse(hash string) (cid.Cid, error) {
	c, err := cid.Decode(hash)
	if err != nil {
		return cid.Undef, errors.Wrapf(ErrInvalidHash, "%s: %v", hash, err)
	}
	return c, nil
}

// URL returns the gateway URL serving hash under filename.
func (r *Resolver) URL(hash, filename string) (string, error) {
	c, err := Parse(hash)
	if err != nil {
		return "", err
	}
	return r.url(c, filename), nil
}

func (r *Resolver) url(c cid.Cid, filename string) string {
	u := r.gateway.JoinPath("ipfs", c.String())
	if filename != "" {
		u.RawQuery = url.Values{"filename": {filename}}.Encode()
	}
	return u.String()
}

// Fetch streams the content for hash into w and returns the number of bytes
// written. Raw blocks are verified against the CID before being written.
func (r *Resolver) Fetch(ctx context.Context, hash string, w io.Writer) (int64, error) {
	c, err := Parse(hash)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(c, ""), http.NoBody)
	if err != nil {
		return 0, errors.Wrap(err, "create request")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "get content")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{StatusCode: resp.StatusCode}
	}

	if c.Type() != cid.Raw {
		n, err := io.Copy(w, resp.Body)
		if err != nil {
			return n, errors.Wrap(err, "copy content")
		}
		return n, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRawBlock+1))
	if err != nil {
		return 0, errors.Wrap(err, "read block")
	}
	if len(data) > maxRawBlock {
		return 0, errors.Errorf("raw block exceeds %d bytes", maxRawBlock)
	}
	if err := Verify(c, data); err != nil {
		return 0, err
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	if err != nil {
		return n, errors.Wrap(err, "write block")
	}
	return n, nil
}

// Verify checks that data hashes to the multihash of c.
func Verify(c cid.Cid, data []byte) error {
	dec, err := mh.Decode(c.Hash())
	if err != nil {
		return errors.Wrap(err, "decode multihash")
	}
	sum, err := mh.Sum(data, dec.Code, dec.Length)
	if err != nil {
		return errors.Wrap(err, "hash content")
	}
	if !bytes.Equal(sum, c.Hash()) {
		return ErrHashMismatch
	}
	return nil
}
