package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amandeep2102/vision-chat/backend/logger"
	"github.com/amandeep2102/vision-chat/shared/models"
)

const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultMaxImageBytes = 15 << 20
)

var (
	ErrLocalImageMissing = errors.New("local image missing")
	ErrFetchFailed       = errors.New("image fetch failed")
)

// ImageGetter is the read side of the image store.
type ImageGetter interface {
	Get(id string) (string, error)
}

type Resolver struct {
	store        ImageGetter
	client       *http.Client
	fetchTimeout time.Duration
	maxBytes     int64
}

type ResolverOption func(*Resolver)

// WithHTTPClient replaces the default client. The client is never modified;
// the fetch timeout is applied per request.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) { r.client = c }
}

func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.fetchTimeout = d }
}

func WithMaxImageBytes(n int64) ResolverOption {
	return func(r *Resolver) { r.maxBytes = n }
}

func NewResolver(store ImageGetter, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:        store,
		client:       &http.Client{},
		fetchTimeout: DefaultFetchTimeout,
		maxBytes:     DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LocalImageID reports whether ref may point at this process's image store:
// "/api/images/{id}", "http://host/api/images/{id}" or a bare uuid. An
// absolute URL is only a candidate; Resolve fetches it when the id is unknown.
func LocalImageID(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if u, err := url.Parse(ref); err == nil && strings.Contains(u.Path, models.ImageURLPrefix) {
		id := path.Base(u.Path)
		if id == "" || id == "." || id == "/" {
			return "", false
		}
		return id, true
	}
	if _, err := uuid.Parse(ref); err == nil && !strings.Contains(ref, ":") {
		return ref, true
	}
	return "", false
}

// Resolve returns the base64 payload (no data URI prefix) behind ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if id, ok := LocalImageID(ref); ok {
		data, err := r.store.Get(id)
		if err == nil {
			return models.StripDataURI(data), nil
		}
		if !isAbsoluteURL(ref) {
			return "", fmt.Errorf("%w: %s: %v", ErrLocalImageMissing, id, err)
		}
		logger.Debugf("[IMAGE] %s is not in the store, fetching remotely", id)
	}
	if strings.HasPrefix(ref, "data:") {
		return models.StripDataURI(ref), nil
	}
	raw, err := r.fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	return EncodeBase64(raw), nil
}

func isAbsoluteURL(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (r *Resolver) fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: unsupported reference %q", ErrFetchFailed, ref)
	}

	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetchFailed, u.Redacted(), resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
	}
	if int64(len(raw)) > r.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFetchFailed, r.maxBytes)
	}
	return raw, nil
}
