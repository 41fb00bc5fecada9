package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore map[string]string

func (m mapStore) Get(id string) (string, error) {
	if v, ok := m[id]; ok {
		return v, nil
	}
	return "", errors.New("image not found")
}

const testID = "3f2b6a8e-1c1d-4f4e-9a4b-2f7d9c0e5a11"

func TestLocalImageID(t *testing.T) {
	tests := []struct {
		ref    string
		wantID string
		local  bool
	}{
		{"/api/images/" + testID, testID, true},
		{"http://localhost:8000/api/images/" + testID, testID, true},
		{"https://host.example/api/images/abc?x=1", "abc", true}, // candidate only, see TestResolveForeignHostImagePath
		{testID, testID, true},
		{"https://example.com/cat.png", "", false},
		{"", "", false},
		{"urn:uuid:" + testID, "", false},
	}
	for _, tt := range tests {
		id, ok := LocalImageID(tt.ref)
		assert.Equal(t, tt.local, ok, tt.ref)
		assert.Equal(t, tt.wantID, id, tt.ref)
	}
}

func TestResolveLocal(t *testing.T) {
	r := NewResolver(mapStore{testID: "data:image/png;base64,QUJD"})

	got, err := r.Resolve(context.Background(), "/api/images/"+testID)
	require.NoError(t, err)
	assert.Equal(t, "QUJD", got)
}

func TestResolveLocalMissing(t *testing.T) {
	r := NewResolver(mapStore{})

	_, err := r.Resolve(context.Background(), "/api/images/"+testID)
	assert.ErrorIs(t, err, ErrLocalImageMissing)
	assert.NotErrorIs(t, err, ErrFetchFailed)
}

func TestResolveRemote(t *testing.T) {
	body := testPNG(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	r := NewResolver(mapStore{})
	got, err := r.Resolve(context.Background(), srv.URL+"/cat.png")
	require.NoError(t, err)
	assert.Equal(t, EncodeBase64(body), got)

	img, err := Decode(got)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestResolveRemoteFailures(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer big.Close()

	r := NewResolver(mapStore{}, WithFetchTimeout(100*time.Millisecond), WithMaxImageBytes(32))

	for name, ref := range map[string]string{
		"status":  notFound.URL + "/missing.png",
		"timeout": slow.URL + "/slow.png",
		"too big": big.URL + "/big.png",
		"scheme":  "ftp://example.com/a.png",
		"garbage": "not a url",
	} {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			_, err := r.Resolve(context.Background(), ref)
			assert.ErrorIs(t, err, ErrFetchFailed)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestResolveInlineDataURI(t *testing.T) {
	r := NewResolver(mapStore{})
	got, err := r.Resolve(context.Background(), "data:image/png;base64,QUJD")
	require.NoError(t, err)
	assert.Equal(t, "QUJD", got)
}

func TestResolveForeignHostImagePath(t *testing.T) {
	body := testPNG(t, 3, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cdn/api/images/photo.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	r := NewResolver(mapStore{})
	got, err := r.Resolve(context.Background(), srv.URL+"/cdn/api/images/photo.png")
	require.NoError(t, err)
	assert.Equal(t, EncodeBase64(body), got)
}

func TestResolveAbsoluteURLPrefersStore(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r := NewResolver(mapStore{testID: "QUJD"})
	got, err := r.Resolve(context.Background(), srv.URL+"/api/images/"+testID)
	require.NoError(t, err)
	assert.Equal(t, "QUJD", got)
	assert.Zero(t, hits.Load())
}

func TestFetchTimeoutDoesNotTouchClient(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	shared := &http.Client{}
	for name, opts := range map[string][]ResolverOption{
		"client first":  {WithHTTPClient(shared), WithFetchTimeout(100 * time.Millisecond)},
		"timeout first": {WithFetchTimeout(100 * time.Millisecond), WithHTTPClient(shared)},
	} {
		t.Run(name, func(t *testing.T) {
			r := NewResolver(mapStore{}, opts...)
			start := time.Now()
			_, err := r.Resolve(context.Background(), slow.URL+"/slow.png")
			assert.ErrorIs(t, err, ErrFetchFailed)
			assert.Less(t, time.Since(start), time.Second)
			assert.Zero(t, shared.Timeout)
		})
	}
}
