package accelerator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/chunkd/digest"
)

func TestHTTPSource(t *testing.T) {
	data := []byte("accelerated")
	id := digest.Digest(data)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chunks/"+id {
			_, _ = w.Write(data)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/", 0, 0)
	got, err := src.Fetch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = src.Fetch(context.Background(), digest.Digest([]byte("other")))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = src.Fetch(context.Background(), "../../secret")
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(src.Name(), "accelerator:"))
}

// fakeS3 answers path-style GetObject requests for one bucket.
func fakeS3(t *testing.T, bucket string, objects map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/"+bucket+"/")
		data, ok := objects[key]
		if r.Method != http.MethodGet || !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	}))
}

func TestS3Source(t *testing.T) {
	data := []byte("from the bucket")
	id := digest.Digest(data)
	srv := fakeS3(t, "chunks", map[string][]byte{"v1/" + id: data})
	defer srv.Close()

	src, err := NewS3Source(S3Config{
		Bucket:    "chunks",
		Prefix:    "v1/",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
		PathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "s3:chunks", src.Name())

	got, err := src.Fetch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = src.Fetch(context.Background(), digest.Digest([]byte("absent")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3SourceRequiresBucket(t *testing.T) {
	_, err := NewS3Source(S3Config{})
	assert.Error(t, err)
}
