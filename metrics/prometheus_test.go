package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Counters(t *testing.T) {
	p, err := NewPrometheus()
	require.NoError(t, err)

	p.ChunkEnqueued("a")
	p.ChunkEnqueued("b")
	p.ChunkUploaded("a", 10)
	p.ChunkUploadFailed("b", false)
	p.ChunkUploadFailed("b", true)
	p.ChunkUploadFailed("b", true)
	p.ChunkDownloaded("a", "ledger", 7)
	p.ChunkDownloadFailed("c")
	p.SourceMismatch("a", "accelerator")
	p.ProviderMessage("GET_CHUNK", "")
	p.ProviderMessage("GET_CHUNK", "ECHUNKNOTFOUND")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.enqueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.uploaded))
	assert.Equal(t, 10.0, testutil.ToFloat64(p.uploadedBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.uploadFailures.WithLabelValues("send")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.uploadFailures.WithLabelValues("validate")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.downloadBytes.WithLabelValues("ledger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.downloadFails))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.mismatches.WithLabelValues("accelerator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.providerMsgs.WithLabelValues("GET_CHUNK", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.providerMsgs.WithLabelValues("GET_CHUNK", "ECHUNKNOTFOUND")))
}

func TestPrometheus_Handler(t *testing.T) {
	p, err := NewPrometheus()
	require.NoError(t, err)
	p.ChunkUploaded("a", 1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "chunkd_upload_completed_total 1"))
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))
	p, err := NewPrometheus()
	require.NoError(t, err)
	assert.Same(t, p, OrNop(p))
}
