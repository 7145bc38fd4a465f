package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesApplicationMetrics(t *testing.T) {
	reg := NewRegistry()
	RemoteDivergence.Inc()
	SyncOperations.WithLabelValues("sync", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "autenticador_remote_divergence_total")
	require.Contains(t, string(body), `autenticador_sync_operations_total{operation="sync",outcome="ok"}`)
	require.Contains(t, string(body), "go_goroutines")
}
