package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHandlerExposesCollectors(t *testing.T) {
	RelayMessages.WithLabelValues("duplicate").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(RelayMessages.WithLabelValues("duplicate")), 1.0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "linkhub_relay_messages_total")
}
