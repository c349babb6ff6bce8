package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrumentRecordsStatus(t *testing.T) {
	handler := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/probe", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	count := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/probe", "418"))
	assert.GreaterOrEqual(t, count, float64(1))
}

func TestSetReady(t *testing.T) {
	SetReady(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(readyGauge))
	SetReady(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(readyGauge))
}
