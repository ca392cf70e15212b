package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(AppointmentsCreated.WithLabelValues("single"))
	AppointmentsCreated.WithLabelValues("single").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AppointmentsCreated.WithLabelValues("single")))

	beforeJob := testutil.ToFloat64(JobAffected.WithLabelValues("auto-complete-appointments"))
	JobAffected.WithLabelValues("auto-complete-appointments").Add(3)
	assert.Equal(t, beforeJob+3, testutil.ToFloat64(JobAffected.WithLabelValues("auto-complete-appointments")))
}

func TestMiddleware(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(HTTPDuration), 1)
}
