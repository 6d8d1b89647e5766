package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/draws/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/draws/:id", "418"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/draws/7", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/draws/:id", "418"))
	require.Equal(t, before+1, after)
	require.Zero(t, testutil.ToFloat64(HTTPRequestsInFlight))
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404"))
	series := testutil.CollectAndCount(HTTPRequestsTotal)
	for _, path := range []string{"/wp-admin", "/.env", "/a/b/c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404"))
	require.Equal(t, before+3, after)
	require.Equal(t, series, testutil.CollectAndCount(HTTPRequestsTotal))
}

func TestRecordBalances(t *testing.T) {
	RecordBalances(*uint256.NewInt(1_500), *uint256.NewInt(20), uint256.Int{})
	require.Equal(t, 1500.0, testutil.ToFloat64(PoolAmount.WithLabelValues("pool")))
	require.Equal(t, 20.0, testutil.ToFloat64(PoolAmount.WithLabelValues("reserved")))
	require.Zero(t, testutil.ToFloat64(PoolAmount.WithLabelValues("excess")))

	RecordOperation("purchase", "ok")
	require.GreaterOrEqual(t, testutil.ToFloat64(OperationsTotal.WithLabelValues("purchase", "ok")), 1.0)
}
