package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	applogger "KlineStream/pkg/logger"
)

func TestMetrics_LabelsByRouteTemplate(t *testing.T) {
	m := newHTTPMetrics(prometheus.NewRegistry())
	e := echo.New()
	e.Use(metricsWith(m, applogger.Nop(), 0))
	e.GET("/api/klines/:window", func(c echo.Context) error {
		if c.Param("window") == "7m" {
			return echo.NewHTTPError(http.StatusBadRequest)
		}
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/api/klines/1s", "/api/klines/1m", "/api/klines/7m"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/klines/:window", http.MethodGet, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/klines/:window", http.MethodGet, "400")))
	assert.Zero(t, testutil.ToFloat64(m.inFlight.WithLabelValues("/api/klines/:window")))
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{101: "1xx", 204: "2xx", 304: "3xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		assert.Equal(t, want, statusClass(code), "code %d", code)
	}
}
