package http

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "KlineStream/pkg/logger"
)

var pingHandler = HandlerFunc(func(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
})

func TestServer_StartServeStop(t *testing.T) {
	s := NewServer(applogger.Nop(), []Handler{pingHandler, nil}, WithHost("127.0.0.1"), WithPort(0))
	assert.Nil(t, s.Addr())
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"data":"pong"`)

	resp, err = http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	first := NewServer(applogger.Nop(), nil, WithHost("127.0.0.1"), WithPort(0), WithMetricsPath(""))
	require.NoError(t, first.Start())
	defer func() { _ = first.Stop(context.Background()) }()

	second := NewServer(applogger.Nop(), nil, WithHost("127.0.0.1"), WithPort(first.Addr().Port), WithMetricsPath(""))
	assert.Error(t, second.Start())
}
