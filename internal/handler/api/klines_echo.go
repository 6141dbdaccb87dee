package api

import (
	"errors"
	"strings"

	models "KlineStream/internal/domain/models"
	"KlineStream/internal/usecase"
	xhttp "KlineStream/pkg/http"
	xlogger "KlineStream/pkg/logger"

	"github.com/labstack/echo/v4"
)

// KlinesEchoHandler serves the latest published kline per window.
type KlinesEchoHandler struct {
	logger *xlogger.Logger
	snaps  *usecase.KlineSnapshots
	health models.Health
}

// NewKlinesEchoHandler creates the handler. snaps may be nil when snapshots are
// disabled; only /healthz is served then.
func NewKlinesEchoHandler(logger *xlogger.Logger, snaps *usecase.KlineSnapshots, health models.Health) *KlinesEchoHandler {
	health.Status = "ok"
	return &KlinesEchoHandler{logger: logger, snaps: snaps, health: health}
}

func (h *KlinesEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	if h.snaps == nil {
		return
	}
	g := e.Group("/api")
	g.GET("/klines", h.List)
	g.GET("/klines/:window", h.Get)
}

func (h *KlinesEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.health)
}

func (h *KlinesEchoHandler) List(c echo.Context) error {
	req := &models.KlinesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.snaps.All()
	if err != nil {
		h.logger.Error("list klines", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if req.Windows != "" {
		want := make(map[models.TimeWindow]bool)
		for _, label := range strings.Split(req.Windows, ",") {
			w, err := h.snaps.Windows().ParseLabel(strings.TrimSpace(label))
			if err != nil {
				return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown window %q", label).WithField("windows").WithError(err))
			}
			want[w] = true
		}
		filtered := rows[:0]
		for _, k := range rows {
			if want[k.Window()] {
				filtered = append(filtered, k)
			}
		}
		rows = filtered
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *KlinesEchoHandler) Get(c echo.Context) error {
	req := &models.KlineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	w, err := h.snaps.Windows().ParseLabel(req.Window)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown window %q", req.Window).WithField("window").WithError(err))
	}

	k, err := h.snaps.Latest(w)
	switch {
	case errors.Is(err, usecase.ErrNoSnapshot):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no kline published for %s yet", w.Label()))
	case err != nil:
		h.logger.Error("get kline", xlogger.String("window", w.Label()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, k)
}
