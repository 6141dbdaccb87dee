package ws

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	models "KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
	"KlineStream/internal/service/ratelimit"
	"KlineStream/internal/usecase"
	xhttp "KlineStream/pkg/http"
	xlogger "KlineStream/pkg/logger"
)

// KlineWSHandler upgrades /ws requests and runs one distribution session per
// connection.
type KlineWSHandler struct {
	logger   *xlogger.Logger
	windows  *models.WindowSet
	bus      drepo.BusSubscriber
	topic    string
	metrics  drepo.Metrics
	cfg      TransportConfig
	limiter  *ratelimit.Limiter
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	seq    atomic.Uint64
}

// NewKlineWSHandler creates the handler. limiter may be nil to admit every
// upgrade.
func NewKlineWSHandler(logger *xlogger.Logger, windows *models.WindowSet, bus drepo.BusSubscriber, topic string, metrics drepo.Metrics, cfg TransportConfig, limiter *ratelimit.Limiter) *KlineWSHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &KlineWSHandler{
		logger:  logger.With(xlogger.String("component", "ws")),
		windows: windows,
		bus:     bus,
		topic:   topic,
		metrics: metrics,
		cfg:     cfg,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *KlineWSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve blocks for the lifetime of the session.
func (h *KlineWSHandler) Serve(c echo.Context) error {
	if !h.acquire() {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("shutting down"))
	}
	defer h.wg.Done()

	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		h.metrics.RecordError("ws_rate_limited")
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many connections"))
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		h.metrics.RecordError("ws_upgrade")
		h.logger.Warn("ws upgrade failed", xlogger.String("remote", c.RealIP()), xlogger.Error(err))
		return nil
	}

	id := "ws-" + strconv.FormatUint(h.seq.Add(1), 10)
	h.logger.Info("ws connected", xlogger.String("session_id", id), xlogger.String("remote", c.RealIP()))

	session := usecase.NewDistributionSession(id, h.windows, newConn(ws, h.cfg), h.bus, h.topic, h.metrics, h.logger)
	if err := session.Run(h.ctx); err != nil {
		h.logger.Warn("session ended with error", xlogger.String("session_id", id), xlogger.Error(err))
	}
	return nil
}

func (h *KlineWSHandler) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// Close ends every running session and waits for them to finish. Later
// upgrade requests are refused.
func (h *KlineWSHandler) Close() {
	h.mu.Lock()
	h.closed = true
	h.cancel()
	h.mu.Unlock()
	h.wg.Wait()
}
