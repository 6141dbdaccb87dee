package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
	pkghttp "KlineStream/pkg/http"
	"KlineStream/pkg/logger"
)

// Config describes one Finnhub symbol feed.
type Config struct {
	APIKey         string
	WebsocketURL   string
	QuoteURL       string // optional; seeds one tick from the REST quote before streaming
	Symbol         string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Source is a TickSource backed by the Finnhub trade websocket.
type Source struct {
	cfg    Config
	http   *pkghttp.Client
	dialer *websocket.Dialer
	log    *logger.Logger
}

var _ drepo.TickSource = (*Source)(nil)

// New creates a Finnhub tick source. client may be nil when QuoteURL is empty.
func New(cfg Config, client *pkghttp.Client, log *logger.Logger) *Source {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Source{
		cfg:    cfg,
		http:   client,
		dialer: websocket.DefaultDialer,
		log:    log.With(logger.String("source", "finnhub"), logger.String("symbol", cfg.Symbol)),
	}
}

func (s *Source) Name() string { return "finnhub:" + s.cfg.Symbol }

// Run streams trades until ctx is cancelled, reconnecting after read errors.
func (s *Source) Run(ctx context.Context, out chan<- models.Tick) error {
	if s.cfg.QuoteURL != "" && s.http != nil {
		if t, err := s.quote(ctx); err != nil {
			s.log.Warn("quote seed failed", logger.Error(err))
		} else if !emit(ctx, out, t) {
			return ctx.Err()
		}
	}

	for {
		err := s.stream(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("finnhub stream interrupted, reconnecting",
			logger.Error(err),
			logger.Duration("delay_ms", s.cfg.ReconnectDelay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *Source) stream(ctx context.Context, out chan<- models.Tick) error {
	u, err := url.Parse(s.cfg.WebsocketURL)
	if err != nil {
		return fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", s.cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s.cfg.Symbol}); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Symbol, err)
	}
	s.log.Info("finnhub subscribed")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				// unblocks ReadMessage
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		for _, t := range parseTrades(b, s.cfg.Symbol) {
			if !emit(ctx, out, t) {
				return ctx.Err()
			}
		}
	}
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// parseTrades turns a trade frame into ticks. Non-trade frames (pings,
// errors) and trades for other symbols yield nothing.
func parseTrades(b []byte, symbol string) []models.Tick {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return nil
	}
	ticks := make([]models.Tick, 0, len(m.Data))
	for _, d := range m.Data {
		if symbol != "" && d.S != "" && d.S != symbol {
			continue
		}
		ticks = append(ticks, models.Tick{Price: d.P, Timestamp: d.T / 1000})
	}
	return ticks
}

type fhQuote struct {
	Current float64 `json:"c"`
	Time    int64   `json:"t"` // seconds
}

func (s *Source) quote(ctx context.Context) (models.Tick, error) {
	var q fhQuote
	err := s.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		URL: s.cfg.QuoteURL,
		QueryParams: map[string][]string{
			"symbol": {s.cfg.Symbol},
			"token":  {s.cfg.APIKey},
		},
	}, &q)
	if err != nil {
		return models.Tick{}, fmt.Errorf("finnhub quote: %w", err)
	}
	if q.Current <= 0 {
		return models.Tick{}, fmt.Errorf("finnhub quote: empty price for %s", s.cfg.Symbol)
	}
	ts := q.Time
	if ts <= 0 {
		ts = time.Now().Unix()
	}
	return models.Tick{Price: q.Current, Timestamp: ts}, nil
}

func emit(ctx context.Context, out chan<- models.Tick, t models.Tick) bool {
	select {
	case out <- t:
		return true
	case <-ctx.Done():
		return false
	}
}
