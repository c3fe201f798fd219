package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/normalize"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Subscriber keeps a websocket to the insert feed open, redialing with exponential backoff.
// OnConnect runs after every successful dial, so the caller can refetch whatever was inserted
// while the feed was down.
type Subscriber struct {
	URL       string
	Token     string
	OnRow     func(normalize.Row)
	OnConnect func()

	logger     *zap.Logger
	dialer     *websocket.Dialer
	minBackoff time.Duration
}

// NewSubscriber builds a subscriber for the backend at baseURL (http or https).
func NewSubscriber(baseURL, token string, onRow func(normalize.Row), onConnect func(), logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		URL:        FeedURL(baseURL),
		Token:      token,
		OnRow:      onRow,
		OnConnect:  onConnect,
		logger:     logger.Named("realtime"),
		dialer:     websocket.DefaultDialer,
		minBackoff: minBackoff,
	}
}

// FeedURL maps the backend base URL to the websocket endpoint.
func FeedURL(baseURL string) string {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return baseURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/realtime"
	return u.String()
}

// Run blocks until ctx ends. Connection failures are logged and retried.
func (s *Subscriber) Run(ctx context.Context) {
	wait := s.minBackoff
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			wait = s.minBackoff
		}
		s.logger.Debug("realtime feed disconnected", zap.Error(err), zap.Duration("retry_in", wait))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
		wait = nextBackoff(wait)
	}
}

// session dials once and reads frames until the connection drops.
func (s *Subscriber) session(ctx context.Context) (connected bool, err error) {
	header := http.Header{}
	if s.Token != "" {
		header.Set("Authorization", "Bearer "+s.Token)
	}
	conn, _, err := s.dialer.DialContext(ctx, s.URL, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller goes away.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if s.OnConnect != nil {
		s.OnConnect()
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		row, ok, err := DecodeRow(data)
		if err != nil {
			s.logger.Warn("bad realtime frame", zap.Error(err))
			continue
		}
		if ok && s.OnRow != nil {
			s.OnRow(row)
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
