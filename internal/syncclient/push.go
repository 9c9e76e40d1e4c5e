package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"notebook/api/internal/realtime"
)

// Notifier receives invalidations decoded from the push channel.
type Notifier interface {
	Notify(key string)
	NotifyAll()
}

// Backoff is an exponential reconnect delay with symmetric jitter.
type Backoff struct {
	Initial      time.Duration
	Max          time.Duration
	Multiplier   float64
	JitterFactor float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:      time.Second,
		Max:          30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.3,
	}
}

// Delay returns the wait before reconnect attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if b.JitterFactor > 0 {
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.Initial)
		}
	}
	return time.Duration(delay)
}

// PushListener holds a websocket open to the API's event stream and turns
// resource.changed events into coordinator notifications.
type PushListener struct {
	endpoint string
	token    string
	notifier Notifier
	dialer   *websocket.Dialer
	logger   zerolog.Logger

	Backoff Backoff

	mu        sync.Mutex
	connected bool
}

func NewPushListener(baseURL, token string, notifier Notifier, logger zerolog.Logger) (*PushListener, error) {
	endpoint, err := pushEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	return &PushListener{
		endpoint: endpoint,
		token:    token,
		notifier: notifier,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:   logger.With().Str("component", "push").Logger(),
		Backoff:  DefaultBackoff(),
	}, nil
}

func pushEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path += "/api/ws"
	return u.String(), nil
}

func (l *PushListener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Run connects and reconnects until ctx ends. Every reconnect after the
// first connection notifies all keys, since events sent while the socket was
// down are lost.
func (l *PushListener) Run(ctx context.Context) error {
	attempt := 0
	connectedBefore := false
	for {
		err := l.session(ctx, func() {
			if connectedBefore {
				l.notifier.NotifyAll()
			}
			connectedBefore = true
			attempt = 0
		})
		if ctx.Err() != nil {
			return nil
		}

		delay := l.Backoff.Delay(attempt)
		attempt++
		l.logger.Warn().Err(err).Dur("retry_in", delay).Msg("push channel disconnected")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (l *PushListener) session(ctx context.Context, onConnect func()) error {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}
	conn, res, err := l.dialer.DialContext(ctx, l.endpoint, header)
	if err != nil {
		if res != nil && res.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("dial push channel: unauthorized")
		}
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer conn.Close()

	l.setConnected(true)
	defer l.setConnected(false)
	l.logger.Debug().Str("endpoint", l.endpoint).Msg("push channel connected")
	onConnect()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("push channel closed by server")
			}
			return err
		}
		l.dispatch(payload)
	}
}

// dispatch notifies the keys an event names. Anything it cannot interpret
// invalidates everything.
func (l *PushListener) dispatch(payload []byte) {
	var event realtime.Event
	if err := json.Unmarshal(payload, &event); err != nil || len(event.Resources) == 0 {
		l.notifier.NotifyAll()
		return
	}
	for _, key := range event.Resources {
		l.notifier.Notify(key)
	}
}

func (l *PushListener) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
}
