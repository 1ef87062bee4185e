package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type FeedStatus string

const (
	FeedConnecting   FeedStatus = "connecting"
	FeedConnected    FeedStatus = "connected"
	FeedDisconnected FeedStatus = "disconnected"
)

// Event types pushed by the upstream notification feed.
const (
	EventNotification   = "notification"
	EventShipmentUpdate = "shipment_update"
	EventTrackingUpdate = "tracking_update"
	EventSystemAlert    = "system_alert"
)

type FeedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type FeedOptions struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	InitialInterval  time.Duration
	MaxInterval      time.Duration
}

// Feed keeps one WebSocket connection to the upstream notification topic
// open, reconnecting with exponential backoff until its context ends.
type Feed struct {
	opts     FeedOptions
	dialer   *websocket.Dialer
	onEvent  func(FeedEvent)
	onStatus func(FeedStatus)
	log      *logrus.Entry

	mu     sync.RWMutex
	status FeedStatus
}

func NewFeed(opts FeedOptions, onEvent func(FeedEvent), onStatus func(FeedStatus)) *Feed {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.InitialInterval == 0 {
		opts.InitialInterval = time.Second
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = 10 * time.Second
	}
	if onEvent == nil {
		onEvent = func(FeedEvent) {}
	}
	if onStatus == nil {
		onStatus = func(FeedStatus) {}
	}

	return &Feed{
		opts:     opts,
		dialer:   &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		onEvent:  onEvent,
		onStatus: onStatus,
		log:      logrus.WithField("component", "upstream_feed"),
		status:   FeedDisconnected,
	}
}

func (f *Feed) Status() FeedStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *Feed) setStatus(status FeedStatus) {
	f.mu.Lock()
	changed := f.status != status
	f.status = status
	f.mu.Unlock()

	if changed {
		f.onStatus(status)
	}
}

// Run blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.InitialInterval
	b.MaxInterval = f.opts.MaxInterval
	b.MaxElapsedTime = 0

	for {
		f.setStatus(FeedConnecting)
		connected, err := f.connectAndRead(ctx)
		f.setStatus(FeedDisconnected)

		if ctx.Err() != nil {
			return
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		f.log.WithFields(logrus.Fields{
			"error": errString(err),
			"retry": wait.String(),
		}).Warn("notification feed disconnected")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (f *Feed) connectAndRead(ctx context.Context) (bool, error) {
	header := http.Header{}
	if f.opts.Token != "" {
		header.Set("Authorization", "Bearer "+f.opts.Token)
	}

	conn, _, err := f.dialer.DialContext(ctx, f.opts.URL, header)
	if err != nil {
		return false, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	f.setStatus(FeedConnected)
	f.log.WithField("url", f.opts.URL).Info("notification feed connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var evt FeedEvent
		if err := json.Unmarshal(data, &evt); err != nil || evt.Type == "" {
			f.log.WithField("size", len(data)).Debug("skipping malformed feed frame")
			continue
		}
		f.onEvent(evt)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
