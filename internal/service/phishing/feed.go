package phishing

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// feedMessage is one change notification from the domain feed.
type feedMessage struct {
	Type    string   `json:"type"`
	Domains []string `json:"domains"`
}

const (
	feedInitialBackoff = time.Second
	feedMaxBackoff     = 5 * time.Minute
)

// reconnectBackoff doubles the delay on every consecutive failure up
// to feedMaxBackoff. A successful connection resets it, so a one-off
// blip after a bad streak does not inherit the accumulated delay.
type reconnectBackoff struct {
	next time.Duration
}

func (b *reconnectBackoff) reset() {
	b.next = feedInitialBackoff
}

func (b *reconnectBackoff) wait() time.Duration {
	delay := b.next
	b.next *= 2
	if b.next > feedMaxBackoff {
		b.next = feedMaxBackoff
	}
	return delay
}

// ConsumeFeed connects to the domain feed and applies add/delete
// changes to the blocklist until the context is cancelled. Dropped
// connections are retried with exponential backoff.
func (s *Service) ConsumeFeed(ctx context.Context) {
	var backoff reconnectBackoff
	backoff.reset()

	for {
		connected, err := s.consumeOnce(ctx)
		if connected {
			backoff.reset()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			delay := backoff.wait()
			s.logger.Warn("Phishing feed connection lost, reconnecting",
				"error", err,
				"backoff", delay,
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}

		return
	}
}

// consumeOnce reports whether the connection was established so the
// caller can distinguish a dial failure from a dropped stream.
func (s *Service) consumeOnce(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("X-Identity", s.identity)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, apiFeed, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if size, err := s.Size(ctx); err == nil {
		s.logger.Info("Connected to phishing feed", "blocklisted", size)
	} else {
		s.logger.Info("Connected to phishing feed")
	}

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		var message feedMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			s.logger.Warn("Malformed phishing feed message", "error", err)
			continue
		}

		switch message.Type {
		case "add":
			if err := s.blocklist.Add(ctx, message.Domains...); err != nil {
				s.logger.Error("Failed to add feed domains", "error", err)
			}
		case "delete":
			if err := s.blocklist.Remove(ctx, message.Domains...); err != nil {
				s.logger.Error("Failed to remove feed domains", "error", err)
			}
		default:
			s.logger.Warn("Unknown phishing feed message type", "type", message.Type)
			continue
		}

		s.logger.Debug("Phishing feed change applied",
			"type", message.Type,
			"domains", len(message.Domains),
		)
	}
}
