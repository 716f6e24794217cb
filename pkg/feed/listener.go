package feed

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/sirupsen/logrus"
)

type ListenerOptions struct {
	// Zero retries forever
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	// Without a message or pong for this long the connection is considered dead
	IdleTimeout  time.Duration
	PingInterval time.Duration
}

func DefaultListenerOptions() ListenerOptions {
	return ListenerOptions{
		MaxRetries:     10,
		BaseRetryDelay: 2 * time.Second,
		MaxRetryDelay:  60 * time.Second,
		IdleTimeout:    15 * time.Minute,
		PingInterval:   30 * time.Second,
	}
}

// FeedURL builds the websocket URL of a capture daemon at host.
func FeedURL(host string) string {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	return u.String()
}

// Listen connects to the feed at feedURL and calls onReading for each
// reading until ctx is cancelled or the retries run out.
func Listen(ctx context.Context, feedURL string, opts ListenerOptions, log logrus.FieldLogger, onReading func(types.StoredReading)) error {
	retryCount := 0
	for {
		if retryCount > 0 {
			retryDelay := time.Duration(1<<min(retryCount-1, 20)) * opts.BaseRetryDelay
			if retryDelay > opts.MaxRetryDelay {
				retryDelay = opts.MaxRetryDelay
			}
			log.Infof("Retrying connection in %v (attempt %d)", retryDelay, retryCount+1)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		log.Infof("Connecting to %s", feedURL)
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		c, _, err := dialer.DialContext(ctx, feedURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("Connection failed")
			retryCount++
			if opts.MaxRetries > 0 && retryCount >= opts.MaxRetries {
				return err
			}
			continue
		}

		log.Info("Connected, accepting readings")
		retryCount = 0

		broken := handleConnection(ctx, c, opts, log, onReading)
		c.Close()
		if !broken {
			return nil
		}
		log.Warn("Connection lost, will retry")
		retryCount = 1
	}
}

// handleConnection returns true when the connection broke and false on a
// requested shutdown.
func handleConnection(ctx context.Context, c *websocket.Conn, opts ListenerOptions, log logrus.FieldLogger, onReading func(types.StoredReading)) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(opts.IdleTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(opts.IdleTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Warn("WebSocket error")
				} else {
					log.WithError(err).Debug("Connection closed")
				}
				return
			}
			c.SetReadDeadline(time.Now().Add(opts.IdleTimeout))

			if messageType != websocket.TextMessage {
				log.Debugf("Ignoring message type %d", messageType)
				continue
			}
			reading := types.StoredReadingFromJsonBytes(message)
			if reading == nil {
				log.Warnf("Failed to parse reading: %s", string(message))
				continue
			}
			onReading(*reading)
		}
	}()

	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.WithError(err).Debug("Failed to send ping")
			}
		case <-ctx.Done():
			err := c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			if err != nil {
				log.WithError(err).Debug("Error sending close message")
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
