// Package signaling is the websocket transport between a peer and the relay.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultWriteWait      = 5 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultPingPeriod     = (defaultPongWait * 9) / 10
	defaultMaxMessageSize = 64 * 1024
	defaultQueueSize      = 64
)

var (
	ErrConnect = errors.New("cannot connect to signaling server")
	ErrClosed  = errors.New("signaling connection is closed")
)

type (
	Config struct {
		Logger *zerolog.Logger
		URL    string
	}

	// Client exchanges envelopes with the relay over one websocket connection.
	Client struct {
		url      string
		conn     *websocket.Conn
		incoming chan model.Envelope
		outgoing chan model.Envelope
		done     chan struct{}
		once     sync.Once

		logger zerolog.Logger
	}
)

func NewClient(cfg Config) *Client {
	return &Client{
		url:      cfg.URL,
		incoming: make(chan model.Envelope, defaultQueueSize),
		outgoing: make(chan model.Envelope, defaultQueueSize),
		done:     make(chan struct{}),
		logger:   cfg.Logger.With().Str("component", "signaling-client").Logger(),
	}
}

// Connect dials the relay and starts the read and write pumps.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.Join(ErrConnect, err)
	}
	c.conn = conn
	c.conn.SetReadLimit(defaultMaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.logger.Trace().Msg("got pong")
		return c.conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	})
	c.logger.Info().Str("url", c.url).Msg("connected to signaling server")

	go c.readPump()
	go c.writePump()
	return nil
}

// Send queues env for delivery. It fails once the connection is closed.
func (c *Client) Send(env model.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming is closed when the connection goes down.
func (c *Client) Incoming() <-chan model.Envelope {
	return c.incoming
}

// Done is closed after Close or when either pump stops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		_ = c.conn.Close()
		close(c.incoming)
		c.logger.Debug().Msg("read pump stopped")
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(defaultPongWait)); err != nil {
		c.logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("connection closed")
			} else {
				select {
				case <-c.done:
				default:
					c.logger.Error().Err(err).Msg("unexpected error during receive")
				}
			}
			return
		}

		var env model.Envelope
		if err = json.Unmarshal(frame, &env); err != nil {
			c.logger.Warn().Err(err).Msg("malformed envelope dropped")
			continue
		}
		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(defaultPingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.logger.Debug().Msg("write pump stopped")
	}()

	for {
		select {
		case env := <-c.outgoing:
			if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait)); err != nil {
				c.logger.Error().Err(err).Msg("failed to set websocket write deadline")
				return
			}
			if err := c.conn.WriteJSON(&env); err != nil {
				c.logger.Error().Err(err).Str("type", env.Type).Msg("failed to write outgoing message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait)); err != nil {
				c.logger.Error().Err(err).Msg("failed to set websocket write deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("failed to send ping")
				return
			}

		case <-c.done:
			err := c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(defaultWriteWait))
			if err != nil {
				c.logger.Debug().Err(err).Msg("failed to send close message")
			}
			_ = c.conn.Close()
			return
		}
	}
}
