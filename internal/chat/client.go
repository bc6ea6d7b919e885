// Package chat is the NATS-backed bridge to the group-chat platform. The
// gateway forwards inbound messages (and photo references) as events; we
// publish outbound replies and batch summaries back through it.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectInbound carries MessageEvent payloads from the chat gateway.
	SubjectInbound = "yard.chat.message.received"
	// SubjectOutbound carries OutboundMessage payloads to the gateway.
	SubjectOutbound = "yard.chat.message.send"
	// SubjectRegistered announces service startup.
	SubjectRegistered = "yard.agent.yardbot.registered"
)

// MessageEvent is one inbound chat message. MessageKey is the platform's
// stable per-message identifier; PhotoRef, when set, points at a stored
// photo whose caption arrives asynchronously.
type MessageEvent struct {
	ConversationID string    `json:"conversation_id"`
	Speaker        string    `json:"speaker"`
	Text           string    `json:"text"`
	MessageKey     string    `json:"message_key"`
	Timestamp      time.Time `json:"timestamp"`
	PhotoRef       string    `json:"photo_ref,omitempty"`
}

// OutboundMessage is a reply posted back to a conversation.
type OutboundMessage struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Send posts a text reply to a conversation.
func (c *Client) Send(conversationID, text string) error {
	return c.Publish(SubjectOutbound, OutboundMessage{
		ConversationID: conversationID,
		Text:           text,
	})
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}

// ParseMessageEvent decodes an inbound message event payload.
func ParseMessageEvent(data []byte) (MessageEvent, error) {
	var evt MessageEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return MessageEvent{}, fmt.Errorf("parse message event: %w", err)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt, nil
}
