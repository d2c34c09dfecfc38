package signal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"paircall/internal/core/ports"
	"paircall/internal/core/services"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ClientChannel is the client side of the signaling transport: a single
// websocket connection with typed sends and a decoded inbound stream.
type ClientChannel struct {
	conn    *websocket.Conn
	inbound chan ports.InboundMessage

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	logger    *zap.SugaredLogger
}

// Dial connects to the coordinator's websocket endpoint and starts the
// read pump. The returned channel is ready for Send* calls immediately.
func Dial(url string, writeTimeout time.Duration, logger *zap.SugaredLogger) (*ClientChannel, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial coordinator at %s: %w", url, err)
	}

	c := &ClientChannel{
		conn:         conn,
		inbound:      make(chan ports.InboundMessage, 10),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
	go c.readPump()
	return c, nil
}

func (c *ClientChannel) readPump() {
	defer close(c.inbound)
	for {
		var msg SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Infow("signal connection closed", "error", err)
			}
			return
		}

		in, err := DecodeInbound(msg)
		if err != nil {
			c.logger.Warnw("dropping malformed message", "type", msg.Type, "error", err)
			continue
		}
		c.inbound <- in
	}
}

func (c *ClientChannel) send(msg SignalMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *ClientChannel) sendWithPayload(msgType, room string, payload interface{}) error {
	msg := SignalMessage{Type: msgType, Room: room}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}
	return c.send(msg)
}

func (c *ClientChannel) SendJoin(room, name string) error {
	return c.send(SignalMessage{Type: services.MsgJoinRoom, Room: room, Name: name})
}

func (c *ClientChannel) SendReady(room string) error {
	return c.sendWithPayload(services.MsgReady, room, nil)
}

func (c *ClientChannel) SendOffer(room string, offer webrtc.SessionDescription) error {
	return c.sendWithPayload(services.MsgOffer, room, offer)
}

func (c *ClientChannel) SendAnswer(room string, answer webrtc.SessionDescription) error {
	return c.sendWithPayload(services.MsgAnswer, room, answer)
}

func (c *ClientChannel) SendCandidate(room string, candidate webrtc.ICECandidateInit) error {
	return c.sendWithPayload(services.MsgCandidate, room, candidate)
}

func (c *ClientChannel) SendLeft(room string) error {
	return c.sendWithPayload(services.MsgLeft, room, nil)
}

// Receive returns the inbound message stream. The channel closes when
// the connection drops or Close is called.
func (c *ClientChannel) Receive() <-chan ports.InboundMessage {
	return c.inbound
}

// Close shuts the connection down cleanly.
func (c *ClientChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
