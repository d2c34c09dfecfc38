package signal

import (
	"encoding/json"
	"fmt"

	"paircall/internal/core/ports"
	"paircall/internal/core/services"

	"github.com/pion/webrtc/v3"
)

// SignalMessage is the wire envelope for both directions. Negotiation
// payloads travel verbatim inside Payload; the coordinator never decodes
// them.
type SignalMessage struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload carries a coordinator-side refusal or failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

// DecodeInbound turns a server-originated envelope into the typed
// message the session state machine consumes.
func DecodeInbound(msg SignalMessage) (ports.InboundMessage, error) {
	in := ports.InboundMessage{Type: msg.Type}

	switch msg.Type {
	case services.MsgRoomJoined:
		var payload services.RoomJoinedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return in, fmt.Errorf("invalid room-joined payload: %w", err)
		}
		in.Initiator = payload.Initiator

	case services.MsgParticipants:
		if err := json.Unmarshal(msg.Payload, &in.Participants); err != nil {
			return in, fmt.Errorf("invalid participants payload: %w", err)
		}

	case services.MsgOffer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &desc); err != nil {
			return in, fmt.Errorf("invalid offer payload: %w", err)
		}
		in.Offer = &desc

	case services.MsgAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &desc); err != nil {
			return in, fmt.Errorf("invalid answer payload: %w", err)
		}
		in.Answer = &desc

	case services.MsgCandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
			return in, fmt.Errorf("invalid candidate payload: %w", err)
		}
		in.Candidate = &candidate

	case services.MsgError:
		var payload ErrorPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return in, fmt.Errorf("invalid error payload: %w", err)
		}
		in.Err = payload.Message
	}

	return in, nil
}

// EncodeOutbound builds a server-to-client envelope.
func EncodeOutbound(msgType string, payload interface{}) (SignalMessage, error) {
	msg := SignalMessage{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return msg, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}
	return msg, nil
}
