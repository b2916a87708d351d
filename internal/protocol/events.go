// Package protocol defines the wire format exchanged with chat clients:
// inbound events decoded once at the connection boundary and outbound
// event constructors producing the exact JSON sent to peers.
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// WebSocket close codes used by the broker.
const (
	// CloseInternalError is sent when session setup or dispatch fails unexpectedly.
	CloseInternalError = 1011
	// CloseReported is sent to a participant whose partner reported them.
	CloseReported = 4001
	// CloseReportAck is sent to a participant who reported their partner.
	CloseReportAck = 4002
)

// Inbound is the tagged union of events a client may send.
// Unknown or malformed payloads decode to (nil, false) and are dropped.
type Inbound interface{ isInbound() }

// ChatInbound asks the broker to relay a message within a room.
type ChatInbound struct {
	RoomID  uuid.UUID
	Message string
}

func (ChatInbound) isInbound() {}

// ReportInbound reports the sender's current partner.
type ReportInbound struct{}

func (ReportInbound) isInbound() {}

type inboundEnvelope struct {
	Event   string `json:"event"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// DecodeInbound parses a raw client payload into a typed event.
// It returns false for anything that is not a well-formed known event.
func DecodeInbound(data []byte) (Inbound, bool) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}

	switch env.Event {
	case "chat":
		if env.RoomID == "" || env.Message == "" {
			return nil, false
		}
		roomID, err := uuid.Parse(env.RoomID)
		if err != nil {
			return nil, false
		}
		return ChatInbound{RoomID: roomID, Message: env.Message}, true
	case "report":
		return ReportInbound{}, true
	default:
		return nil, false
	}
}

// PartnerInfo is the public slice of a profile disclosed to a matched peer.
// Age, preference and network address are never included.
type PartnerInfo struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

type matchedEvent struct {
	Event   string      `json:"event"`
	Partner PartnerInfo `json:"partner"`
	RoomID  string      `json:"roomId"`
}

type chatEvent struct {
	Event   string `json:"event"`
	From    string `json:"from"`
	Message string `json:"message"`
}

type noticeEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Matched announces a new pairing to one of its members.
func Matched(partner PartnerInfo, roomID uuid.UUID) ([]byte, error) {
	return json.Marshal(matchedEvent{Event: "matched", Partner: partner, RoomID: roomID.String()})
}

// Chat carries a relayed message. The sender identity is always blanked.
func Chat(message string) ([]byte, error) {
	return json.Marshal(chatEvent{Event: "chat", From: "", Message: message})
}

// PartnerLeft tells a participant their partner disconnected.
func PartnerLeft() ([]byte, error) {
	return json.Marshal(noticeEvent{Event: "partner_left", Message: "Your partner has left the conversation"})
}

// PartnerReported tells a participant they were reported and the
// connection is about to close.
func PartnerReported() ([]byte, error) {
	return json.Marshal(noticeEvent{Event: "partner_reported", Message: "Your partner has reported you"})
}
