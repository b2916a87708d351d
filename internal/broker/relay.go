package broker

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/bangvv/chatappcloudflare/internal/metrics"
	"github.com/bangvv/chatappcloudflare/internal/protocol"
)

// relayChat forwards a chat message to the sender's partner. The event
// is dropped when the sender is not paired or named a room it is not a
// member of. Delivery is best-effort: a closed or failing send is never
// retried and surfaces no error to the sender.
func (b *Broker) relayChat(sender *Session, roomID uuid.UUID, text string) {
	if sender.state != StatePaired || sender.roomID != roomID {
		return
	}

	room, ok := b.rooms[roomID]
	if !ok {
		return
	}
	partner := room.partnerOf(sender.ID)
	if partner == nil || !partner.Conn.IsOpen() {
		return
	}

	payload, err := protocol.Chat(text)
	if err != nil {
		slog.Error("Failed to marshal chat event", "error", err)
		return
	}
	if err := partner.Conn.Send(payload); err != nil {
		slog.Debug("Failed to relay chat message", "shard", b.name, "session_id", partner.ID.String(), "error", err)
		metrics.PartnerNotifyFailures.WithLabelValues(b.name).Inc()
		return
	}
	metrics.MessagesRelayedTotal.WithLabelValues(b.name).Inc()
}

// handleReport tears the reporter's pairing down: the partner gets a
// partner_reported notice and is closed with the reported close code,
// the reporter is closed with the acknowledgement code, and the room is
// removed. A reporter without a partner only has its own connection
// closed.
func (b *Broker) handleReport(reporter *Session) {
	metrics.ReportsTotal.WithLabelValues(b.name).Inc()

	var partner *Session
	if room, ok := b.rooms[reporter.roomID]; ok {
		partner = room.partnerOf(reporter.ID)
	}

	if partner != nil {
		slog.Info("Session reported",
			"shard", b.name,
			"reporter_id", reporter.ID.String(),
			"reported_id", partner.ID.String(),
			"reported_addr", partner.Profile.RemoteAddr,
			"room_id", reporter.roomID.String(),
		)

		if partner.Conn.IsOpen() {
			if payload, err := protocol.PartnerReported(); err == nil {
				if err := partner.Conn.Send(payload); err != nil {
					metrics.PartnerNotifyFailures.WithLabelValues(b.name).Inc()
				}
			}
		}
		partner.Conn.Close(protocol.CloseReported, "reported by partner")
		b.removeRoom(reporter.roomID)
	} else {
		// Still waiting; nothing to tear down beyond the reporter itself.
		slog.Info("Report without partner ignored", "shard", b.name, "reporter_id", reporter.ID.String())
	}

	reporter.Conn.Close(protocol.CloseReportAck, "report received")
}
