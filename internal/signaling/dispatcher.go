package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/openmeet/signal-relay/internal/metrics"
	"github.com/openmeet/signal-relay/internal/room"
)

// Dispatcher routes inbound messages to room store mutations or pass-through
// broadcasts. Relay kinds (offer/answer/ice-candidate/chat/toggle/screen
// share) are forwarded to the sender's claimed room without checking the
// sender's membership against the store; this mirrors the permissive
// behavior clients already depend on.
type Dispatcher struct {
	store    *room.Store
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(store *room.Store, registry *Registry, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		store:    store,
		registry: registry,
		logger:   logger,
		metrics:  m,
	}
}

// HandleMessage processes one inbound frame. Malformed frames and unknown
// kinds are dropped; the only error ever surfaced to a client is room-error
// on a join against an unknown room.
func (d *Dispatcher) HandleMessage(connID room.ConnID, raw []byte) {
	env, err := parseEnvelope(raw)
	if err != nil {
		d.logger.Debug("dropping malformed message", slog.String("connId", string(connID)), slog.Any("error", err))
		return
	}

	switch env.Type {
	case KindCreateRoom:
		d.handleCreateRoom(connID, env.Data)
	case KindJoinRoom:
		d.handleJoinRoom(connID, env.Data)
	case KindLeaveRoom:
		d.handleLeaveRoom(connID, env.Data)
	case KindAdminRemoveUser:
		d.handleAdminRemove(connID, env.Data)
	case KindOffer, KindAnswer, KindICECandidate:
		d.relayNegotiation(connID, env.Type, env.Data)
	case KindChatMessage:
		d.relayChat(connID, env.Data)
	case KindToggleAudio:
		d.relayToggle(connID, KindUserToggleAudio, env.Data)
	case KindToggleVideo:
		d.relayToggle(connID, KindUserToggleVideo, env.Data)
	case KindScreenShareStarted:
		d.relayScreenShare(connID, KindScreenShareStart, env.Data)
	case KindScreenShareStopped:
		d.relayScreenShare(connID, KindScreenShareStop, env.Data)
	default:
		d.logger.Debug("dropping message of unknown kind",
			slog.String("connId", string(connID)),
			slog.String("kind", string(env.Type)),
		)
	}
}

// HandleDisconnect performs the same cleanup as an explicit leave for
// whatever room the connection was in, if any.
func (d *Dispatcher) HandleDisconnect(connID room.ConnID) {
	roomID, userID, ok := d.store.FindByConn(connID)
	if !ok {
		return
	}
	d.removeAndNotify(connID, roomID, userID)
}

func (d *Dispatcher) handleCreateRoom(connID room.ConnID, data json.RawMessage) {
	var p createRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	roomID := d.store.CreateRoom(p.UserID, p.UserName, connID)
	d.registry.JoinGroup(roomID, connID)

	participants, _ := d.store.Participants(roomID)
	d.send(connID, KindRoomCreated, roomStatePayload{
		RoomID:       roomID,
		Participants: participants,
		IsAdmin:      true,
	})
	d.logger.Info("room created",
		slog.String("roomId", roomID),
		slog.String("userId", p.UserID),
		slog.String("userName", p.UserName),
	)
}

func (d *Dispatcher) handleJoinRoom(connID room.ConnID, data json.RawMessage) {
	var p joinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	participants, err := d.store.AddParticipant(p.RoomID, p.UserID, p.UserName, connID)
	if err != nil {
		d.send(connID, KindRoomError, errorPayload{Message: "Room not found"})
		return
	}
	d.registry.JoinGroup(p.RoomID, connID)

	d.send(connID, KindRoomJoined, roomStatePayload{
		RoomID:       p.RoomID,
		Participants: participants,
		IsAdmin:      false,
	})
	d.broadcast(p.RoomID, connID, KindUserJoined, presencePayload{
		UserID:   p.UserID,
		UserName: p.UserName,
	})
	d.logger.Info("user joined room",
		slog.String("roomId", p.RoomID),
		slog.String("userId", p.UserID),
		slog.String("userName", p.UserName),
	)
}

func (d *Dispatcher) handleLeaveRoom(connID room.ConnID, data json.RawMessage) {
	var p leaveRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	d.removeAndNotify(connID, p.RoomID, p.UserID)
}

// removeAndNotify is the shared leave path for explicit leaves and
// disconnects. Removal against an already-gone room or participant is a
// no-op with no outbound messages.
func (d *Dispatcher) removeAndNotify(connID room.ConnID, roomID, userID string) {
	removed, ok := d.store.RemoveParticipant(roomID, userID)
	if !ok {
		return
	}
	d.registry.LeaveGroup(roomID, connID)
	d.broadcast(roomID, connID, KindUserLeft, presencePayload{
		UserID:   userID,
		UserName: removed.Name,
	})
	d.logger.Info("user left room",
		slog.String("roomId", roomID),
		slog.String("userId", userID),
	)
}

func (d *Dispatcher) handleAdminRemove(connID room.ConnID, data json.RawMessage) {
	var p adminRemovePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	// Authorization failures are silent: a non-admin issuing an eviction
	// gets no error and causes no state change.
	removed, targetConn, err := d.store.RemoveByAdmin(p.RoomID, connID, p.UserID)
	if err != nil {
		d.logger.Debug("eviction refused",
			slog.String("roomId", p.RoomID),
			slog.String("userId", p.UserID),
			slog.Any("error", err),
		)
		return
	}
	d.send(targetConn, KindAdminRemoved, nil)
	d.broadcast(p.RoomID, connID, KindUserLeft, presencePayload{
		UserID:   removed.ID,
		UserName: removed.Name,
	})
	d.logger.Info("user removed by admin",
		slog.String("roomId", p.RoomID),
		slog.String("userId", removed.ID),
	)
}

func (d *Dispatcher) relayNegotiation(connID room.ConnID, kind Kind, data json.RawMessage) {
	var p negotiationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	roomID := p.RoomID
	p.RoomID = ""
	if kind != KindOffer {
		// fromName travels only on offers.
		p.FromName = ""
	}
	d.metrics.Inc(metrics.RelayMessage)
	d.broadcast(roomID, connID, kind, p)
}

func (d *Dispatcher) relayChat(connID room.ConnID, data json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	roomID := p.RoomID
	p.RoomID = ""
	d.metrics.Inc(metrics.RelayMessage)
	d.broadcast(roomID, connID, KindChatMessage, p)
}

func (d *Dispatcher) relayToggle(connID room.ConnID, outKind Kind, data json.RawMessage) {
	var p togglePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	roomID := p.RoomID
	p.RoomID = ""
	d.metrics.Inc(metrics.RelayMessage)
	d.broadcast(roomID, connID, outKind, p)
}

func (d *Dispatcher) relayScreenShare(connID room.ConnID, outKind Kind, data json.RawMessage) {
	var p screenSharePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	roomID := p.RoomID
	p.RoomID = ""
	d.metrics.Inc(metrics.RelayMessage)
	d.broadcast(roomID, connID, outKind, p)
}

func (d *Dispatcher) send(connID room.ConnID, kind Kind, payload any) {
	data, err := encodeEnvelope(kind, payload)
	if err != nil {
		d.logger.Error("encoding outbound message", slog.String("kind", string(kind)), slog.Any("error", err))
		return
	}
	d.registry.Send(connID, data)
}

func (d *Dispatcher) broadcast(roomID string, except room.ConnID, kind Kind, payload any) {
	data, err := encodeEnvelope(kind, payload)
	if err != nil {
		d.logger.Error("encoding outbound message", slog.String("kind", string(kind)), slog.Any("error", err))
		return
	}
	d.registry.Broadcast(roomID, except, data)
}
