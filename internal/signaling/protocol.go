package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/openmeet/signal-relay/internal/room"
)

// Kind is the wire message type. Every frame is a JSON envelope
// {"type": "<kind>", "data": {...}}; the data shape depends on the kind.
type Kind string

// Inbound kinds.
const (
	KindCreateRoom         Kind = "create-room"
	KindJoinRoom           Kind = "join-room"
	KindLeaveRoom          Kind = "leave-room"
	KindOffer              Kind = "offer"
	KindAnswer             Kind = "answer"
	KindICECandidate       Kind = "ice-candidate"
	KindChatMessage        Kind = "chat-message"
	KindToggleAudio        Kind = "toggle-audio"
	KindToggleVideo        Kind = "toggle-video"
	KindScreenShareStarted Kind = "screen-share-started"
	KindScreenShareStopped Kind = "screen-share-stopped"
	KindAdminRemoveUser    Kind = "admin-remove-user"

	// KindAuth is only valid as the first frame on a connection that did not
	// authenticate via the upgrade query string.
	KindAuth Kind = "auth"
)

// Outbound kinds. offer/answer/ice-candidate reuse their inbound names.
const (
	KindRoomCreated      Kind = "room-created"
	KindRoomJoined       Kind = "room-joined"
	KindRoomError        Kind = "room-error"
	KindUserJoined       Kind = "user-joined"
	KindUserLeft         Kind = "user-left"
	KindUserToggleAudio  Kind = "user-toggle-audio"
	KindUserToggleVideo  Kind = "user-toggle-video"
	KindScreenShareStart Kind = "user-screen-share-started"
	KindScreenShareStop  Kind = "user-screen-share-stopped"
	KindAdminRemoved     Kind = "admin-removed"
)

type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// parseEnvelope decodes exactly one envelope. The envelope itself is strict
// (no unknown fields, no trailing data); the data payload is decoded leniently
// per kind, since relayed payloads are client-defined and opaque.
func parseEnvelope(raw []byte) (envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return envelope{}, err
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("message missing type")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return envelope{}, fmt.Errorf("unexpected trailing data")
	}
	return env, nil
}

func encodeEnvelope(kind Kind, payload any) ([]byte, error) {
	env := envelope{Type: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

type createRoomPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type joinRoomPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type leaveRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// negotiationPayload covers offer, answer and ice-candidate. The offer,
// answer and candidate bodies are opaque: they are relayed verbatim without
// inspection. roomId is used for addressing and stripped from the relayed
// copy; to/from/fromName pass through.
type negotiationPayload struct {
	RoomID   string `json:"roomId,omitempty"`
	To       string `json:"to,omitempty"`
	From     string `json:"from,omitempty"`
	FromName string `json:"fromName,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type chatPayload struct {
	RoomID   string          `json:"roomId,omitempty"`
	UserID   string          `json:"userId"`
	UserName string          `json:"userName"`
	Content  string          `json:"content"`
	Time     json.RawMessage `json:"time,omitempty"`
}

type togglePayload struct {
	RoomID  string `json:"roomId,omitempty"`
	UserID  string `json:"userId"`
	Enabled bool   `json:"enabled"`
}

type screenSharePayload struct {
	RoomID string `json:"roomId,omitempty"`
	UserID string `json:"userId"`
}

type adminRemovePayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type roomStatePayload struct {
	RoomID       string                          `json:"roomId"`
	Participants map[string]room.ParticipantInfo `json:"participants"`
	IsAdmin      bool                            `json:"isAdmin"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type presencePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}
