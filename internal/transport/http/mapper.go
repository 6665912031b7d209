package http

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/wiredm/internal/core"
	"github.com/vovakirdan/wiredm/internal/proto"
	"github.com/vovakirdan/wiredm/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals and validates an inbound payload.
func decode(raw json.RawMessage, v any) *proto.Error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "malformed payload"}
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &proto.Error{Code: core.ErrCodeBadRequest, Msg: verrs[0].Field() + " is invalid"}
		}
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid payload"}
	}
	return nil
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	peerCommand := func(kind core.CommandKind) (*core.Command, *proto.Error) {
		var data proto.PeerData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: kind, PeerID: string(data.OtherUserID)}, nil
	}
	refCommand := func(kind core.CommandKind) (*core.Command, *proto.Error) {
		var data proto.MessageRef
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: kind, MessageID: data.MessageID}, nil
	}

	switch inbound.Type {
	case proto.InboundTypeJoin:
		return peerCommand(core.CommandJoin)
	case proto.InboundTypeLeave:
		return peerCommand(core.CommandLeave)
	case proto.InboundTypeTyping:
		return peerCommand(core.CommandTyping)
	case proto.InboundTypeStopTyping:
		return peerCommand(core.CommandStopTyping)
	case proto.InboundTypeMarkRead:
		return peerCommand(core.CommandMarkRead)
	case proto.InboundTypeDeleteForEveryone:
		return refCommand(core.CommandDeleteForEveryone)
	case proto.InboundTypeDeleteForMe:
		return refCommand(core.CommandDeleteForMe)
	case proto.InboundTypeSend:
		var data proto.SendData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:     core.CommandSend,
			PeerID:   string(data.OtherUserID),
			Text:     data.Text,
			ClientID: data.ClientID,
		}, nil
	case proto.InboundTypeAuth:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "already authenticated"}
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func outboundFromEvent(client *core.Client, event *core.Event) (proto.Outbound, error) {
	name := event.Kind.String()
	switch event.Kind {
	case core.EventReady:
		return proto.NewEvent(name, proto.EventReady{
			UserID:    client.UserID,
			SessionID: client.ID,
			Protocol:  proto.ProtocolVersion,
		})
	case core.EventHistory:
		msgs := make([]proto.Message, 0, len(event.Messages))
		for _, m := range event.Messages {
			msgs = append(msgs, messageToProto(m))
		}
		return proto.NewEvent(name, proto.EventHistory{Room: event.Room, Messages: msgs})
	case core.EventMessage, core.EventMessageUpdated:
		return proto.NewEvent(name, proto.EventMessage{
			Message:  messageToProto(event.Message),
			ClientID: event.ClientID,
		})
	case core.EventStatus:
		if len(event.Changes) == 0 {
			return proto.Outbound{}, errors.New("status event without changes")
		}
		return proto.NewEvent(name, statusToProto(event.Changes[0]))
	case core.EventStatusBatch:
		updates := make([]proto.StatusUpdate, 0, len(event.Changes))
		for _, ch := range event.Changes {
			updates = append(updates, statusToProto(ch))
		}
		return proto.NewEvent(name, proto.EventStatusBatch{Updates: updates})
	case core.EventMessageHidden:
		return proto.NewEvent(name, proto.EventMessageHidden{Room: event.Room, MessageID: event.MessageID})
	case core.EventRoomCleared:
		return proto.NewEvent(name, proto.EventRoomCleared{Room: event.Room, Cleared: event.Cleared})
	case core.EventPresence:
		payload := proto.EventPresence{Online: []string{}, LastSeen: map[string]time.Time{}}
		if event.Presence != nil {
			payload.Seq = event.Presence.Version
			payload.Online = event.Presence.Online
			payload.LastSeen = event.Presence.LastSeen
		}
		return proto.NewEvent(name, payload)
	case core.EventTyping, core.EventStopTyping:
		return proto.NewEvent(name, proto.EventTyping{Room: event.Room, UserID: event.User})
	case core.EventSessionReplaced:
		return proto.NewEvent(name, proto.EventSessionReplaced{Reason: core.ReasonSessionReplaced})
	case core.EventError:
		return errorFrame(event.Error), nil
	default:
		return proto.Outbound{}, errors.New("unknown event kind")
	}
}

func errorFrame(ce *core.CoreError) proto.Outbound {
	if ce == nil {
		ce = &core.CoreError{Code: core.ErrCodeInternal, Message: "internal error"}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: ce.Code, Msg: ce.Message, ClientID: ce.ClientID},
	}
}

func messageToProto(m *store.Message) proto.Message {
	if m == nil {
		return proto.Message{}
	}
	return proto.Message{
		ID:          m.ID,
		Room:        m.Room,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Text:        m.Text,
		SentAt:      m.SentAt,
		Status:      string(m.Status),
		DeliveredAt: m.DeliveredAt,
		ReadAt:      m.ReadAt,
		Deleted:     m.Deleted,
	}
}

func statusToProto(ch store.StatusChange) proto.StatusUpdate {
	at := ch.At
	update := proto.StatusUpdate{ID: ch.ID, Room: ch.Room, Status: string(ch.Status)}
	switch ch.Status {
	case store.StatusDelivered:
		update.DeliveredAt = &at
	case store.StatusRead:
		update.ReadAt = &at
	}
	return update
}
