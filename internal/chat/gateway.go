package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"secret-room/internal/apperr"
	"secret-room/internal/membership"
	"secret-room/internal/message"
	"secret-room/internal/presence"
	"secret-room/internal/room"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RoomLookup resolves live rooms.
type RoomLookup interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
}

// MessageService is what the gateway needs from message.Service.
type MessageService interface {
	Create(ctx context.Context, p message.CreateParams) (*message.Message, error)
	MarkRead(ctx context.Context, messageID, readerID string) (*message.Message, error)
	MarkDelivered(ctx context.Context, messageID string) error
}

// Gateway handles socket events. Errors are reported to the originating
// connection only and never close it.
type Gateway struct {
	hub      *Hub
	rooms    RoomLookup
	members  membership.Store
	messages MessageService
	presence *presence.Tracker

	eventRate  rate.Limit
	eventBurst int
}

func NewGateway(hub *Hub, rooms RoomLookup, members membership.Store, messages MessageService,
	tracker *presence.Tracker, eventRate rate.Limit, eventBurst int) *Gateway {
	return &Gateway{
		hub:        hub,
		rooms:      rooms,
		members:    members,
		messages:   messages,
		presence:   tracker,
		eventRate:  eventRate,
		eventBurst: eventBurst,
	}
}

func (g *Gateway) newLimiter() *rate.Limiter {
	return rate.NewLimiter(g.eventRate, g.eventBurst)
}

func (g *Gateway) handleFrame(ctx context.Context, c *Client, raw []byte) {
	if c.limiter != nil && !c.limiter.Allow() {
		g.hub.Send(c, encode(EventError, errorEvent{Code: "rate_limited", Message: "too many events, slow down"}))
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.replyError(c, fmt.Errorf("%w: malformed frame", apperr.ErrValidation))
		return
	}

	var err error
	switch env.Event {
	case EventJoinRoom:
		var req JoinRoomRequest
		if err = decode(env.Data, &req); err == nil {
			g.join(ctx, c, req)
		}
	case EventLeaveRoom:
		var req LeaveRoomRequest
		if err = decode(env.Data, &req); err == nil {
			err = g.leave(ctx, c, req)
		}
	case EventSendMessage:
		var req SendMessageRequest
		if err = decode(env.Data, &req); err == nil {
			err = g.sendMessage(ctx, c, req)
		}
	case EventMarkRead:
		var req MarkReadRequest
		if err = decode(env.Data, &req); err == nil {
			err = g.markRead(ctx, c, req)
		}
	case EventTyping:
		var req TypingRequest
		if err = decode(env.Data, &req); err == nil {
			err = g.typing(ctx, c, req, true)
		}
	case EventNotTyping:
		var req TypingRequest
		if err = decode(env.Data, &req); err == nil {
			err = g.typing(ctx, c, req, false)
		}
	default:
		err = fmt.Errorf("%w: unknown event %q", apperr.ErrValidation, env.Event)
	}
	if err != nil {
		g.replyError(c, err)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing event data", apperr.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed event data", apperr.ErrValidation)
	}
	return nil
}

func (g *Gateway) replyError(c *Client, err error) {
	code := apperr.Code(err)
	msg := err.Error()
	if code == "internal" {
		logrus.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID}).WithError(err).Error("Event handling failed")
		msg = "internal error"
	}
	g.hub.Send(c, encode(EventError, errorEvent{Code: code, Message: msg}))
}

func (g *Gateway) join(ctx context.Context, c *Client, req JoinRoomRequest) {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID, "room_id": req.RoomID})
	deny := func(reason string) {
		logCtx.WithField("reason", reason).Info("Join denied")
		g.hub.Send(c, encode(EventAccessDenied, statusEvent{Status: "error", Reason: reason}))
	}

	if req.RoomID == "" {
		deny("roomId is required")
		return
	}
	if req.UserID != "" && req.UserID != c.UserID {
		deny("userId does not match the authenticated identity")
		return
	}
	if _, err := g.rooms.GetRoom(ctx, req.RoomID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrGone) {
			deny(err.Error())
		} else {
			logCtx.WithError(err).Error("Room lookup failed")
			deny("internal error")
		}
		return
	}
	ok, err := g.members.IsMember(ctx, req.RoomID, c.UserID)
	if err != nil {
		logCtx.WithError(err).Error("Membership lookup failed")
		deny("internal error")
		return
	}
	if !ok {
		deny("not a member of this room")
		return
	}

	tr := g.presence.RegisterConnection(c.UserID, c.ID, req.RoomID)
	g.hub.Subscribe(c, req.RoomID)
	c.roomID = req.RoomID
	if err := g.members.MarkOnline(ctx, c.UserID, req.RoomID); err != nil {
		logCtx.WithError(err).Warn("Failed to persist online status")
	}
	g.hub.Send(c, encode(EventRoomJoined, statusEvent{Status: "ok", RoomID: req.RoomID}))
	logCtx.Info("Joined room")

	if tr.PreviousRoomID != "" {
		g.afterDetach(ctx, presence.Transition{
			UserID:    tr.UserID,
			RoomID:    tr.PreviousRoomID,
			LeftRoom:  tr.LeftPreviousRoom,
			WasTyping: tr.WasTyping,
		})
	}
	g.broadcastSnapshot(ctx, req.RoomID)
}

func (g *Gateway) leave(ctx context.Context, c *Client, req LeaveRoomRequest) error {
	if c.roomID == "" || c.roomID != req.RoomID {
		return fmt.Errorf("%w: not in room %s", apperr.ErrValidation, req.RoomID)
	}
	g.hub.Unsubscribe(c)
	g.detach(ctx, c)
	c.roomID = ""
	g.hub.Send(c, encode(EventRoomLeft, roomEvent{RoomID: req.RoomID}))
	return nil
}

// disconnect is the read pump's cleanup. Repeated calls are harmless.
func (g *Gateway) disconnect(ctx context.Context, c *Client) {
	g.hub.Unregister(c)
	g.detach(ctx, c)
	c.roomID = ""
}

func (g *Gateway) detach(ctx context.Context, c *Client) {
	if tr, ok := g.presence.DeregisterConnection(c.ID); ok {
		g.afterDetach(ctx, tr)
	}
}

// afterDetach persists and broadcasts the effects of a connection leaving a
// room. Snapshots only go out when the user's presence in the room changed.
func (g *Gateway) afterDetach(ctx context.Context, tr presence.Transition) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": tr.UserID, "room_id": tr.RoomID})
	if tr.WasTyping {
		if err := g.members.SetTyping(ctx, tr.UserID, false, ""); err != nil {
			logCtx.WithError(err).Warn("Failed to clear typing state")
		}
		g.broadcast(ctx, tr.RoomID, EventUserTyping, typingEvent{UserID: tr.UserID, Typing: false})
	}
	if tr.WentOffline {
		if err := g.members.MarkOffline(ctx, tr.UserID); err != nil {
			logCtx.WithError(err).Warn("Failed to persist offline status")
		}
	}
	if tr.LeftRoom {
		g.broadcastSnapshot(ctx, tr.RoomID)
	}
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, req SendMessageRequest) error {
	if req.SenderID != c.UserID {
		return fmt.Errorf("%w: senderId does not match the authenticated identity", apperr.ErrForbidden)
	}
	if c.roomID == "" || c.roomID != req.RoomID {
		return fmt.Errorf("%w: join room %s before sending", apperr.ErrForbidden, req.RoomID)
	}
	for _, userID := range []string{req.SenderID, req.ReceiverID} {
		ok, err := g.members.IsMember(ctx, req.RoomID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is not a member of room %s", apperr.ErrForbidden, userID, req.RoomID)
		}
	}

	msg, err := g.messages.Create(ctx, message.CreateParams{
		RoomID:        req.RoomID,
		SenderID:      req.SenderID,
		ReceiverID:    req.ReceiverID,
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
	})
	if err != nil {
		return err
	}

	g.broadcast(ctx, msg.RoomID, EventNewMessage, newMessageEvent{
		MessageID:     msg.ID,
		RoomID:        msg.RoomID,
		SenderID:      msg.SenderID,
		ReceiverID:    msg.ReceiverID,
		Content:       msg.Content,
		AttachmentURL: msg.AttachmentURL,
		CreatedAt:     msg.CreatedAt,
	})
	if g.presence.InRoom(msg.ReceiverID, msg.RoomID) {
		if err := g.messages.MarkDelivered(ctx, msg.ID); err != nil {
			logrus.WithField("message_id", msg.ID).WithError(err).Warn("Failed to mark message delivered")
		}
	}
	return nil
}

func (g *Gateway) markRead(ctx context.Context, c *Client, req MarkReadRequest) error {
	if req.MessageID == "" {
		return fmt.Errorf("%w: messageId is required", apperr.ErrValidation)
	}
	msg, err := g.messages.MarkRead(ctx, req.MessageID, c.UserID)
	if err != nil {
		return err
	}
	g.broadcast(ctx, msg.RoomID, EventMessageRead, messageReadEvent{MessageID: msg.ID})
	return nil
}

func (g *Gateway) typing(ctx context.Context, c *Client, req TypingRequest, typing bool) error {
	if req.UserID != "" && req.UserID != c.UserID {
		return fmt.Errorf("%w: userId does not match the authenticated identity", apperr.ErrForbidden)
	}
	if c.roomID == "" || c.roomID != req.RoomID {
		return fmt.Errorf("%w: not in room %s", apperr.ErrForbidden, req.RoomID)
	}

	var changed bool
	if typing {
		changed = g.presence.SetTyping(c.UserID, req.TargetID)
	} else {
		changed = g.presence.ClearTyping(c.UserID)
		req.TargetID = ""
	}
	if !changed {
		return nil
	}
	if err := g.members.SetTyping(ctx, c.UserID, typing, req.TargetID); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": c.UserID, "room_id": req.RoomID}).WithError(err).Warn("Failed to persist typing state")
	}
	g.broadcast(ctx, req.RoomID, EventUserTyping, typingEvent{UserID: c.UserID, Typing: typing, TargetID: req.TargetID})
	return nil
}

// EvictRoom tells every connection in roomID that it is gone and closes
// them. It has the room.DeleteHook signature.
func (g *Gateway) EvictRoom(ctx context.Context, roomID string) {
	if err := g.hub.Evict(ctx, roomID, encode(EventRoomDeleted, roomEvent{RoomID: roomID})); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to publish room eviction")
	}
}

func (g *Gateway) broadcast(ctx context.Context, roomID, event string, data any) {
	if err := g.hub.Broadcast(ctx, roomID, encode(event, data)); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "event": event}).WithError(err).Error("Broadcast failed")
	}
}

func (g *Gateway) snapshot(ctx context.Context, roomID string) ([]byte, bool) {
	members, err := g.presence.ListOnlineMembers(ctx, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to build presence snapshot")
		return nil, false
	}
	return encode(EventPresenceSnapshot, snapshotEvent{RoomID: roomID, Members: members}), true
}

func (g *Gateway) broadcastSnapshot(ctx context.Context, roomID string) {
	payload, ok := g.snapshot(ctx, roomID)
	if !ok {
		return
	}
	if err := g.hub.Broadcast(ctx, roomID, payload); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Snapshot broadcast failed")
	}
}
