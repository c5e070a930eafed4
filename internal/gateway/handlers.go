package gateway

import (
	"context"
	"regexp"
	"time"

	"github.com/wavechat/gateway/internal/errors"
	"github.com/wavechat/gateway/internal/structures"
	"github.com/wavechat/gateway/internal/svc/events"
	"go.uber.org/zap"
)

const (
	maxContentLength = 4000
	maxNonceLength   = 64
	handlerTimeout   = 10 * time.Second
)

var mentionPattern = regexp.MustCompile(`<@(\d+)>`)

func (c *Connection) handlerCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.srv.gCtx, handlerTimeout)
}

func (c *Connection) messageError(nonce, msg string) {
	_ = c.Dispatch(EventMessageError, MessageErrorPayload{
		Nonce: nonce,
		Error: msg,
	})
}

// handleMessageCreate runs the full pipeline: validate, authorize, rate
// limit, persist, broadcast, ack.
func (c *Connection) handleMessageCreate(env Envelope) {
	var payload MessageCreatePayload
	if err := json.Unmarshal(orEmptyObject(env.Data), &payload); err != nil {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: errors.ErrBadPayload.Error()})

		return
	}

	if payload.ChannelID.IsNil() ||
		len(payload.Nonce) > maxNonceLength ||
		len(payload.Content) > maxContentLength ||
		(payload.Content == "" && len(payload.Attachments) == 0) {
		c.messageError(payload.Nonce, "invalid message")

		return
	}

	s := c.srv
	inst := s.gCtx.Inst()

	ctx, cancel := c.handlerCtx()
	defer cancel()

	ch, err := s.channel(ctx, payload.ChannelID)
	if err != nil {
		c.messageError(payload.Nonce, "unknown channel")

		return
	}

	perms, err := s.channelPermissions(ctx, c.user.ID, ch)
	if err != nil {
		c.messageError(payload.Nonce, errors.ErrInternal.Error())

		return
	}

	if !perms.Has(structures.PermissionViewChannel | structures.PermissionSendMessages) {
		c.messageError(payload.Nonce, "missing permission")

		return
	}

	res, err := inst.Limiter.Test(ctx,
		"msg:"+c.user.ID.String()+":"+ch.ID.String(),
		s.messageLimit, s.messageWindow,
	)
	if err != nil {
		c.messageError(payload.Nonce, errors.ErrInternal.Error())

		return
	}

	if !res.Allowed {
		inst.Prometheus.RateLimitRejections().Inc()

		_ = c.sendError(ErrorPayload{
			Code:       errCodeRateLimit,
			Message:    errors.ErrRateLimited.Error(),
			Nonce:      payload.Nonce,
			RetryAfter: time.Until(res.ResetAt).Milliseconds(),
		})

		return
	}

	var replyTarget structures.Message

	if !payload.ReplyTo.IsNil() {
		replyTarget, err = inst.Store.MessageByID(ctx, ch.ID, payload.ReplyTo)
		if err != nil {
			c.messageError(payload.Nonce, "unknown reply target")

			return
		}
	}

	id, err := inst.Snowflake.Generate()
	if err != nil {
		c.messageError(payload.Nonce, errors.ErrInternal.Error())

		return
	}

	msg := structures.Message{
		ID:          id,
		ChannelID:   ch.ID,
		GuildID:     ch.GuildID,
		AuthorID:    c.user.ID,
		Content:     payload.Content,
		ReplyTo:     payload.ReplyTo,
		MentionIDs:  extractMentions(payload.Content, payload.Mentions, c.user.ID),
		Attachments: payload.Attachments,
		CreatedAt:   time.Now(),
	}

	if err := inst.Store.CreateMessage(ctx, msg); err != nil {
		zap.S().Errorw("failed to persist message",
			"channel_id", ch.ID,
			"error", err,
		)
		c.messageError(payload.Nonce, errors.ErrInternal.Error())

		return
	}

	// The message goes out before its notifications; a recipient must never
	// learn of a notification for a message it has not seen yet.
	s.publish(ctx, topicForChannel(ch), EventMessageCreate, msg)

	c.createNotifications(ctx, msg, replyTarget)

	_ = c.Dispatch(EventMessageAck, MessageAckPayload{
		Nonce:     payload.Nonce,
		MessageID: msg.ID,
	})
}

// createNotifications writes the durable mention/reply records and pings
// their owners' topics. The records must land even if no target socket is
// connected anywhere; only the ping is best-effort.
func (c *Connection) createNotifications(ctx context.Context, msg structures.Message, replyTarget structures.Message) {
	s := c.srv
	inst := s.gCtx.Inst()

	targets := map[structures.ID]structures.NotificationKind{}

	for _, uid := range msg.MentionIDs {
		targets[uid] = structures.NotificationKindMention
	}

	if !replyTarget.ID.IsNil() && replyTarget.AuthorID != c.user.ID {
		targets[replyTarget.AuthorID] = structures.NotificationKindReply
	}

	for uid, kind := range targets {
		id, err := inst.Snowflake.Generate()
		if err != nil {
			continue
		}

		n := structures.Notification{
			ID:        id,
			UserID:    uid,
			Kind:      kind,
			MessageID: msg.ID,
			ChannelID: msg.ChannelID,
			ActorID:   c.user.ID,
			CreatedAt: time.Now(),
		}

		if err := inst.Store.CreateNotification(ctx, n); err != nil {
			zap.S().Errorw("failed to persist notification",
				"user_id", uid,
				"error", err,
			)

			continue
		}

		s.publish(ctx, events.UserTopic(uid), EventNotificationCreate, n)
	}
}

// extractMentions merges explicit mention ids with <@id> tokens found in the
// content. The author never mentions themselves.
func extractMentions(content string, explicit []structures.ID, authorID structures.ID) []structures.ID {
	seen := map[structures.ID]bool{authorID: true}

	var out []structures.ID

	add := func(id structures.ID) {
		if id.IsNil() || seen[id] {
			return
		}

		seen[id] = true
		out = append(out, id)
	}

	for _, id := range explicit {
		add(id)
	}

	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		if id, err := structures.ParseID(m[1]); err == nil {
			add(id)
		}
	}

	return out
}

func (c *Connection) handleTypingStart(env Envelope) {
	var payload TypingStartPayload
	if err := json.Unmarshal(orEmptyObject(env.Data), &payload); err != nil || payload.ChannelID.IsNil() {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: "invalid channel"})

		return
	}

	s := c.srv
	inst := s.gCtx.Inst()

	ctx, cancel := c.handlerCtx()
	defer cancel()

	ch, err := s.channel(ctx, payload.ChannelID)
	if err != nil {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: "unknown channel"})

		return
	}

	perms, err := s.channelPermissions(ctx, c.user.ID, ch)
	if err != nil || !perms.Has(structures.PermissionViewChannel|structures.PermissionSendMessages) {
		_ = c.sendError(ErrorPayload{Code: errCodeAuthorization, Message: "missing permission"})

		return
	}

	res, err := inst.Limiter.Test(ctx,
		"typing:"+c.user.ID.String()+":"+ch.ID.String(),
		s.typingLimit, s.typingWindow,
	)
	if err == nil && !res.Allowed {
		inst.Prometheus.RateLimitRejections().Inc()

		// Typing is advisory; a limited burst is dropped silently.
		return
	}

	if err := inst.Presences.MarkTyping(ctx, ch.ID, c.user.ID); err != nil {
		c.infraFailure("mark typing", err)

		return
	}

	s.publish(ctx, topicForChannel(ch), EventTypingStart, TypingStartDispatch{
		ChannelID: ch.ID,
		UserID:    c.user.ID,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Connection) handlePresenceUpdate(env Envelope) {
	var payload PresenceUpdatePayload
	if err := json.Unmarshal(orEmptyObject(env.Data), &payload); err != nil || !payload.Status.Valid() {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: "invalid status"})

		return
	}

	s := c.srv
	inst := s.gCtx.Inst()

	ctx, cancel := c.handlerCtx()
	defer cancel()

	if err := inst.Presences.SetPresence(ctx, c.user.ID, payload.Status, payload.CustomStatus); err != nil {
		c.infraFailure("set presence", err)

		return
	}

	inst.Prometheus.PresenceWrites().Inc()

	s.broadcastPresence(ctx, c.topics, PresenceUpdateDispatch{
		UserID:       c.user.ID,
		Status:       payload.Status.Broadcast(),
		CustomStatus: payload.CustomStatus,
		LastSeenAt:   time.Now().UnixMilli(),
	})
}

func (c *Connection) handleVoiceStateUpdate(env Envelope) {
	var payload VoiceStatePayload
	if err := json.Unmarshal(orEmptyObject(env.Data), &payload); err != nil {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: errors.ErrBadPayload.Error()})

		return
	}

	s := c.srv
	inst := s.gCtx.Inst()

	ctx, cancel := c.handlerCtx()
	defer cancel()

	// A null channel means leave.
	if payload.ChannelID.IsNil() {
		state, ok, err := inst.Voice.Clear(ctx, c.user.ID)
		if err != nil {
			c.infraFailure("clear voice state", err)

			return
		}

		if ok {
			left := state
			left.ChannelID = structures.NilID

			s.publish(ctx, voiceTopic(state), EventVoiceStateUpdate, left)
		}

		return
	}

	ch, err := s.channel(ctx, payload.ChannelID)
	if err != nil {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: "unknown channel"})

		return
	}

	perms, err := s.channelPermissions(ctx, c.user.ID, ch)
	if err != nil || !perms.Has(structures.PermissionVoiceConnect) {
		_ = c.sendError(ErrorPayload{Code: errCodeAuthorization, Message: "missing permission"})

		return
	}

	state := structures.VoiceState{
		UserID:       c.user.ID,
		GuildID:      ch.GuildID,
		ChannelID:    ch.ID,
		SessionID:    c.sessionID,
		SelfMuted:    payload.SelfMute,
		SelfDeafened: payload.SelfDeaf,
		VideoEnabled: payload.SelfVideo,
	}

	prev, moved, err := inst.Voice.Set(ctx, state)
	if err != nil {
		c.infraFailure("set voice state", err)

		return
	}

	if moved {
		// One active voice channel per user; the old room sees a leave.
		left := prev
		left.ChannelID = structures.NilID

		s.publish(ctx, voiceTopic(prev), EventVoiceStateUpdate, left)
	}

	s.publish(ctx, voiceTopic(state), EventVoiceStateUpdate, state)

	joined := prev.ChannelID != ch.ID
	if joined {
		_ = c.Dispatch(EventVoiceServerUpdate, VoiceServerUpdatePayload{
			Token:    newSessionID(),
			Endpoint: s.voiceEndpoint,
		})
	}
}

func (c *Connection) handleReactionAdd(env Envelope) {
	var payload ReactionAddPayload
	if err := json.Unmarshal(orEmptyObject(env.Data), &payload); err != nil ||
		payload.ChannelID.IsNil() || payload.MessageID.IsNil() || payload.Emoji == "" {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: "invalid reaction"})

		return
	}

	s := c.srv
	inst := s.gCtx.Inst()

	ctx, cancel := c.handlerCtx()
	defer cancel()

	ch, err := s.channel(ctx, payload.ChannelID)
	if err != nil {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: "unknown channel"})

		return
	}

	perms, err := s.channelPermissions(ctx, c.user.ID, ch)
	if err != nil || !perms.Has(structures.PermissionViewChannel|structures.PermissionAddReactions) {
		_ = c.sendError(ErrorPayload{Code: errCodeAuthorization, Message: "missing permission"})

		return
	}

	if _, err := inst.Store.MessageByID(ctx, ch.ID, payload.MessageID); err != nil {
		_ = c.sendError(ErrorPayload{Code: errCodeValidation, Message: "unknown message"})

		return
	}

	reaction := structures.Reaction{
		ChannelID: ch.ID,
		MessageID: payload.MessageID,
		UserID:    c.user.ID,
		Emoji:     payload.Emoji,
	}

	if err := inst.Store.CreateReaction(ctx, reaction); err != nil {
		c.infraFailure("persist reaction", err)

		return
	}

	s.publish(ctx, topicForChannel(ch), EventMessageReactionAdd, reaction)
}

// topicForChannel picks the fanout topic an event in a channel rides on:
// guild channels share the guild topic, DMs get their own channel topic.
func topicForChannel(ch structures.Channel) string {
	if ch.GuildID.IsNil() {
		return events.ChannelTopic(ch.ID)
	}

	return events.GuildTopic(ch.GuildID)
}

func voiceTopic(state structures.VoiceState) string {
	if state.GuildID.IsNil() {
		return events.ChannelTopic(state.ChannelID)
	}

	return events.GuildTopic(state.GuildID)
}
