package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rNintendoSwitch/Parakarry/pkg/gateway"
	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
)

// Options configures the relay engine. Identifiers are opaque gateway ids.
type Options struct {
	GuildID         string
	AppealGuildID   string
	CategoryID      string
	AdminChannelID  string
	ModLogChannelID string
	// LogURL prefixes thread ids to build archive links in notices.
	LogURL string
	// ReplyMaxLen caps moderator reply content; 0 means the 1800 default.
	ReplyMaxLen int
	// CancelOnInternal extends cancel-on-activity to plain staff chatter in
	// the thread channel. Default off: only an explicit reply cancels.
	CancelOnInternal bool
	// SystemUser is stamped as the actor for closes triggered by
	// membership events and fired timers with no surviving closer.
	SystemUser models.UserRef
}

const defaultReplyMaxLen = 1800

// Event is published to an optional sink for live observation (the ops
// websocket feed).
type Event struct {
	Kind     string `json:"kind"`
	ThreadID string `json:"thread_id"`
	ActorID  string `json:"actor_id,omitempty"`
	TS       int64  `json:"ts"`
}

// EventSink receives relay events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// RelayResult reports what a relay operation did.
type RelayResult struct {
	ThreadID string
	Created  bool
	Appended bool
	// Delivered is false when the transcript entry was recorded but the DM
	// to the recipient failed (see ErrRecipientUnreachable).
	Delivered       bool
	ClosureCanceled bool
	MessageRef      gateway.MessageRef
}

// InboundMessage is a user DM as seen by the dispatcher.
type InboundMessage struct {
	MessageID   string
	Content     string
	Attachments []string
	// Mention / Report mark special trigger contexts supplied by the
	// command layer; they select the transcript entry type only.
	Mention bool
	Report  bool
}

// Engine routes messages between end users and the staff-side thread
// channel, persisting every exchange. All operations are safe for
// concurrent use; per-thread ordering is preserved by the store's
// append keys and the registry's per-recipient serialization.
type Engine struct {
	gw    gateway.Client
	reg   *Registry
	sched *Scheduler
	opts  Options
	sink  EventSink
	now   func() time.Time
}

func NewEngine(gw gateway.Client, reg *Registry, opts Options) *Engine {
	if opts.ReplyMaxLen <= 0 {
		opts.ReplyMaxLen = defaultReplyMaxLen
	}
	if opts.SystemUser.ID == "" {
		opts.SystemUser = models.UserRef{ID: "parakarry", Name: "Parakarry", Mod: true}
	}
	e := &Engine{gw: gw, reg: reg, opts: opts, now: time.Now}
	e.sched = NewScheduler(func(threadID string, closer models.UserRef) error {
		return e.close(context.Background(), threadID, closer, "", true, false)
	})
	return e
}

// Scheduler exposes the engine's close scheduler for wiring and tests.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// SetEventSink attaches a live event sink.
func (e *Engine) SetEventSink(s EventSink) { e.sink = s }

func (e *Engine) publish(kind, threadID, actorID string) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(Event{Kind: kind, ThreadID: threadID, ActorID: actorID, TS: e.now().UTC().UnixNano()})
}

// cancelOnActivity cancels a pending closure, posting a notice in the
// thread channel explaining why. Returns true when a closure was canceled.
func (e *Engine) cancelOnActivity(ctx context.Context, th models.Thread, why string) bool {
	if err := e.sched.Cancel(th.ID); err != nil {
		return false
	}
	if _, err := e.gw.PostToChannel(ctx, th.ChannelID, "Thread closure has been canceled because "+why, nil); err != nil {
		logger.Warn("cancel_notice_failed", "thread", th.ID, "error", err)
	}
	e.publish("close_canceled", th.ID, "")
	return true
}

// RelayInbound handles a DM from an end user. An open thread receives the
// message; otherwise a new thread is created with the message as its first
// transcript entry. User messages are accepted as-is, even when empty.
func (e *Engine) RelayInbound(ctx context.Context, author models.UserRef, in InboundMessage) (RelayResult, error) {
	author.Mod = false
	th, open, err := e.reg.FindOpenThread(author.ID)
	if err != nil {
		return RelayResult{}, err
	}
	if !open {
		return e.createFromInbound(ctx, author, in)
	}

	res := RelayResult{ThreadID: th.ID}
	res.ClosureCanceled = e.cancelOnActivity(ctx, th, "the user has sent a message")

	if err := store.AppendMessage(th.ID, models.Message{
		Type:        inboundType(in),
		ExternalID:  in.MessageID,
		Content:     in.Content,
		Author:      author,
		Attachments: in.Attachments,
	}); err != nil {
		return res, err
	}
	res.Appended = true
	relaysTotal.WithLabelValues("inbound").Inc()

	ref, err := e.gw.PostToChannel(ctx, th.ChannelID, formatInbound(author, in), in.Attachments)
	if err != nil {
		// the transcript already has the entry; staff can recover from the log
		logger.Warn("inbound_channel_post_failed", "thread", th.ID, "error", err)
	} else {
		res.MessageRef = ref
	}
	res.Delivered = err == nil
	e.publish("inbound", th.ID, author.ID)
	return res, nil
}

func inboundType(in InboundMessage) models.MessageType {
	switch {
	case in.Mention:
		return models.TypeMention
	case in.Report:
		return models.TypeReport
	default:
		return models.TypeThreadMessage
	}
}

func formatInbound(author models.UserRef, in InboundMessage) string {
	s := fmt.Sprintf("New message from **%s** (%s)", author.Name, author.ID)
	if in.Content != "" {
		s += ": " + in.Content
	}
	for i, a := range in.Attachments {
		s += fmt.Sprintf("\nAttachment %d: %s", i+1, a)
	}
	return s
}

func (e *Engine) createFromInbound(ctx context.Context, author models.UserRef, in InboundMessage) (RelayResult, error) {
	kind := models.KindUser
	switch {
	case in.Report:
		kind = models.KindReport
	default:
		if _, err := e.gw.ResolveMember(ctx, e.opts.GuildID, author.ID); err != nil {
			if errors.Is(err, gateway.ErrMemberNotFound) {
				// a DM from someone outside the primary guild is a ban appeal
				kind = models.KindBanAppeal
			} else {
				return RelayResult{}, err
			}
		}
	}

	prior, err := store.CountThreadsForRecipient(author.ID)
	if err != nil {
		return RelayResult{}, err
	}

	// ban appeals live on the dedicated appeal guild when one is configured
	guildID := e.opts.GuildID
	if kind == models.KindBanAppeal && e.opts.AppealGuildID != "" {
		guildID = e.opts.AppealGuildID
	}

	chanName := author.Name
	if author.Discriminator != "" {
		chanName += "-" + author.Discriminator
	}
	ch, err := e.gw.CreateChannel(ctx, guildID, chanName, "New modmail opened")
	if err != nil {
		return RelayResult{}, err
	}

	initial := models.Message{
		Type:        inboundType(in),
		ExternalID:  in.MessageID,
		Content:     in.Content,
		Author:      author,
		Attachments: in.Attachments,
	}
	th, err := e.reg.CreateThread(CreateParams{
		Recipient:        author,
		Creator:          author,
		Kind:             kind,
		ChannelID:        ch.ID,
		GuildID:          guildID,
		TriggerMessageID: in.MessageID,
		InitialMessage:   &initial,
	})
	if err != nil {
		// never leave an orphaned channel behind a failed create
		if derr := e.gw.DeleteChannel(ctx, ch.ID, "thread create failed"); derr != nil {
			logger.Error("orphan_channel_cleanup_failed", "channel", ch.ID, "error", derr)
		}
		if errors.Is(err, ErrAlreadyOpen) {
			// lost a create race; the winner's thread takes this message
			return e.RelayInbound(ctx, author, in)
		}
		return RelayResult{}, err
	}

	notice := e.creationNotice(th, author, prior)
	if _, err := e.gw.PostToChannel(ctx, th.ChannelID, notice, nil); err != nil {
		logger.Warn("creation_notice_failed", "thread", th.ID, "error", err)
	}
	if _, err := e.gw.PostToChannel(ctx, th.ChannelID, formatInbound(author, in), in.Attachments); err != nil {
		logger.Warn("inbound_channel_post_failed", "thread", th.ID, "error", err)
	}
	if _, err := e.gw.SendDirectMessage(ctx, author.ID, greeting(kind), nil); err != nil {
		// the user already reached us; a failed greeting is not fatal
		logger.Warn("greeting_dm_failed", "thread", th.ID, "user", author.ID, "error", err)
	}

	relaysTotal.WithLabelValues("inbound").Inc()
	e.publish("opened", th.ID, author.ID)
	return RelayResult{ThreadID: th.ID, Created: true, Appended: true, Delivered: true}, nil
}

func (e *Engine) creationNotice(th models.Thread, recipient models.UserRef, prior int) string {
	var s string
	switch th.Kind {
	case models.KindBanAppeal:
		s = fmt.Sprintf("A new ban appeal has been submitted by **%s** (%s) and needs to be reviewed", recipient.Name, recipient.ID)
	case models.KindModerator:
		s = fmt.Sprintf("A modmail thread has been opened with **%s** (%s) by **%s**. There are %d previous threads involving this user",
			recipient.Name, recipient.ID, th.Creator.Name, prior)
	default:
		s = fmt.Sprintf("A new modmail needs to be reviewed from **%s** (%s). There are %d previous threads involving this user",
			recipient.Name, recipient.ID, prior)
	}
	if e.opts.LogURL != "" {
		s += ". Archive link: " + e.opts.LogURL + th.ID
	}
	return s
}

func greeting(kind models.ThreadKind) string {
	if kind == models.KindBanAppeal {
		return "Hi there!\nYou have submitted a ban appeal to the moderators. " +
			"Every message you send while your thread is open will be forwarded to the moderation team. " +
			"Please be patient for a response; at the end of this process your ban will either be lifted or upheld."
	}
	return "Hi there!\nYou have opened a modmail thread with the moderators and they have received your message. " +
		"Every message you send while your thread is open will also be sent to the moderation team."
}

// OpenByModerator opens a thread with a user on a moderator's initiative.
// The opening message is relayed to the user immediately; if the user is
// unreachable the channel and record are rolled back and
// ErrRecipientUnreachable is returned.
func (e *Engine) OpenByModerator(ctx context.Context, target models.UserRef, moderator models.UserRef, content string, anonymous bool) (models.Thread, error) {
	moderator.Mod = true
	target.Mod = false

	if _, open, err := e.reg.FindOpenThread(target.ID); err != nil {
		return models.Thread{}, err
	} else if open {
		return models.Thread{}, ErrAlreadyOpen
	}

	prior, err := store.CountThreadsForRecipient(target.ID)
	if err != nil {
		return models.Thread{}, err
	}

	chanName := target.Name
	if target.Discriminator != "" {
		chanName += "-" + target.Discriminator
	}
	ch, err := e.gw.CreateChannel(ctx, e.opts.GuildID, chanName, "New modmail opened")
	if err != nil {
		return models.Thread{}, err
	}

	mtype := models.TypeThreadMessage
	if anonymous {
		mtype = models.TypeAnonymous
	}
	initial := models.Message{Type: mtype, Content: content, Author: moderator}
	th, err := e.reg.CreateThread(CreateParams{
		Recipient:        target,
		Creator:          moderator,
		Kind:             models.KindModerator,
		ChannelID:        ch.ID,
		GuildID:          e.opts.GuildID,
		TriggerMessageID: ch.ID,
		InitialMessage:   &initial,
	})
	if err != nil {
		if derr := e.gw.DeleteChannel(ctx, ch.ID, "thread create failed"); derr != nil {
			logger.Error("orphan_channel_cleanup_failed", "channel", ch.ID, "error", derr)
		}
		return models.Thread{}, err
	}

	if _, err := e.gw.SendDirectMessage(ctx, target.ID, greeting(models.KindModerator), nil); err == nil {
		_, err = e.gw.SendDirectMessage(ctx, target.ID, formatReply(moderator, content, anonymous), nil)
	}
	if err != nil {
		// cleanup both sides; a moderator-opened thread the user never saw
		// must not exist
		if derr := store.DeleteThread(th.ID); derr != nil {
			logger.Error("thread_rollback_failed", "thread", th.ID, "error", derr)
		}
		if derr := e.gw.DeleteChannel(ctx, ch.ID, "recipient unreachable"); derr != nil {
			logger.Error("orphan_channel_cleanup_failed", "channel", ch.ID, "error", derr)
		}
		deliveryFailures.Inc()
		return models.Thread{}, fmt.Errorf("open canceled: %w", err)
	}

	notice := e.creationNotice(th, target, prior)
	if _, err := e.gw.PostToChannel(ctx, th.ChannelID, notice, nil); err != nil {
		logger.Warn("creation_notice_failed", "thread", th.ID, "error", err)
	}
	e.publish("opened", th.ID, moderator.ID)
	return th, nil
}

func formatReply(moderator models.UserRef, content string, anonymous bool) string {
	name := moderator.Name
	if anonymous {
		name = "Moderator"
	}
	return fmt.Sprintf("Reply from **%s**: %s", name, content)
}

// RelayOutbound sends a moderator reply to the thread's recipient and
// appends it to the transcript. A pending closure is always canceled
// first. When the recipient is unreachable the entry is still recorded and
// ErrRecipientUnreachable is returned alongside the result.
func (e *Engine) RelayOutbound(ctx context.Context, threadID string, moderator models.UserRef, content string, attachments []string, anonymous bool) (RelayResult, error) {
	moderator.Mod = true
	th, err := store.GetThread(threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RelayResult{}, ErrNotAModmailChannel
		}
		return RelayResult{}, err
	}
	if !th.Open {
		return RelayResult{}, ErrNotAModmailChannel
	}
	if content == "" && len(attachments) == 0 {
		return RelayResult{}, ErrEmptyMessage
	}
	if len(content) > e.opts.ReplyMaxLen {
		return RelayResult{}, fmt.Errorf("%w: reduce it by at least %d characters", ErrReplyTooLong, len(content)-e.opts.ReplyMaxLen)
	}

	res := RelayResult{ThreadID: th.ID}
	res.ClosureCanceled = e.cancelOnActivity(ctx, th, "a moderator has sent a message")

	mtype := models.TypeThreadMessage
	if anonymous {
		mtype = models.TypeAnonymous
	}
	entry := models.Message{Type: mtype, Content: content, Author: moderator, Attachments: attachments}

	_, dmErr := e.gw.SendDirectMessage(ctx, th.Recipient.ID, formatReply(moderator, content, anonymous), attachments)
	if dmErr != nil && !errors.Is(dmErr, gateway.ErrUnreachable) {
		return res, dmErr
	}

	if dmErr == nil {
		ref, perr := e.gw.PostToChannel(ctx, th.ChannelID, formatReply(moderator, content, anonymous), attachments)
		if perr != nil {
			logger.Warn("reply_confirmation_failed", "thread", th.ID, "error", perr)
		} else {
			entry.ExternalID = ref.ID
			res.MessageRef = ref
		}
	}

	if err := store.AppendMessage(th.ID, entry); err != nil {
		return res, err
	}
	res.Appended = true
	relaysTotal.WithLabelValues("outbound").Inc()
	e.publish("outbound", th.ID, moderator.ID)

	if dmErr != nil {
		// the attempt happened and is on the record; report the failed
		// delivery separately so staff can be told
		deliveryFailures.Inc()
		logger.Warn("recipient_unreachable", "thread", th.ID, "recipient", th.Recipient.ID)
		return res, dmErr
	}
	res.Delivered = true
	return res, nil
}

// RelayInternal appends non-command staff chatter to the transcript. It is
// not relayed to the user and, unless CancelOnInternal is set, does not
// cancel a pending closure.
func (e *Engine) RelayInternal(ctx context.Context, threadID string, author models.UserRef, content string, attachments []string) error {
	author.Mod = true
	th, err := store.GetThread(threadID)
	if err != nil {
		return err
	}
	if e.opts.CancelOnInternal && th.Open {
		e.cancelOnActivity(ctx, th, "a moderator has sent a message")
	}
	if err := store.AppendMessage(th.ID, models.Message{
		Type:        models.TypeInternal,
		Content:     content,
		Author:      author,
		Attachments: attachments,
	}); err != nil {
		return err
	}
	relaysTotal.WithLabelValues("internal").Inc()
	e.publish("internal", th.ID, author.ID)
	return nil
}

// Close runs the generic close path: not valid for ban appeals, tears down
// the channel, and notifies the recipient by DM.
func (e *Engine) Close(ctx context.Context, threadID string, closer models.UserRef, reason string) error {
	return e.close(ctx, threadID, closer, reason, true, false)
}

// CloseDecided closes a thread from an appeal decision. It bypasses the
// appeal restriction and skips the closure DM (the decision flow already
// messaged the user).
func (e *Engine) CloseDecided(ctx context.Context, threadID string, closer models.UserRef, reason string) error {
	return e.close(ctx, threadID, closer, reason, false, true)
}

func (e *Engine) close(ctx context.Context, threadID string, closer models.UserRef, reason string, dmUser, force bool) error {
	th, err := store.GetThread(threadID)
	if err != nil {
		return err
	}
	if th.Kind == models.KindBanAppeal && !force {
		return ErrAppealThread
	}

	// an explicit close supersedes any pending timer
	_ = e.sched.Cancel(threadID)

	th, err = e.reg.CloseThread(threadID, closer, reason)
	if err != nil {
		return err
	}

	if err := e.gw.DeleteChannel(ctx, th.ChannelID, fmt.Sprintf("Modmail closed by %s", closer.Name)); err != nil {
		logger.Warn("channel_teardown_failed", "thread", th.ID, "channel", th.ChannelID, "error", err)
	}

	if dmUser {
		const note = "__Your modmail thread has been closed__. If you need to contact the moderators again you may send another DM to open a new thread."
		if _, err := e.gw.SendDirectMessage(ctx, th.Recipient.ID, note, nil); err != nil {
			deliveryFailures.Inc()
			if e.opts.AdminChannelID != "" {
				msg := fmt.Sprintf("Failed to send DM to %s (%s) for modmail closure. They have not been notified", th.Recipient.Name, th.Recipient.ID)
				if _, perr := e.gw.PostToChannel(ctx, e.opts.AdminChannelID, msg, nil); perr != nil {
					logger.Error("admin_notice_failed", "thread", th.ID, "error", perr)
				}
			}
		}
	}

	if e.opts.ModLogChannelID != "" {
		msg := fmt.Sprintf("Modmail closed | %s (%s) by %s", th.Recipient.Name, th.Recipient.ID, closer.Name)
		if e.opts.LogURL != "" {
			msg += " | " + e.opts.LogURL + th.ID
		}
		if _, err := e.gw.PostToChannel(ctx, e.opts.ModLogChannelID, msg, nil); err != nil {
			logger.Warn("modlog_notice_failed", "thread", th.ID, "error", err)
		}
	}
	e.publish("closed", th.ID, closer.ID)
	return nil
}

// ScheduleClose arms (or replaces) a delayed close for an open thread and
// announces the fire time in the channel.
func (e *Engine) ScheduleClose(ctx context.Context, threadID, delay string, closer models.UserRef) (ScheduleResult, error) {
	closer.Mod = true
	th, err := store.GetThread(threadID)
	if err != nil {
		return ScheduleResult{}, err
	}
	if !th.Open {
		return ScheduleResult{}, ErrAlreadyClosed
	}
	if th.Kind == models.KindBanAppeal {
		return ScheduleResult{}, ErrAppealThread
	}
	res, err := e.sched.Schedule(threadID, delay, closer)
	if err != nil {
		return res, err
	}
	notice := fmt.Sprintf("Thread scheduled to be closed at %s", res.FireAt.Format(time.RFC1123))
	if res.Replaced != nil {
		notice += fmt.Sprintf(" (replacing the timer set by %s)", res.Replaced.Name)
	}
	if _, perr := e.gw.PostToChannel(ctx, th.ChannelID, notice, nil); perr != nil {
		logger.Warn("schedule_notice_failed", "thread", th.ID, "error", perr)
	}
	e.publish("close_scheduled", th.ID, closer.ID)
	return res, nil
}

// CancelClose cancels a pending closure, posting the given notice when one
// was actually canceled. Safe to call when nothing is pending.
func (e *Engine) CancelClose(ctx context.Context, threadID, notice string) (bool, error) {
	if err := e.sched.Cancel(threadID); err != nil {
		if errors.Is(err, ErrNotScheduled) {
			return false, nil
		}
		return false, err
	}
	if notice != "" {
		if th, err := store.GetThread(threadID); err == nil {
			if _, perr := e.gw.PostToChannel(ctx, th.ChannelID, notice, nil); perr != nil {
				logger.Warn("cancel_notice_failed", "thread", th.ID, "error", perr)
			}
		}
	}
	e.publish("close_canceled", threadID, "")
	return true, nil
}

// PostNotice posts an informational message to a thread's channel without
// touching the transcript.
func (e *Engine) PostNotice(ctx context.Context, threadID, content string) (gateway.MessageRef, error) {
	th, err := store.GetThread(threadID)
	if err != nil {
		return gateway.MessageRef{}, err
	}
	return e.gw.PostToChannel(ctx, th.ChannelID, content, nil)
}

// NotifyRecipient sends a DM to a thread's recipient outside the normal
// reply path. The transcript is not touched.
func (e *Engine) NotifyRecipient(ctx context.Context, threadID, content string) (gateway.MessageRef, error) {
	th, err := store.GetThread(threadID)
	if err != nil {
		return gateway.MessageRef{}, err
	}
	ref, err := e.gw.SendDirectMessage(ctx, th.Recipient.ID, content, nil)
	if err != nil {
		deliveryFailures.Inc()
	}
	return ref, err
}

// SystemUser returns the configured system actor.
func (e *Engine) SystemUser() models.UserRef { return e.opts.SystemUser }

// CategoryID returns the configured modmail category id for channel checks.
func (e *Engine) CategoryID() string { return e.opts.CategoryID }
