// Package events consumes platform events from the bridge and drives the
// relay engine. A single consumer goroutine serializes handling so
// membership changes and messages for one user cannot interleave.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rNintendoSwitch/Parakarry/pkg/gateway"
	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/mail"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
)

const defaultQueueSize = 256

// Options tunes dispatcher behavior.
type Options struct {
	// QueueSize bounds the inbound event buffer; 0 means the default.
	QueueSize int
	// LeaveCloseDelay is the schedule-close delay applied when a user with
	// an open thread leaves the guild (e.g. "4h").
	LeaveCloseDelay string
	// PrimaryGuildID filters membership events; events for other guilds
	// are ignored.
	PrimaryGuildID string
}

// Dispatcher owns the event queue and its consumer loop.
type Dispatcher struct {
	engine *mail.Engine
	opts   Options
	queue  chan gateway.Event
	done   chan struct{}
}

func NewDispatcher(engine *mail.Engine, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.LeaveCloseDelay == "" {
		opts.LeaveCloseDelay = "4h"
	}
	return &Dispatcher{
		engine: engine,
		opts:   opts,
		queue:  make(chan gateway.Event, opts.QueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue hands an event to the consumer. Blocks when the queue is full
// until there is room or ctx is done; inbound user messages must not be
// dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, ev gateway.Event) error {
	select {
	case d.queue <- ev:
		eventsQueued.WithLabelValues(string(ev.Type)).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return errors.New("dispatcher stopped")
	}
}

// Run consumes events until ctx is canceled. Handler errors are logged,
// never fatal; one bad event must not stall the queue.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			if err := d.handle(ctx, ev); err != nil {
				eventErrors.WithLabelValues(string(ev.Type)).Inc()
				logger.Error("event_handling_failed", "type", string(ev.Type), "error", err)
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev gateway.Event) error {
	switch ev.Type {
	case gateway.EventDirectMessage:
		if ev.DirectMessage == nil {
			return errors.New("direct_message event without payload")
		}
		return d.handleDirectMessage(ctx, ev.DirectMessage)
	case gateway.EventChannelMessage:
		if ev.ChannelMessage == nil {
			return errors.New("channel_message event without payload")
		}
		return d.handleChannelMessage(ctx, ev.ChannelMessage)
	case gateway.EventMemberJoin, gateway.EventMemberRemove, gateway.EventMemberBan:
		if ev.Membership == nil {
			return fmt.Errorf("%s event without payload", ev.Type)
		}
		return d.handleMembership(ctx, ev.Type, ev.Membership)
	default:
		logger.Warn("unknown_event_type", "type", string(ev.Type))
		return nil
	}
}

func (d *Dispatcher) handleDirectMessage(ctx context.Context, in *gateway.InboundMessage) error {
	author := models.UserRef{
		ID:            in.AuthorID,
		Name:          in.AuthorName,
		Discriminator: in.Discriminator,
		Avatar:        in.Avatar,
	}
	_, err := d.engine.RelayInbound(ctx, author, mail.InboundMessage{
		MessageID:   in.MessageID,
		Content:     in.Content,
		Attachments: in.Attachments,
	})
	return err
}

func (d *Dispatcher) handleChannelMessage(ctx context.Context, in *gateway.InboundMessage) error {
	if in.IsCommand {
		// consumed by the command surface; commands are recorded by their
		// own handlers, not as chatter
		return nil
	}
	if cat := d.engine.CategoryID(); cat != "" && in.CategoryID != cat {
		return nil
	}
	th, ok, err := store.FindByChannel(in.ChannelID)
	if err != nil || !ok {
		return err
	}
	author := models.UserRef{
		ID:            in.AuthorID,
		Name:          in.AuthorName,
		Discriminator: in.Discriminator,
		Avatar:        in.Avatar,
		Mod:           true,
	}
	return d.engine.RelayInternal(ctx, th.ID, author, in.Content, in.Attachments)
}

func (d *Dispatcher) handleMembership(ctx context.Context, typ gateway.EventType, me *gateway.MemberEvent) error {
	if d.opts.PrimaryGuildID != "" && me.GuildID != d.opts.PrimaryGuildID {
		return nil
	}
	th, ok, err := store.FindOpenByRecipient(me.UserID)
	if err != nil || !ok {
		return err
	}

	switch typ {
	case gateway.EventMemberJoin:
		_, err := d.engine.CancelClose(ctx, th.ID,
			"Thread closure has been canceled because the user has rejoined the server")
		return err

	case gateway.EventMemberRemove:
		if th.Kind == models.KindBanAppeal {
			return nil
		}
		notice := fmt.Sprintf("**%s** (%s) has left the server", me.UserName, me.UserID)
		if _, perr := d.engine.PostNotice(ctx, th.ID, notice); perr != nil {
			logger.Warn("leave_notice_failed", "thread", th.ID, "error", perr)
		}
		_, err := d.engine.ScheduleClose(ctx, th.ID, d.opts.LeaveCloseDelay, d.engine.SystemUser())
		if errors.Is(err, mail.ErrAlreadyClosed) || errors.Is(err, mail.ErrAppealThread) {
			return nil
		}
		return err

	case gateway.EventMemberBan:
		notice := fmt.Sprintf("**%s** (%s) has been banned from the server", me.UserName, me.UserID)
		if _, perr := d.engine.PostNotice(ctx, th.ID, notice); perr != nil {
			logger.Warn("ban_notice_failed", "thread", th.ID, "error", perr)
		}
		if th.Kind == models.KindBanAppeal {
			// the appeal thread is the channel to discuss the ban itself
			return nil
		}
		err := d.engine.Close(ctx, th.ID, d.engine.SystemUser(), "User banned")
		if errors.Is(err, mail.ErrAlreadyClosed) {
			return nil
		}
		return err
	}
	return nil
}
