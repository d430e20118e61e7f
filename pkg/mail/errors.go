package mail

import (
	"errors"

	"github.com/rNintendoSwitch/Parakarry/pkg/gateway"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
	"github.com/rNintendoSwitch/Parakarry/pkg/timeutil"
)

var (
	// ErrAlreadyOpen is returned when a thread create races or duplicates
	// an existing open thread for the same recipient.
	ErrAlreadyOpen = errors.New("recipient already has an open thread")

	// ErrThreadNotFound is returned for operations on unknown thread ids.
	ErrThreadNotFound = store.ErrNotFound

	// ErrAlreadyClosed is returned when closing a thread that is closed.
	// Double-close indicates a race the caller must decide about, so it is
	// surfaced rather than swallowed.
	ErrAlreadyClosed = errors.New("thread already closed")

	// ErrInvalidDuration is returned for malformed schedule delays.
	ErrInvalidDuration = timeutil.ErrInvalidDuration

	// ErrAlreadyScheduled is returned by the scheduler only when replace
	// policy is disabled; the default policy replaces the pending closure
	// and reports whose timer was displaced.
	ErrAlreadyScheduled = errors.New("a close is already scheduled for this thread")

	// ErrNotScheduled is returned by Cancel when no closure is pending.
	ErrNotScheduled = errors.New("no pending closure for this thread")

	// ErrEmptyMessage rejects a moderator reply with no content and no
	// attachments.
	ErrEmptyMessage = errors.New("reply requires content or attachments")

	// ErrReplyTooLong rejects moderator replies over the configured cap.
	ErrReplyTooLong = errors.New("reply content too long")

	// ErrNotAModmailChannel is returned when an operation is issued against
	// a channel or thread that is not an open modmail binding.
	ErrNotAModmailChannel = errors.New("not a modmail channel")

	// ErrAppealThread guards the generic close path; ban appeals are closed
	// only through an accept/deny decision.
	ErrAppealThread = errors.New("ban appeal threads close via appeal accept/deny")

	// ErrRecipientUnreachable mirrors the gateway's DM failure. The
	// transcript entry is still recorded when this is returned from a
	// relay; see RelayResult.Delivered.
	ErrRecipientUnreachable = gateway.ErrUnreachable

	// ErrDelivery is the generic gateway failure.
	ErrDelivery = gateway.ErrDelivery
)
