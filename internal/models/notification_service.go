package models

import "context"

// MemberStatus is the membership status of a user in a channel, using
// Telegram's status names.
type MemberStatus string

const (
	MemberStatusCreator       MemberStatus = "creator"
	MemberStatusAdministrator MemberStatus = "administrator"
	MemberStatusMember        MemberStatus = "member"
	MemberStatusRestricted    MemberStatus = "restricted"
	MemberStatusLeft          MemberStatus = "left"
	MemberStatusKicked        MemberStatus = "kicked"
)

// HasLeft reports whether the status means the user is no longer in the channel.
func (s MemberStatus) HasLeft() bool {
	return s == MemberStatusLeft || s == MemberStatusKicked
}

// MessageSender delivers plain text to a chat.
// Implementations return *DeliveryError when the recipient cannot be reached.
type MessageSender interface {
	SendText(ctx context.Context, to RecipientID, text string) error
}

// EligibilityChecker reports channel membership of a recipient.
type EligibilityChecker interface {
	MemberStatus(ctx context.Context, recipient RecipientID, group string) (MemberStatus, error)
}

// EventHandler consumes normalized upstream events.
type EventHandler interface {
	Dispatch(ctx context.Context, event Event)
}
