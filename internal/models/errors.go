package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyFilter is returned when a filter update names no gifts.
var ErrEmptyFilter = errors.New("filter must name at least one gift")

// DeliveryError means a message could not be delivered to a recipient.
type DeliveryError struct {
	Recipient RecipientID
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver message to %d: %s", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// EligibilityCheckError means the membership of a recipient could not be determined.
type EligibilityCheckError struct {
	Recipient RecipientID
	Group     string
	Err       error
}

func (e *EligibilityCheckError) Error() string {
	return fmt.Sprintf("failed to check membership of %d in %s: %s", e.Recipient, e.Group, e.Err)
}

func (e *EligibilityCheckError) Unwrap() error {
	return e.Err
}

// InvalidGiftError lists the gift names of a filter update that are not in
// the catalog, exactly as the user typed them.
type InvalidGiftError struct {
	Names []string
}

func (e *InvalidGiftError) Error() string {
	return "unknown gifts: " + strings.Join(e.Names, ", ")
}
