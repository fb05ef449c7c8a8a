package models

import "fmt"

// EventKind identifies the variant of a decoded upstream frame.
type EventKind string

const (
	// EventNewMint is emitted by the upstream when a gift is minted.
	EventNewMint EventKind = "newMint"
	// EventUnrecognized covers every frame that is not a newMint payload.
	EventUnrecognized EventKind = "unrecognized"
)

// Event is the canonical record produced from an upstream frame.
type Event struct {
	Kind      EventKind `json:"kind"`
	Slug      string    `json:"slug"`
	OwnerName string    `json:"owner_name"`
	// GiftName is the display name as received, e.g. "Plush Pepe".
	GiftName string `json:"gift_name"`
	// GiftNameNormalized has whitespace removed and is lowercased, e.g. "plushpepe".
	GiftNameNormalized string `json:"gift_name_normalized"`
}

// Link returns the public NFT page of the minted gift.
func (e Event) Link() string {
	return "http://t.me/nft/" + e.Slug
}

// String renders the notification text delivered to subscribers.
func (e Event) String() string {
	return fmt.Sprintf("🔔 Новое уведомление!\nСсылка: %s\nОт: %s", e.Link(), e.OwnerName)
}
