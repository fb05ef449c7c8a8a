package models

import "time"

// RecipientID is the Telegram chat id of a subscriber.
type RecipientID int64

// Subscription is a paid subscription record. It is created once on
// successful payment and never updated or deleted.
type Subscription struct {
	// ChatID is the chat that paid for the subscription.
	ChatID int64 `json:"chat_id" gorm:"column:chat_id;primaryKey;autoIncrement:false"`
	// SubscriptionDate is the UTC time of the first successful payment.
	SubscriptionDate time.Time `json:"subscription_date" gorm:"column:subscription_date;not null"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}
