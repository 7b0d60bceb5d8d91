package model

import "time"

// PushSubscription holds a browser push subscription and the rooms it follows.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	Rooms []*Room `gorm:"many2many:subscription_room_mapping;"`
}

// SubscriptionMappingTable is the join table between subscriptions and rooms.
const SubscriptionMappingTable = "subscription_room_mapping"
