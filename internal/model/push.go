package model

import "time"

// PushSubscription is a web push endpoint that receives native
// notifications on behalf of this client.
type PushSubscription struct {
	ID         int64     `json:"id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// NativeNotification is what gets handed to an OS-level or web push target.
// Notifications sharing a Tag replace each other instead of stacking.
type NativeNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`

	// Silent suppresses the notification sound where the target supports it.
	Silent bool `json:"silent,omitempty"`
}
