package model

import "time"

// Device type constants for registered push tokens.
const (
	DeviceTypeIOS     = "ios"
	DeviceTypeAndroid = "android"
	DeviceTypeWeb     = "web"
)

// ValidDeviceType reports whether s is a known device type.
func ValidDeviceType(s string) bool {
	switch s {
	case DeviceTypeIOS, DeviceTypeAndroid, DeviceTypeWeb:
		return true
	}
	return false
}

// PushToken is a registered push destination for a device. For ios/android
// the token goes to the push gateway; for web it holds a serialized Web Push
// subscription. Registering a token is what grants push permission.
type PushToken struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	Token      string    `json:"token"`
	DeviceType string    `json:"device_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebPushSubscription is the client-supplied subscription stored for
// device_type=web tokens.
type WebPushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}
