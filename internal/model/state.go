package model

import "fmt"

// ConnectionState is the lifecycle state of the notification stream.
type ConnectionState string

const (
	ConnIdle         ConnectionState = "idle"
	ConnConnecting   ConnectionState = "connecting"
	ConnOpen         ConnectionState = "open"
	ConnError        ConnectionState = "error"
	ConnReconnecting ConnectionState = "reconnecting"
	ConnClosed       ConnectionState = "closed"
)

// PermissionState mirrors the platform's native-notification permission.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// ParsePermissionState converts a stored or user-supplied value.
func ParsePermissionState(s string) (PermissionState, error) {
	switch PermissionState(s) {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return PermissionState(s), nil
	}
	return "", fmt.Errorf("unknown permission state %q", s)
}
