package domain

import "time"

// DeviceInfo carries opaque client device metadata attached to a session.
type DeviceInfo struct {
	Platform   string `json:"platform,omitempty"`
	Model      string `json:"model,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

// Session represents one issued credential lineage for an identity.
type Session struct {
	ID           int64
	IdentityID   int64
	Token        string
	Device       DeviceInfo
	IPAddress    string
	UserAgent    string
	Active       bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
}

// Expired reports whether the session has passed its expiry.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
