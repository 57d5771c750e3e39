package domain

import "time"

// Category classifies an identity for consent policy purposes.
type Category string

const (
	CategoryMinor    Category = "minor"
	CategoryGuardian Category = "guardian"
	CategoryCoach    Category = "coach"
	CategoryAdmin    Category = "admin"
)

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	switch c {
	case CategoryMinor, CategoryGuardian, CategoryCoach, CategoryAdmin:
		return true
	}
	return false
}

// ConsentRecord captures a guardian's consent grant for a minor.
// A grant without a recorded granting guardian is treated as ungranted.
type ConsentRecord struct {
	Granted    bool
	GrantedAt  *time.Time
	GuardianID int64
}

// Identity is a resolved, persisted user. Age is always derived from
// DateOfBirth, never stored.
type Identity struct {
	ID           int64
	Email        string
	ExternalUID  string
	PasswordHash string
	FirstName    string
	LastName     string
	Category     Category
	DateOfBirth  time.Time
	Consent      ConsentRecord
	GuardianIDs  []int64
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt time.Time
}

// FullName joins the stored name parts.
func (i Identity) FullName() string {
	if i.FirstName == "" {
		return i.LastName
	}
	if i.LastName == "" {
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}
