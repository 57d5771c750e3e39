// Package consent implements the age and parental-consent policy for
// minor-protected actions. All decisions are pure functions over a resolved
// identity; the package performs no I/O.
package consent

import (
	"math"
	"time"

	"github.com/majidsafwaan2/gymguard/internal/domain"
)

const daysPerYear = 365.25

// Policy holds the configured age thresholds and the enforcement toggle.
type Policy struct {
	AdultAge          int
	MinRegistrableAge int
	MaxRegistrableAge int
	Enforced          bool
}

// Age derives whole years from a date of birth. This is the single sanctioned
// age formula; every age gate in the service must go through it.
func Age(dateOfBirth, now time.Time) int {
	days := now.Sub(dateOfBirth).Hours() / 24
	if days < 0 {
		return 0
	}
	return int(math.Floor(days / daysPerYear))
}

// RequiresConsent reports whether the identity may not act autonomously on
// minor-sensitive operations. Guardians, coaches, and admins are exempt by
// category regardless of age.
func (p Policy) RequiresConsent(identity domain.Identity) bool {
	return p.RequiresConsentAt(identity, time.Now().UTC())
}

// RequiresConsentAt is RequiresConsent evaluated at an explicit instant.
func (p Policy) RequiresConsentAt(identity domain.Identity, now time.Time) bool {
	if !p.Enforced {
		return false
	}
	switch identity.Category {
	case domain.CategoryGuardian, domain.CategoryCoach, domain.CategoryAdmin:
		return false
	}
	return Age(identity.DateOfBirth, now) < p.AdultAge
}

// IsAuthorized decides whether a minor-sensitive action may proceed. When
// consent is required, the stored record must be granted AND name the
// granting guardian; a grant without a recorded guardian is treated as
// ungranted. guardianOverride satisfies the check for the single action
// being authorized (guardian action-in-progress) without mutating state.
func (p Policy) IsAuthorized(identity domain.Identity, guardianOverride bool) bool {
	return p.IsAuthorizedAt(identity, guardianOverride, time.Now().UTC())
}

// IsAuthorizedAt is IsAuthorized evaluated at an explicit instant.
func (p Policy) IsAuthorizedAt(identity domain.Identity, guardianOverride bool, now time.Time) bool {
	if !p.RequiresConsentAt(identity, now) {
		return true
	}
	if guardianOverride {
		return true
	}
	return identity.Consent.Granted && identity.Consent.GuardianID != 0
}

// WithinRegistrableAge reports whether a date of birth falls inside the
// registration window. Applied at registration only.
func (p Policy) WithinRegistrableAge(dateOfBirth, now time.Time) bool {
	age := Age(dateOfBirth, now)
	return age >= p.MinRegistrableAge && age <= p.MaxRegistrableAge
}
