package signup

import (
	"fmt"
	"strings"
	"time"
)

// Payload is the raw inbound signup body plus request metadata captured by
// the HTTP layer. Unknown extra JSON fields are ignored during decoding,
// not rejected.
type Payload struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	Source    string `json:"source"`
	Focus     string `json:"focus"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
	Referrer  string `json:"-"`
}

// ValidationError reports the payload fields that were missing or invalid.
type ValidationError struct {
	Fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signup payload: missing %s", strings.Join(e.Fields, ", "))
}

// Validate normalizes a raw payload into a Record or fails with a
// *ValidationError listing every missing field. It performs no side effects;
// CreatedAt is stamped with the supplied write time.
func Validate(p Payload, now time.Time) (Record, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	role := strings.TrimSpace(p.Role)
	source := strings.TrimSpace(p.Source)

	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if role == "" {
		missing = append(missing, "role")
	}
	if source == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return Record{}, &ValidationError{Fields: missing}
	}

	focus := strings.TrimSpace(p.Focus)
	if focus == "" {
		focus = DefaultFocus
	}

	referrer := orUnknown(p.Referrer)
	utmSource, utmMedium, utmCampaign := ParseUTM(referrer)

	return Record{
		Email:       email,
		Role:        role,
		Source:      source,
		Focus:       focus,
		IPAddress:   orUnknown(p.IPAddress),
		UserAgent:   orUnknown(p.UserAgent),
		Referrer:    referrer,
		UTMSource:   utmSource,
		UTMMedium:   utmMedium,
		UTMCampaign: utmCampaign,
		CreatedAt:   now,
	}, nil
}

// NormalizeEmail applies the same normalization used by Validate, for
// lookup paths that receive a bare email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}
