// Package signup holds the signup capture domain types and validation rules.
package signup

import (
	"net/url"
	"time"
)

// Unknown is the sentinel stored for optional request metadata that the
// client did not supply.
const Unknown = "unknown"

// DefaultFocus is substituted when a payload omits the focus field.
const DefaultFocus = "general"

// Record represents one validated signup capture event. Records are
// immutable once written; there is no update path.
type Record struct {
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Source      string    `json:"source"`
	Focus       string    `json:"focus"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	Referrer    string    `json:"referrer"`
	UTMSource   *string   `json:"utm_source"`
	UTMMedium   *string   `json:"utm_medium"`
	UTMCampaign *string   `json:"utm_campaign"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stored is a Record as persisted by a storage backend.
type Stored struct {
	ID string `json:"id"`
	Record
}

// ParseUTM extracts utm_source, utm_medium and utm_campaign from a referrer
// URL. An absent, "unknown" or unparsable referrer yields all three nil;
// this never fails.
func ParseUTM(referrer string) (source, medium, campaign *string) {
	if referrer == "" || referrer == Unknown {
		return nil, nil, nil
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return nil, nil, nil
	}
	q := u.Query()
	return queryParam(q, "utm_source"), queryParam(q, "utm_medium"), queryParam(q, "utm_campaign")
}

func queryParam(q url.Values, key string) *string {
	if !q.Has(key) {
		return nil
	}
	v := q.Get(key)
	if v == "" {
		return nil
	}
	return &v
}
