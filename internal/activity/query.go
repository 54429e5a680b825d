// Package activity keeps the audit trail of record mutations served by the
// development API: who created, changed, disconnected or deleted which record.
package activity

import "time"

// Kind is the mutation that produced an entry.
type Kind string

const (
	KindCreated      Kind = "created"
	KindUpdated      Kind = "updated"
	KindDisconnected Kind = "disconnected"
	KindDeleted      Kind = "deleted"
)

// Entry is one audited mutation.
type Entry struct {
	EventID    string    `json:"eventId"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurredAt"`
	Endpoint   string    `json:"endpoint"`
	RecordID   string    `json:"recordId"`
	Actor      string    `json:"actor"`
	Tenant     string    `json:"tenant,omitempty"`
	Summary    string    `json:"summary"`
	// Fields lists the top-level keys whose values changed.
	Fields []string `json:"fields,omitempty"`
}

// QueryOptions controls filtering and pagination for record queries.
type QueryOptions struct {
	Since *time.Time
	Until *time.Time
	Kinds []Kind
	Limit int // default 100, max 500
	// Cursor is the OccurredAt of the last entry of the previous page.
	Cursor string
}

// SearchOptions controls filtering for summary search.
type SearchOptions struct {
	Endpoint string
	Since    *time.Time
	Kinds    []Kind
	Limit    int // default 20
}

const (
	defaultLimit       = 100
	maxLimit           = 500
	defaultSearchLimit = 20
)

func (o QueryOptions) limit() int {
	if o.Limit <= 0 || o.Limit > maxLimit {
		return defaultLimit
	}
	return o.Limit
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return defaultSearchLimit
	}
	return min(o.Limit, maxLimit)
}

func (o QueryOptions) cursor() (time.Time, bool) {
	if o.Cursor == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, o.Cursor)
	return t, err == nil
}

func hasKind(kinds []Kind, k Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
