package meta

// Audit fields are stamped by the API on every entity. Forms never send them:
// the id travels in the URL and the rest are server-owned.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldCreatedBy = "createdBy"
	FieldUpdatedBy = "updatedBy"
)

// AuditFields lists the read-only keys stripped from outgoing payloads.
var AuditFields = []string{FieldID, FieldCreatedAt, FieldUpdatedAt, FieldCreatedBy, FieldUpdatedBy}

// IsAuditField reports whether key is server-owned.
func IsAuditField(key string) bool {
	for _, f := range AuditFields {
		if f == key {
			return true
		}
	}
	return false
}
