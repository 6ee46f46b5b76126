package usecase

import (
	"bytes"
	"time"

	"custody/internal/domain"
	"custody/internal/infra/crypto"
)

// AuditDigest returns the integrity digest of a record: SHA-256 hex over the
// canonical JSON of its actor, action, timestamp, resource and status.
func AuditDigest(record domain.AuditRecord) string {
	return crypto.Digest(digestPayload{
		ActorID:    record.ActorID,
		ActionType: string(record.ActionType),
		ResourceID: record.ResourceID,
		Status:     string(record.Status),
		Timestamp:  formatAuditTimestamp(record.Timestamp),
	}.CanonicalJSON())
}

func draftDigest(draft domain.AuditDraft) string {
	return AuditDigest(draft.Build("", ""))
}

// VerifyAuditRecord recomputes the digest of record and compares it in constant
// time with the stored one.
func VerifyAuditRecord(record domain.AuditRecord) bool {
	if record.IntegrityDigest == "" {
		return false
	}
	return crypto.ConstantTimeEqual(AuditDigest(record), record.IntegrityDigest)
}

func formatAuditTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

type digestPayload struct {
	ActorID    string
	ActionType string
	ResourceID *string
	Status     string
	Timestamp  string
}

// CanonicalJSON writes keys in sorted order with no whitespace. An absent
// resource id is encoded as null.
func (p digestPayload) CanonicalJSON() []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeKV(buf, "action_type", p.ActionType, false)
	writeKV(buf, "actor_id", p.ActorID, false)
	writeJSONString(buf, "resource_id")
	buf.WriteByte(':')
	if p.ResourceID == nil {
		buf.WriteString("null")
	} else {
		writeJSONString(buf, *p.ResourceID)
	}
	buf.WriteByte(',')
	writeKV(buf, "status", p.Status, false)
	writeKV(buf, "timestamp", p.Timestamp, true)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeKV(buf *bytes.Buffer, key, value string, last bool) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	writeJSONString(buf, value)
	if !last {
		buf.WriteByte(',')
	}
}

func writeJSONString(buf *bytes.Buffer, value string) {
	buf.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

var hexLower = []byte("0123456789abcdef")
