package domain

import (
	"strings"
	"time"
)

const (
	AuditDigestVersion = "audit_digest_v1"

	// AuditSystemActorID identifies records written by background processes.
	AuditSystemActorID = "__system__"
	// UnknownRequestValue is recorded when the transport supplies no ip or user agent.
	UnknownRequestValue = "unknown"
	// DefaultAuditDetailsMax caps the free-text details column, in runes.
	DefaultAuditDetailsMax = 1000
)

type AuditActionType string

const (
	AuditActionLoginSuccess AuditActionType = "LOGIN_SUCCESS"
	AuditActionLoginFailure AuditActionType = "LOGIN_FAILURE"
	AuditActionLogout       AuditActionType = "LOGOUT"

	AuditActionDocumentUpload              AuditActionType = "DOCUMENT_UPLOAD"
	AuditActionDocumentVersionUpload       AuditActionType = "DOCUMENT_VERSION_UPLOAD"
	AuditActionDocumentView                AuditActionType = "DOCUMENT_VIEW"
	AuditActionDocumentList                AuditActionType = "DOCUMENT_LIST"
	AuditActionDocumentDownload            AuditActionType = "DOCUMENT_DOWNLOAD"
	AuditActionDocumentDownloadStarted     AuditActionType = "DOCUMENT_DOWNLOAD_STARTED"
	AuditActionDocumentDownloadCompleted   AuditActionType = "DOCUMENT_DOWNLOAD_COMPLETED"
	AuditActionDocumentDownloadInterrupted AuditActionType = "DOCUMENT_DOWNLOAD_INTERRUPTED"
	AuditActionDocumentDelete              AuditActionType = "DOCUMENT_DELETE"
	AuditActionDocumentIntegrityCheck      AuditActionType = "DOCUMENT_INTEGRITY_CHECK"

	AuditActionAuditQuery  AuditActionType = "AUDIT_QUERY"
	AuditActionAuditVerify AuditActionType = "AUDIT_VERIFY"

	AuditActionRetentionPurge     AuditActionType = "RETENTION_PURGE"
	AuditActionSystemStartup      AuditActionType = "SYSTEM_STARTUP"
	AuditActionMasterKeyEphemeral AuditActionType = "MASTER_KEY_EPHEMERAL"
)

type AuditCategory string

const (
	AuditCategoryAuthentication AuditCategory = "authentication"
	AuditCategoryDocument       AuditCategory = "document"
	AuditCategoryAdministrative AuditCategory = "administrative"
	AuditCategorySystem         AuditCategory = "system"
)

var auditActionCategories = map[AuditActionType]AuditCategory{
	AuditActionLoginSuccess: AuditCategoryAuthentication,
	AuditActionLoginFailure: AuditCategoryAuthentication,
	AuditActionLogout:       AuditCategoryAuthentication,

	AuditActionDocumentUpload:              AuditCategoryDocument,
	AuditActionDocumentVersionUpload:       AuditCategoryDocument,
	AuditActionDocumentView:                AuditCategoryDocument,
	AuditActionDocumentList:                AuditCategoryDocument,
	AuditActionDocumentDownload:            AuditCategoryDocument,
	AuditActionDocumentDownloadStarted:     AuditCategoryDocument,
	AuditActionDocumentDownloadCompleted:   AuditCategoryDocument,
	AuditActionDocumentDownloadInterrupted: AuditCategoryDocument,
	AuditActionDocumentDelete:              AuditCategoryDocument,
	AuditActionDocumentIntegrityCheck:      AuditCategoryDocument,

	AuditActionAuditQuery:  AuditCategoryAdministrative,
	AuditActionAuditVerify: AuditCategoryAdministrative,

	AuditActionRetentionPurge:     AuditCategorySystem,
	AuditActionSystemStartup:      AuditCategorySystem,
	AuditActionMasterKeyEphemeral: AuditCategorySystem,
}

// Category reports the category of a known action type.
func (a AuditActionType) Category() (AuditCategory, bool) {
	c, ok := auditActionCategories[a]
	return c, ok
}

func (a AuditActionType) Valid() bool {
	_, ok := auditActionCategories[a]
	return ok
}

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "SUCCESS"
	AuditStatusFailure AuditStatus = "FAILURE"
	AuditStatusDenied  AuditStatus = "DENIED"
	AuditStatusError   AuditStatus = "ERROR"
)

func (s AuditStatus) Valid() bool {
	switch s {
	case AuditStatusSuccess, AuditStatusFailure, AuditStatusDenied, AuditStatusError:
		return true
	}
	return false
}

type AuditResourceType string

const (
	AuditResourceDocument AuditResourceType = "DOCUMENT"
	AuditResourceAudit    AuditResourceType = "AUDIT_RECORD"
	AuditResourceSession  AuditResourceType = "SESSION"
	AuditResourceSystem   AuditResourceType = "SYSTEM"
)

// AuditRecord is write-once. Records are produced by AuditDraft.Build and never
// modified afterwards.
type AuditRecord struct {
	ID              string            `json:"id"`
	ActorID         string            `json:"actor_id"`
	ActionType      AuditActionType   `json:"action_type"`
	Timestamp       time.Time         `json:"timestamp"`
	IPAddress       string            `json:"ip_address"`
	UserAgent       string            `json:"user_agent"`
	ResourceType    AuditResourceType `json:"resource_type"`
	ResourceID      *string           `json:"resource_id,omitempty"`
	Status          AuditStatus       `json:"status"`
	Details         string            `json:"details,omitempty"`
	IntegrityDigest string            `json:"integrity_digest"`
}

// ResourceIDValue returns the resource id or "" when absent.
func (r AuditRecord) ResourceIDValue() string {
	if r.ResourceID == nil {
		return ""
	}
	return *r.ResourceID
}

// AuditDraft holds every field of a record before its digest is known.
type AuditDraft struct {
	ActorID      string
	ActionType   AuditActionType
	Timestamp    time.Time
	IPAddress    string
	UserAgent    string
	ResourceType AuditResourceType
	ResourceID   string
	Status       AuditStatus
	Details      string
}

// Build produces the final record. The digest must have been computed over the
// draft's digest fields; Build does not recompute it.
func (d AuditDraft) Build(id, digest string) AuditRecord {
	record := AuditRecord{
		ID:              id,
		ActorID:         d.ActorID,
		ActionType:      d.ActionType,
		Timestamp:       d.Timestamp.UTC(),
		IPAddress:       d.IPAddress,
		UserAgent:       d.UserAgent,
		ResourceType:    d.ResourceType,
		Status:          d.Status,
		Details:         d.Details,
		IntegrityDigest: digest,
	}
	if d.ResourceID != "" {
		resourceID := d.ResourceID
		record.ResourceID = &resourceID
	}
	return record
}

type AuditQuery struct {
	ActorID    string
	ActionType AuditActionType
	From       time.Time
	To         time.Time
	Page       Page
}

// SecurityEventQuery counts matching records at or after Since. Empty fields
// match anything.
type SecurityEventQuery struct {
	ActorID    string
	ActionType AuditActionType
	Status     AuditStatus
	Since      time.Time
}

type AuditPage struct {
	Items    []AuditRecord `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// AuditVerification is the outcome of a tamper audit over a time window.
type AuditVerification struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Checked   int       `json:"checked"`
	Tampered  []string  `json:"tampered"`
	CheckedAt time.Time `json:"checked_at"`
	// Root folds every checked record, in storage order. Empty for an empty window.
	Root        string `json:"root,omitempty"`
	RootMatches *bool  `json:"root_matches,omitempty"`
}

// CompareRoot records whether the window still folds to a previously pinned root.
func (v *AuditVerification) CompareRoot(expected string) bool {
	matches := v.Root != "" && strings.EqualFold(v.Root, expected)
	v.RootMatches = &matches
	return matches
}
