package domain

import (
	"math"
	"time"
)

type IntegrityStatus string

const (
	IntegrityValid     IntegrityStatus = "VALID"
	IntegrityCorrupted IntegrityStatus = "CORRUPTED"
	IntegrityMissing   IntegrityStatus = "MISSING"
)

// Document is one stored version of a file. LineageID is the id of the first
// version and is shared by every successor.
type Document struct {
	ID               string
	LineageID        string
	ParentVersionID  *string
	OriginalFilename string
	ContentType      string
	OriginalSize     int64
	EncryptedSize    int64
	FileHash         string
	EncryptionNonce  []byte
	StoragePath      string
	Classification   Level
	VersionNumber    int
	IntegrityStatus  IntegrityStatus
	UploadedBy       string
	CreatedAt        time.Time
	Deleted          bool
	DeletedAt        *time.Time
	DeletedBy        *string
	PurgedAt         *time.Time
}

// DocumentSummary is the caller-facing view of a document. It carries no
// storage locator or nonce.
type DocumentSummary struct {
	ID               string          `json:"id"`
	LineageID        string          `json:"lineage_id"`
	ParentVersionID  *string         `json:"parent_version_id,omitempty"`
	OriginalFilename string          `json:"original_filename"`
	ContentType      string          `json:"content_type"`
	OriginalSize     int64           `json:"original_size"`
	FileHash         string          `json:"file_hash"`
	Classification   Level           `json:"classification"`
	VersionNumber    int             `json:"version_number"`
	IntegrityStatus  IntegrityStatus `json:"integrity_status"`
	UploadedBy       string          `json:"uploaded_by"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (d Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:               d.ID,
		LineageID:        d.LineageID,
		ParentVersionID:  d.ParentVersionID,
		OriginalFilename: d.OriginalFilename,
		ContentType:      d.ContentType,
		OriginalSize:     d.OriginalSize,
		FileHash:         d.FileHash,
		Classification:   d.Classification.Normalize(),
		VersionNumber:    d.VersionNumber,
		IntegrityStatus:  d.IntegrityStatus,
		UploadedBy:       d.UploadedBy,
		CreatedAt:        d.CreatedAt,
	}
}

type DocumentQuery struct {
	Levels     []Level
	Search     string
	UploadedBy string
	FileHash   string
	Page       Page
}

type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
	// MaxPageNumber keeps (Number-1)*MaxPageSize inside int.
	MaxPageNumber = math.MaxInt / MaxPageSize
)

// Normalize clamps the page to sane bounds. Page numbers start at 1.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Number > MaxPageNumber {
		p.Number = MaxPageNumber
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}

type DocumentPage struct {
	Items    []DocumentSummary `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}
