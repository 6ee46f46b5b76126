package db

import "time"

type DocumentModel struct {
	ID               string     `gorm:"type:uuid;primaryKey"`
	LineageID        string     `gorm:"type:uuid;index;not null"`
	ParentVersionID  *string    `gorm:"type:uuid;index"`
	OriginalFilename string     `gorm:"not null"`
	ContentType      string     `gorm:"not null"`
	OriginalSize     int64      `gorm:"not null"`
	EncryptedSize    int64      `gorm:"not null"`
	FileHash         string     `gorm:"type:char(64);index;not null"`
	EncryptionNonce  []byte     `gorm:"type:bytea;not null"`
	StoragePath      string     `gorm:"not null"`
	Classification   string     `gorm:"index;not null"`
	VersionNumber    int        `gorm:"not null"`
	IntegrityStatus  string     `gorm:"not null"`
	UploadedBy       string     `gorm:"index;not null"`
	CreatedAt        time.Time  `gorm:"index;not null"`
	IsDeleted        bool       `gorm:"column:is_deleted;index;not null"`
	DeletedAt        *time.Time `gorm:"index"`
	DeletedBy        *string
	PurgedAt         *time.Time
}

func (DocumentModel) TableName() string {
	return "documents"
}

type AuditRecordModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	ActorID         string    `gorm:"index;not null"`
	ActionType      string    `gorm:"index;not null"`
	Timestamp       time.Time `gorm:"column:ts;index;not null"`
	IPAddress       string    `gorm:"not null"`
	UserAgent       string    `gorm:"not null"`
	ResourceType    string    `gorm:"not null"`
	ResourceID      *string   `gorm:"index"`
	Status          string    `gorm:"index;not null"`
	Details         string    `gorm:"not null"`
	IntegrityDigest string    `gorm:"type:char(64);not null"`
}

func (AuditRecordModel) TableName() string {
	return "audit_records"
}
