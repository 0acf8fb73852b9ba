package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AssetBlob is the stored content of an asset. Several assets may share one
// blob, e.g. the draft and published copies of the same file.
type AssetBlob struct {
	ID        uint      `json:"-" gorm:"primarykey"`
	BlobID    uuid.UUID `json:"blob_id" gorm:"type:uuid;uniqueIndex;not null"`
	SHA256    string    `json:"sha256" gorm:"type:char(64);uniqueIndex;not null"`
	Size      int64     `json:"size" gorm:"not null"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"modified"`
}

// AssetMetadata is deduplicated by hash like VersionMetadata.
type AssetMetadata struct {
	ID           uint           `json:"-" gorm:"primarykey"`
	Metadata     datatypes.JSON `json:"metadata"`
	MetadataHash string         `json:"-" gorm:"type:char(64);uniqueIndex;not null"`
	CreatedAt    time.Time      `json:"created"`
}

func (AssetMetadata) TableName() string { return "asset_metadata" }

type Asset struct {
	ID              uint           `json:"-" gorm:"primarykey"`
	UUID            uuid.UUID      `json:"asset_id" gorm:"type:uuid;uniqueIndex;not null"`
	Path            string         `json:"path" gorm:"type:varchar(512);not null"`
	BlobID          uint           `json:"-" gorm:"not null;index"`
	Blob            *AssetBlob     `json:"-" gorm:"foreignKey:BlobID"`
	MetadataID      uint           `json:"-" gorm:"not null;index"`
	Metadata        *AssetMetadata `json:"-" gorm:"foreignKey:MetadataID"`
	Status          Status         `json:"status" gorm:"type:varchar(20);not null;default:'Pending'"`
	ValidationError string         `json:"validation_error" gorm:"type:text"`
	Versions        []Version      `json:"-" gorm:"many2many:version_assets;"`
	CreatedAt       time.Time      `json:"created"`
	UpdatedAt       time.Time      `json:"modified"`
}

func (a *Asset) Size() int64 {
	if a.Blob == nil {
		return 0
	}
	return a.Blob.Size
}

func (a *Asset) Transition(to Status) error {
	if err := ValidateTransition(a.Status, to); err != nil {
		return err
	}
	a.Status = to
	return nil
}
