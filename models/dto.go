package models

import "time"

type RegisterRequest struct {
	Username string   `json:"username" validate:"required,min=3,max=50"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6"`
	Role     UserRole `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type CreateDandisetRequest struct {
	Name     string                 `json:"name" validate:"required,max=300"`
	Metadata map[string]interface{} `json:"metadata"`
}

// UpdateVersionRequest replaces a draft's name and metadata document.
type UpdateVersionRequest struct {
	Name     string                 `json:"name" validate:"required,max=300"`
	Metadata map[string]interface{} `json:"metadata" validate:"required"`
}

type CreateAssetRequest struct {
	Path     string                 `json:"path" validate:"required,max=512"`
	SHA256   string                 `json:"sha256" validate:"required,len=64,hexadecimal"`
	Size     int64                  `json:"size" validate:"min=0"`
	Metadata map[string]interface{} `json:"metadata" validate:"required"`
}

type UpdateAssetRequest struct {
	Path     string                 `json:"path" validate:"omitempty,max=512"`
	Metadata map[string]interface{} `json:"metadata" validate:"required"`
}

type ListParams struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Normalize applies the default page and clamps the page size.
func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

type DandisetSummary struct {
	Identifier string    `json:"identifier"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

type VersionResponse struct {
	Dandiset   DandisetSummary `json:"dandiset"`
	Version    string          `json:"version"`
	Name       string          `json:"name"`
	Created    time.Time       `json:"created"`
	Modified   time.Time       `json:"modified"`
	AssetCount int64           `json:"asset_count"`
	Size       int64           `json:"size"`
	Status     Status          `json:"status"`
}

type VersionDetailResponse struct {
	VersionResponse
	Metadata map[string]interface{} `json:"metadata"`
}

type ValidationReport struct {
	Status          Status `json:"status"`
	Valid           bool   `json:"valid"`
	PublishStatus   Status `json:"publish_status"`
	ValidationError string `json:"validation_error"`
}

type DandisetResponse struct {
	Identifier                 string           `json:"identifier"`
	Created                    time.Time        `json:"created"`
	Modified                   time.Time        `json:"modified"`
	DraftVersion               *VersionResponse `json:"draft_version"`
	MostRecentPublishedVersion *VersionResponse `json:"most_recent_published_version"`
}

type AssetResponse struct {
	AssetID  string    `json:"asset_id"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	SHA256   string    `json:"sha256"`
	Status   Status    `json:"status"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

type AssetDetailResponse struct {
	AssetResponse
	ValidationError string                 `json:"validation_error"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// Page is a list response in the archive's paginated envelope.
type Page[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}
