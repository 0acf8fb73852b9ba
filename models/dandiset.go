package models

import (
	"fmt"
	"strconv"
	"time"
)

type Dandiset struct {
	ID        uint      `json:"-" gorm:"primarykey"`
	Owners    []User    `json:"-" gorm:"many2many:dandiset_owners;"`
	Versions  []Version `json:"-" gorm:"foreignKey:DandisetID"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"modified"`
}

// Identifier is the public, zero-padded dandiset number, e.g. "000027".
func (d *Dandiset) Identifier() string {
	return fmt.Sprintf("%06d", d.ID)
}

// ParseIdentifier converts a public identifier back to a primary key.
func ParseIdentifier(identifier string) (uint, error) {
	id, err := strconv.ParseUint(identifier, 10, 32)
	if err != nil || id == 0 {
		return 0, &ErrorNotFound{Message: fmt.Sprintf("dandiset %q not found", identifier)}
	}
	return uint(id), nil
}

// DandisetRole is a per-dandiset role granted to a user.
type DandisetRole string

const RoleOwner DandisetRole = "owner"

// DandisetOwner is the join row behind Dandiset.Owners.
type DandisetOwner struct {
	DandisetID uint `gorm:"primaryKey"`
	UserID     uint `gorm:"primaryKey"`
}

func (DandisetOwner) TableName() string { return "dandiset_owners" }
