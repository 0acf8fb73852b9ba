package repositories

import (
	"errors"

	"github.com/zeebo/errs"
	"gorm.io/gorm"
)

// Error is the class of repository errors. Wrapped gorm errors stay
// reachable through errors.Is.
var Error = errs.Class("repository")

// versionAsset is a row of the version/asset many2many table.
type versionAsset struct {
	VersionID uint `gorm:"primaryKey"`
	AssetID   uint `gorm:"primaryKey"`
}

func (versionAsset) TableName() string { return "version_assets" }

// conn returns tx when the caller runs inside a transaction.
func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
