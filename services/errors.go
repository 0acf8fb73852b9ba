package services

import (
	"errors"
	"strings"

	"github.com/zeebo/errs"
	"gorm.io/gorm"

	"dandi-api/models"
	"dandi-api/repositories"
)

// ErrCollision marks a publish attempt that lost the race for a version
// identifier. It is retried.
var ErrCollision = errs.Class("identifier collision")

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "23505")
}

// notFound turns a missing row into a client-facing 404 and passes other
// errors through.
func notFound(err error, message string) error {
	if repositories.IsNotFound(err) {
		return &models.ErrorNotFound{Message: message}
	}
	return err
}
