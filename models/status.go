package models

import "fmt"

// Status is the validation lifecycle shared by versions and assets.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusValidating Status = "Validating"
	StatusValid      Status = "Valid"
	StatusInvalid    Status = "Invalid"
	StatusPublished  Status = "Published"
)

type transition struct {
	From Status
	To   Status
}

// Editing metadata sends an entity back to Pending. Published has no
// outgoing transitions.
var allowedTransitions = map[transition]bool{
	{StatusPending, StatusValidating}: true,
	{StatusValidating, StatusValid}:   true,
	{StatusValidating, StatusInvalid}: true,
	{StatusValidating, StatusPending}: true,
	{StatusValid, StatusPending}:      true,
	{StatusInvalid, StatusPending}:    true,
	{StatusValid, StatusPublished}:    true,
}

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition from %s to %s is not allowed", e.From, e.To)
}

// ValidateTransition returns nil if from -> to is allowed. Staying in the
// same state is allowed except for Published, which is immutable.
func ValidateTransition(from, to Status) error {
	if from == to && from != StatusPublished {
		return nil
	}
	if allowedTransitions[transition{from, to}] {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// AssetStatusCounts is the number of a version's assets in each status.
type AssetStatusCounts map[Status]int64

func (c AssetStatusCounts) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

// NotValid is the number of assets in any status other than Valid.
func (c AssetStatusCounts) NotValid() int64 {
	return c.Total() - c[StatusValid]
}

// Unvalidated is the number of assets that are neither Valid nor Invalid.
func (c AssetStatusCounts) Unvalidated() int64 {
	return c.Total() - c[StatusValid] - c[StatusInvalid]
}
