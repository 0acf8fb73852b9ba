package models

const (
	MessageNotOwner        = "You do not have permission to perform this action."
	MessageNotAdmin        = "Must be an admin to publish"
	MessageDraftOnly       = "Only draft versions can be modified."
	MessagePublishNotDraft = "Only draft versions can be published."
)

// ErrorPermissionDenied is returned when the caller lacks a role the
// operation requires. Reason tells the variants apart.
type ErrorPermissionDenied struct {
	Reason  string
	Message string
}

const (
	ReasonNotOwner = "not_owner"
	ReasonNotAdmin = "not_admin"
)

func (e *ErrorPermissionDenied) Error() string { return e.Message }

func NotOwner() *ErrorPermissionDenied {
	return &ErrorPermissionDenied{Reason: ReasonNotOwner, Message: MessageNotOwner}
}

func NotAdmin() *ErrorPermissionDenied {
	return &ErrorPermissionDenied{Reason: ReasonNotAdmin, Message: MessageNotAdmin}
}

type ErrorNotFound struct {
	Message string
}

func (e *ErrorNotFound) Error() string { return e.Message }

// ErrorMethodNotAllowed rejects an operation the target's state does not
// support, such as editing a published version.
type ErrorMethodNotAllowed struct {
	Message string
}

func (e *ErrorMethodNotAllowed) Error() string { return e.Message }

type ErrorConflict struct {
	Message string
}

func (e *ErrorConflict) Error() string { return e.Message }

type ErrorBadRequest struct {
	Message string
}

func (e *ErrorBadRequest) Error() string { return e.Message }

type ErrorUnauthorized struct {
	Message string
}

func (e *ErrorUnauthorized) Error() string { return e.Message }
