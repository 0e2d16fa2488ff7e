package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")

	ErrChatNotFound      = errors.New("chat not found")
	ErrForbidden         = errors.New("chat belongs to another user")
	ErrTurnInProgress    = errors.New("another turn is in progress for this chat")
	ErrGenerationFailed  = errors.New("answer generation failed")
	ErrPersistenceFailed = errors.New("message persistence failed")

	ErrUnsupportedDocument = errors.New("only PDF documents are supported")
	ErrDocumentTooLarge    = errors.New("document exceeds the upload limit")
)
