package domain

import "errors"

// 业务错误。调用方用 errors.Is 判断，具体原因通过 fmt.Errorf("%w: ...") 附带。
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrPastDate      = errors.New("date is too soon")
	ErrDuplicateSlot = errors.New("a tag request already exists for this date and time slot")
	ErrNotAvailable  = errors.New("tag request is no longer available")
	ErrFilledRequest = errors.New("tag request is already filled")
	ErrInvalidInput  = errors.New("invalid input")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is locked")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
