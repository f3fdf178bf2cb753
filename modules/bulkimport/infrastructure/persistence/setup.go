package persistence

import "github.com/pkg/errors"

var (
	ErrRunNotFound  = errors.New("import run not found")
	ErrItemNotFound = errors.New("import item not found")
)
