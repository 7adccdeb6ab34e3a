package odb

import (
	"fmt"
)

// ErrNotExist commit not exist error
type ErrNotExist struct {
	message string
}

// IsErrNotExist if some error is ErrNotExist
func IsErrNotExist(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrNotExist)
	return ok
}

func (err *ErrNotExist) Error() string {
	return err.message
}

func NewObjectNotFound(oid string) error {
	return &ErrNotExist{message: fmt.Sprintf("object '%s' does not exist", oid)}
}

type ErrUnexpectedType struct {
	message string
}

func (e *ErrUnexpectedType) Error() string {
	return e.message
}

