package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrTagExists           = errors.New("tag already exists")
	ErrUnknownTag          = errors.New("tag does not exist")
	ErrEmptyTagName        = errors.New("tag name cannot be empty")
	ErrNoSuitableQuestions = errors.New("no suitable questions found for testing")
	ErrInvalidCount        = errors.New("question count must be positive")
	ErrSessionComplete     = errors.New("test is already complete")
	ErrTestSetPresent      = errors.New("test set already imported")
	ErrStaleAnswer         = errors.New("question was already answered")
	ErrReservedTag         = errors.New("tag name is reserved")
)
