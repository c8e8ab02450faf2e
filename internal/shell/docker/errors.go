package docker

import (
	"errors"
	"fmt"
)

var (
	ErrContainerNotFound = errors.New("container not found")
	ErrConnectionFailed  = errors.New("docker connection failed")
)

// EngineError wraps engine failures with the operation and entity involved.
type EngineError struct {
	Op      string // Operation that failed
	Entity  string // Entity type (container, network)
	ID      string // Entity name or ID if applicable
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(op, entity, id, message string, err error) *EngineError {
	return &EngineError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}
