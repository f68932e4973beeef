package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrIncompleteWorkflow = errors.New("incomplete workflow")
	ErrGenerationFailure  = errors.New("generation failure")
	// ErrConflict means a section changed between the assembly snapshot and its commit.
	ErrConflict = errors.New("conflict")
	// ErrAssemblyVersionTaken means a concurrent assembly committed the same version first.
	ErrAssemblyVersionTaken = fmt.Errorf("assembly version taken: %w", ErrConflict)
)

type InvalidTransitionError struct {
	SectionKey SectionKey
	Command    SectionCommand
	Current    SectionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s section %s in status %s", e.Command, e.SectionKey, e.Current)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type IncompleteWorkflowError struct {
	SummonsID   string
	Outstanding []SectionKey
}

func (e *IncompleteWorkflowError) Error() string {
	keys := make([]string, len(e.Outstanding))
	for i, k := range e.Outstanding {
		keys[i] = string(k)
	}
	return fmt.Sprintf("summons %s has unapproved sections: %s", e.SummonsID, strings.Join(keys, ", "))
}

func (e *IncompleteWorkflowError) Is(target error) bool {
	return target == ErrIncompleteWorkflow
}

type GenerationFailureError struct {
	SectionKey SectionKey
	Reason     string
	Err        error
}

func (e *GenerationFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation of section %s failed: %s: %v", e.SectionKey, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation of section %s failed: %s", e.SectionKey, e.Reason)
}

func (e *GenerationFailureError) Unwrap() error {
	return e.Err
}

func (e *GenerationFailureError) Is(target error) bool {
	return target == ErrGenerationFailure
}

// NotFoundf wraps ErrNotFound with a description of what was missing.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
