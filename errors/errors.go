package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type ErrorType string

const (
	ErrTypeSourceUnreadable     ErrorType = "SOURCE_UNREADABLE"
	ErrTypeMalformedRow         ErrorType = "MALFORMED_ROW"
	ErrTypeMissingIdentifier    ErrorType = "MISSING_IDENTIFIER"
	ErrTypeDuplicateIdentifier  ErrorType = "DUPLICATE_IDENTIFIER"
	ErrTypeUnparsableDate       ErrorType = "UNPARSABLE_DATE"
	ErrTypeUnparsableExperience ErrorType = "UNPARSABLE_EXPERIENCE"
	ErrTypeUnparsableSalary     ErrorType = "UNPARSABLE_SALARY"
	ErrTypeSalaryRangeViolation ErrorType = "SALARY_RANGE_VIOLATION"
	ErrTypeUnresolvedLocation   ErrorType = "UNRESOLVED_LOCATION"
	ErrTypeMalformedSkillList   ErrorType = "MALFORMED_SKILL_LIST"
	ErrTypeUnclassifiedSkill    ErrorType = "UNCLASSIFIED_SKILL"
	ErrTypeReferentialIntegrity ErrorType = "REFERENTIAL_INTEGRITY_VIOLATION"
	ErrTypeInternal             ErrorType = "INTERNAL"
)

// Kinds lists every error type in report order.
var Kinds = []ErrorType{
	ErrTypeSourceUnreadable,
	ErrTypeMalformedRow,
	ErrTypeMissingIdentifier,
	ErrTypeDuplicateIdentifier,
	ErrTypeUnparsableDate,
	ErrTypeUnparsableExperience,
	ErrTypeUnparsableSalary,
	ErrTypeSalaryRangeViolation,
	ErrTypeUnresolvedLocation,
	ErrTypeMalformedSkillList,
	ErrTypeUnclassifiedSkill,
	ErrTypeReferentialIntegrity,
	ErrTypeInternal,
}

// Fatal reports whether an error of this type aborts a pipeline run.
func (t ErrorType) Fatal() bool {
	return t == ErrTypeSourceUnreadable || t == ErrTypeInternal
}

type PipelineError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   []byte
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) StackTrace() []byte {
	return e.Stack
}

func New(errType ErrorType, message string, err error) *PipelineError {
	var stack []byte
	if err != nil {
		if stackErr, ok := err.(*goerrors.Error); ok {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &PipelineError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

func SourceUnreadable(message string, err error) *PipelineError {
	return New(ErrTypeSourceUnreadable, message, err)
}

func MalformedSkillList(message string, err error) *PipelineError {
	return New(ErrTypeMalformedSkillList, message, err)
}

func ReferentialIntegrity(message string, err error) *PipelineError {
	return New(ErrTypeReferentialIntegrity, message, err)
}

func Internal(message string, err error) *PipelineError {
	return New(ErrTypeInternal, message, err)
}

// TypeOf returns the ErrorType of the first PipelineError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Type, true
	}
	return "", false
}

// Is reports whether err carries a PipelineError of the given type.
func Is(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}
