package types

import (
	"fmt"
	"strings"
)

const (
	maxNameLength     = 50
	maxQuestionLength = 500
	maxOptionLength   = 200
	maxOptions        = 20
	maxDuration       = 3600 // seconds
)

// ValidateName checks a participant display name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if len(trimmed) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
	}
	return nil
}

// ValidatePoll checks poll creation input: non-empty question, at least two
// non-empty options, positive bounded duration. Returns the options with
// surrounding whitespace trimmed and empty entries dropped.
func ValidatePoll(question string, options []string, duration int) ([]string, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", ErrValidation)
	}
	if len(question) > maxQuestionLength {
		return nil, fmt.Errorf("%w: question exceeds %d characters", ErrValidation, maxQuestionLength)
	}

	cleaned := make([]string, 0, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if len(opt) > maxOptionLength {
			return nil, fmt.Errorf("%w: option exceeds %d characters", ErrValidation, maxOptionLength)
		}
		cleaned = append(cleaned, opt)
	}
	if len(cleaned) < 2 {
		return nil, fmt.Errorf("%w: poll requires at least two non-empty options", ErrValidation)
	}
	if len(cleaned) > maxOptions {
		return nil, fmt.Errorf("%w: poll allows at most %d options", ErrValidation, maxOptions)
	}

	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if duration > maxDuration {
		return nil, fmt.Errorf("%w: duration exceeds %d seconds", ErrValidation, maxDuration)
	}

	return cleaned, nil
}

// ValidateChoice checks that a submitted answer matches one of the poll's
// options. Unknown choices are rejected so the tally domain stays equal to
// the option set.
func ValidateChoice(choice string, options []string) error {
	for _, opt := range options {
		if choice == opt {
			return nil
		}
	}
	return fmt.Errorf("%w: choice is not one of the poll options", ErrValidation)
}
