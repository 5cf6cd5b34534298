package ticket

import (
	"errors"
	"fmt"
)

// ViolationKind nomeia a regra de validação violada
type ViolationKind string

const (
	MissingTicketID        ViolationKind = "MissingTicketId"
	InvalidOdds            ViolationKind = "InvalidOdds"
	InsufficientSelections ViolationKind = "InsufficientSelections"
	InvalidSystemSize      ViolationKind = "InvalidSystemSize"
	SelectionCountMismatch ViolationKind = "SelectionCountMismatch"
	InvalidStakeMode       ViolationKind = "InvalidStakeMode"
	InvalidStakeAmount     ViolationKind = "InvalidStakeAmount"
	UnsupportedShape       ViolationKind = "UnsupportedShape"
)

// ValidationError é a rejeição estruturada do Validator
type ValidationError struct {
	Kind   ViolationKind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func reject(kind ViolationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AsValidation extrai o ValidationError de uma cadeia de erros
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
