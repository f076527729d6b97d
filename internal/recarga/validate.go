package recarga

import (
	"fmt"
	"regexp"
	"strings"
)

// Top-up limits in Colombian pesos.
const (
	MinAmount = 1000
	MaxAmount = 100000
)

// Colombian mobile numbers: ten digits starting with 3.
var phoneNumberPattern = regexp.MustCompile(`^3[0-9]{9}$`)

// FieldError is a validation failure on one input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates the field-level failures of one submission.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (validationErr *ValidationError) Error() string {
	messages := make([]string, 0, len(validationErr.Fields))
	for _, field := range validationErr.Fields {
		messages = append(messages, field.Field+": "+field.Message)
	}
	return "recarga.validation: " + strings.Join(messages, "; ")
}

// RechargeInput is a top-up submission before validation.
type RechargeInput struct {
	PhoneNumber string
	Amount      int
	SupplierID  string
}

// ValidateRecharge checks a submission against the carrier rules and returns
// a ValidationError listing every failing field.
func ValidateRecharge(input RechargeInput) error {
	var fields []FieldError

	switch {
	case strings.TrimSpace(input.PhoneNumber) == "":
		fields = append(fields, FieldError{Field: "phoneNumber", Message: "El número de teléfono es requerido"})
	case !phoneNumberPattern.MatchString(input.PhoneNumber):
		fields = append(fields, FieldError{Field: "phoneNumber", Message: "Número inválido"})
	}

	switch {
	case input.Amount == 0:
		fields = append(fields, FieldError{Field: "amount", Message: "El monto es requerido"})
	case input.Amount < MinAmount:
		fields = append(fields, FieldError{Field: "amount", Message: fmt.Sprintf("El monto mínimo es $%d COP", MinAmount)})
	case input.Amount > MaxAmount:
		fields = append(fields, FieldError{Field: "amount", Message: fmt.Sprintf("El monto máximo es $%d COP", MaxAmount)})
	}

	if strings.TrimSpace(input.SupplierID) == "" {
		fields = append(fields, FieldError{Field: "supplierId", Message: "El operador es requerido"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
