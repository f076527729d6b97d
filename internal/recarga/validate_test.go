package recarga

import (
	"errors"
	"testing"
)

func fieldMessage(t *testing.T, err error, field string) string {
	t.Helper()
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, fieldErr := range validationErr.Fields {
		if fieldErr.Field == field {
			return fieldErr.Message
		}
	}
	t.Fatalf("no error for field %q in %v", field, validationErr.Fields)
	return ""
}

func TestValidateRechargeAcceptsValidInput(t *testing.T) {
	t.Parallel()

	input := RechargeInput{PhoneNumber: "3001234567", Amount: 10000, SupplierID: "8753"}
	if err := ValidateRecharge(input); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}

func TestValidateRechargeBoundaryAmounts(t *testing.T) {
	t.Parallel()

	if err := ValidateRecharge(RechargeInput{PhoneNumber: "3001234567", Amount: MinAmount, SupplierID: "8753"}); err != nil {
		t.Fatalf("minimum amount must be accepted: %v", err)
	}
	if err := ValidateRecharge(RechargeInput{PhoneNumber: "3001234567", Amount: MaxAmount, SupplierID: "8753"}); err != nil {
		t.Fatalf("maximum amount must be accepted: %v", err)
	}

	tooLow := ValidateRecharge(RechargeInput{PhoneNumber: "3001234567", Amount: MinAmount - 1, SupplierID: "8753"})
	if fieldMessage(t, tooLow, "amount") != "El monto mínimo es $1000 COP" {
		t.Fatalf("unexpected message: %v", tooLow)
	}
	tooHigh := ValidateRecharge(RechargeInput{PhoneNumber: "3001234567", Amount: MaxAmount + 1, SupplierID: "8753"})
	if fieldMessage(t, tooHigh, "amount") != "El monto máximo es $100000 COP" {
		t.Fatalf("unexpected message: %v", tooHigh)
	}
}

func TestValidateRechargePhoneNumbers(t *testing.T) {
	t.Parallel()

	missing := ValidateRecharge(RechargeInput{Amount: 5000, SupplierID: "8753"})
	if fieldMessage(t, missing, "phoneNumber") != "El número de teléfono es requerido" {
		t.Fatalf("unexpected message: %v", missing)
	}

	badNumbers := []string{"2001234567", "300123456", "30012345678", "300123456a", "+573001234567"}
	for _, phoneNumber := range badNumbers {
		err := ValidateRecharge(RechargeInput{PhoneNumber: phoneNumber, Amount: 5000, SupplierID: "8753"})
		if fieldMessage(t, err, "phoneNumber") != "Número inválido" {
			t.Fatalf("number %q: unexpected result %v", phoneNumber, err)
		}
	}
}

func TestValidateRechargeAggregatesAllFields(t *testing.T) {
	t.Parallel()

	err := ValidateRecharge(RechargeInput{})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validationErr.Fields) != 3 {
		t.Fatalf("expected all three fields to fail, got %v", validationErr.Fields)
	}
	if fieldMessage(t, err, "amount") != "El monto es requerido" {
		t.Fatalf("unexpected amount message: %v", err)
	}
	if fieldMessage(t, err, "supplierId") != "El operador es requerido" {
		t.Fatalf("unexpected supplier message: %v", err)
	}
}
