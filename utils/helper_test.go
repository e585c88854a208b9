package utils

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestProcessValidationErrors(t *testing.T) {
	type connectInput struct {
		CompanyId string `validate:"required"`
		Secret    string `validate:"required,min=8"`
	}

	err := validator.New().Struct(connectInput{Secret: "short"})
	if err == nil {
		t.Fatal("expected validation failure")
	}

	fields := ProcessValidationErrors(err)
	if fields["CompanyId"] != "required" {
		t.Errorf("CompanyId = %q, want required", fields["CompanyId"])
	}
	if fields["Secret"] != "min" {
		t.Errorf("Secret = %q, want min", fields["Secret"])
	}
}
