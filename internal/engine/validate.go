package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/model"
)

var invoiceValidator = newValidator("json")

// newValidator reports fields by the name found in tagName rather than the
// Go field name.
func newValidator(tagName string) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get(tagName), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateInvoice checks the invariants an invoice must satisfy before it can
// be assessed. It returns a *common.ValidationError for the first violation.
func ValidateInvoice(inv model.InvoiceRecord) error {
	if err := invoiceValidator.Struct(inv); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return common.NewValidationError(configPath(fe.Namespace()), describeTag(fe.Tag(), fe.Param()))
		}
		return common.NewValidationError("invoice", err.Error())
	}

	if strings.TrimSpace(inv.ID) == "" {
		return common.NewValidationError("id", "is required")
	}
	if strings.TrimSpace(inv.VendorName) == "" {
		return common.NewValidationError("vendor_name", "is required")
	}
	if inv.Amount.IsNegative() {
		return common.NewValidationError("amount", "must not be negative")
	}
	for i, li := range inv.LineItems {
		if li.Amount.IsNegative() {
			return common.NewValidationError(fmt.Sprintf("line_items[%d].amount", i), "must not be negative")
		}
	}
	return nil
}

// describeTag returns a human-readable reason for a failed validation tag.
func describeTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", param)
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", param)
	case "gt":
		return fmt.Sprintf("must be greater than %s", param)
	case "lt":
		return fmt.Sprintf("must be less than %s", param)
	case "iso4217":
		return "must be an ISO 4217 currency code"
	default:
		return "is invalid"
	}
}
