package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeCompany() Submission {
	return Submission{
		FieldIsCompany:      "1",
		FieldCompanyName:    "UAB Pavyzdys",
		FieldCompanyCode:    "123456789",
		FieldCompanyVAT:     "LT123456789",
		FieldCompanyAddress: "Gedimino pr. 1, Vilnius",
	}
}

func TestValidate_VATModeOff(t *testing.T) {
	s := Defaults()
	assert.Empty(t, Validate(s, Submission{FieldIsCompany: "1"}))
	assert.Empty(t, Validate(s, nil))
}

func TestValidate_CompanyFlagAbsent(t *testing.T) {
	s := Defaults()
	s.VATModeEnabled = true

	assert.Empty(t, Validate(s, Submission{}))
	assert.Empty(t, Validate(s, Submission{FieldIsCompany: "0"}))
}

func TestValidate_MissingVATCode(t *testing.T) {
	s := Defaults()
	s.VATModeEnabled = true
	s.CompanyVATLabel = "PVM mokėtojo kodas"

	sub := completeCompany()
	sub[FieldCompanyVAT] = ""

	errs := Validate(s, sub)
	require.Len(t, errs, 1)
	assert.Equal(t, FieldCompanyVAT, errs[0].Field)
	assert.Equal(t, "PVM mokėtojo kodas is a required field.", errs[0].Message)
}

func TestValidate_AllCompanyFieldsMissing(t *testing.T) {
	s := Defaults()
	s.VATModeEnabled = true
	s.CompanyCodeLabel = ""

	errs := Validate(s, Submission{FieldIsCompany: "1"})
	require.Len(t, errs, 4)
	assert.Equal(t, "Company Name is a required field.", errs[0].Message)
	assert.Equal(t, "Company Code is a required field.", errs[1].Message, "empty labels fall back to defaults")
}

func TestValidate_CompleteCompany(t *testing.T) {
	s := Defaults()
	s.VATModeEnabled = true
	assert.Empty(t, Validate(s, completeCompany()))
}

func TestValidate_ForcedShipping(t *testing.T) {
	s := Defaults()
	s.ForceShipToDifferent = true
	s.Fields = map[string]FieldConfig{
		"shipping_postcode": Structured(StatusDisabled, false),
		"shipping_country":  Legacy("disabled"),
	}

	errs := Validate(s, Submission{
		"shipping_first_name": "Jonas",
		"shipping_city":       "Kaunas",
	})

	require.Len(t, errs, 2)
	assert.Equal(t, ValidationError{Field: "shipping_last_name", Message: "Last Name is a required field."}, errs[0])
	assert.Equal(t, ValidationError{Field: "shipping_address_1", Message: "Address 1 is a required field."}, errs[1])
}

func TestValidate_ForcedShippingOff(t *testing.T) {
	assert.Empty(t, Validate(Defaults(), Submission{}))
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "A is a required field."},
		{Field: "b", Message: "B is a required field."},
	}
	assert.Equal(t, "checkout validation failed: A is a required field.; B is a required field.", errs.Error())
}
