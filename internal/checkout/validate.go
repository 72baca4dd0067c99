package checkout

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Submission holds the posted checkout values by field key
type Submission map[string]string

// Empty reports whether key is missing or blank. "0" counts as blank,
// matching how the storefront posts unchecked values.
func (s Submission) Empty(key string) bool {
	v := s[key]
	return v == "" || v == "0"
}

// Truthy is the inverse of Empty
func (s Submission) Truthy(key string) bool {
	return !s.Empty(key)
}

// ValidationError is one user-visible checkout problem
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the error returned when a checkout is rejected
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Message
	}
	return "checkout validation failed: " + strings.Join(msgs, "; ")
}

// ForcedShippingFields must be filled when a separate shipping address is forced
var ForcedShippingFields = []string{
	"shipping_first_name",
	"shipping_last_name",
	"shipping_address_1",
	"shipping_city",
	"shipping_postcode",
	"shipping_country",
}

// RequiredMessage formats the missing-value notice for a field label
func RequiredMessage(label string) string {
	return fmt.Sprintf("%s is a required field.", label)
}

// shippingLabel turns shipping_address_1 into "Address 1"
func shippingLabel(key string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(key, "shipping_"), "_", " ")
	// Casers carry state, so one is built per call
	return cases.Title(language.Und).String(name)
}

// Validate checks a submitted checkout against the settings record and
// returns one error per missing value. A nil result means the checkout may
// proceed.
func Validate(s Settings, sub Submission) ValidationErrors {
	var errs ValidationErrors

	if s.ForceShipToDifferent {
		for _, key := range ForcedShippingFields {
			if Resolve(s, key).Disabled() {
				continue
			}
			if sub.Empty(key) {
				errs = append(errs, ValidationError{Field: key, Message: RequiredMessage(shippingLabel(key))})
			}
		}
	}

	if s.VATModeEnabled && sub.Truthy(FieldIsCompany) {
		for _, key := range CompanyFieldKeys {
			if sub.Empty(key) {
				errs = append(errs, ValidationError{Field: key, Message: RequiredMessage(s.LabelFor(key))})
			}
		}
	}

	return errs
}
