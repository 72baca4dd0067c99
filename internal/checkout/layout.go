package checkout

// SectionTitle returns the display title of a section. The configured title
// replaces the platform default only when it is set and differs from it.
func SectionTitle(s Settings, section Section, platformDefault string) string {
	var configured string
	switch section {
	case SectionBilling:
		configured = s.BillingTitle
	case SectionShipping:
		configured = s.ShippingTitle
	}

	if configured == "" || configured == platformDefault {
		return platformDefault
	}
	return configured
}

// SectionOrder returns the render order of the two address sections
func SectionOrder(s Settings) []Section {
	if s.CheckoutOrder == OrderShippingFirst {
		return []Section{SectionShipping, SectionBilling}
	}
	return []Section{SectionBilling, SectionShipping}
}

// ShipToDifferentChecked is the initial state of the "ship to a different
// address" toggle
func ShipToDifferentChecked(s Settings, checked bool) bool {
	if s.ForceShipToDifferent {
		return true
	}
	return checked
}

// InfoMessage returns the company info message shown under the billing form
func InfoMessage(s Settings) (string, bool) {
	if !s.VATModeEnabled || s.CompanyInfoMessage == "" {
		return "", false
	}
	return s.CompanyInfoMessage, true
}

// ClientParams are the flags the storefront script reads
type ClientParams struct {
	ForceShipToDifferent bool   `json:"force_ship_to_different"`
	VATModeEnabled       bool   `json:"vat_mode_enabled"`
	CompanyCheckbox      string `json:"company_checkbox"`
	CompanyFieldClass    string `json:"company_field_class"`
	InfoMessageClass     string `json:"info_message_class"`
}

// Params builds the client flags for s
func Params(s Settings) ClientParams {
	return ClientParams{
		ForceShipToDifferent: s.ForceShipToDifferent,
		VATModeEnabled:       s.VATModeEnabled,
		CompanyCheckbox:      FieldIsCompany,
		CompanyFieldClass:    ClassCompanyField,
		InfoMessageClass:     ClassCompanyInfo,
	}
}
