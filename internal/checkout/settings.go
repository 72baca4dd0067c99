package checkout

import (
	"encoding/json"
	"fmt"
)

// OptionName is the key the settings record is stored under
const OptionName = "awcf_settings"

// CheckoutOrder controls which address section is rendered first
type CheckoutOrder string

const (
	OrderBillingFirst  CheckoutOrder = "billing_first"
	OrderShippingFirst CheckoutOrder = "shipping_first"
)

// Valid reports whether o is one of the known orders
func (o CheckoutOrder) Valid() bool {
	return o == OrderBillingFirst || o == OrderShippingFirst
}

// FieldStatus is the visibility of a checkout field
type FieldStatus string

const (
	StatusEnabled  FieldStatus = "enabled"
	StatusDisabled FieldStatus = "disabled"
)

// legacyRequired is the third value of the single-string field format
const legacyRequired = "required"

// FieldConfig is the per-field configuration. Two shapes exist on disk:
// the structured {status, required} object and the legacy bare string
// (enabled, disabled or required). Exactly one of the two is set.
type FieldConfig struct {
	structured *StructuredConfig
	legacy     string
	isLegacy   bool
}

// StructuredConfig is the current field configuration shape
type StructuredConfig struct {
	Status   FieldStatus `json:"status"`
	Required bool        `json:"required"`
}

// Structured builds a current-format field config
func Structured(status FieldStatus, required bool) FieldConfig {
	return FieldConfig{structured: &StructuredConfig{Status: status, Required: required}}
}

// Legacy builds a legacy single-string field config
func Legacy(state string) FieldConfig {
	return FieldConfig{legacy: state, isLegacy: true}
}

// IsLegacy reports whether the config was stored in the legacy format
func (c FieldConfig) IsLegacy() bool {
	return c.isLegacy
}

// IsZero reports whether c carries no configuration at all
func (c FieldConfig) IsZero() bool {
	return c.structured == nil && !c.isLegacy
}

// canonical maps either shape to a {status, required} pair. ok is false
// for the zero config.
func (c FieldConfig) canonical() (status FieldStatus, required bool, ok bool) {
	switch {
	case c.structured != nil:
		return c.structured.Status, c.structured.Required, true
	case c.isLegacy:
		switch c.legacy {
		case string(StatusDisabled):
			return StatusDisabled, false, true
		case legacyRequired:
			return StatusEnabled, true, true
		default:
			return StatusEnabled, false, true
		}
	}
	return "", false, false
}

// MarshalJSON writes the config back in the shape it was read in
func (c FieldConfig) MarshalJSON() ([]byte, error) {
	if c.isLegacy {
		return json.Marshal(c.legacy)
	}
	if c.structured == nil {
		return []byte("null"), nil
	}
	return json.Marshal(c.structured)
}

// UnmarshalJSON accepts either an object or a bare string
func (c *FieldConfig) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = FieldConfig{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Legacy(s)
		return nil
	}

	var sc StructuredConfig
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("field config must be a string or an object: %w", err)
	}
	if sc.Status == "" {
		sc.Status = StatusEnabled
	}
	*c = FieldConfig{structured: &sc}
	return nil
}

// Settings is the process-wide checkout configuration record
type Settings struct {
	// Checkout layout
	ForceShipToDifferent bool          `json:"force_ship_to_different"`
	BillingTitle         string        `json:"billing_title"`
	ShippingTitle        string        `json:"shipping_title"`
	CheckoutOrder        CheckoutOrder `json:"checkout_order"`

	// Field controls, keyed by checkout field key
	Fields map[string]FieldConfig `json:"fields"`

	// VAT compliance
	VATModeEnabled      bool   `json:"vat_mode_enabled"`
	VATCheckboxLabel    string `json:"vat_checkbox_label"`
	CompanyNameLabel    string `json:"company_name_label"`
	CompanyCodeLabel    string `json:"company_code_label"`
	CompanyVATLabel     string `json:"company_vat_label"`
	CompanyAddressLabel string `json:"company_address_label"`
	CompanyInfoMessage  string `json:"company_info_message"`
}

// Platform default section titles
const (
	DefaultBillingTitle  = "Billing details"
	DefaultShippingTitle = "Ship to a different address?"
)

// Defaults returns the settings record used before anything is saved
func Defaults() Settings {
	return Settings{
		ForceShipToDifferent: false,
		BillingTitle:         DefaultBillingTitle,
		ShippingTitle:        DefaultShippingTitle,
		CheckoutOrder:        OrderBillingFirst,
		Fields:               map[string]FieldConfig{},
		VATModeEnabled:       false,
		VATCheckboxLabel:     "Perka įmonė? (nebūtinas)",
		CompanyNameLabel:     "Company Name",
		CompanyCodeLabel:     "Company Code",
		CompanyVATLabel:      "Company VAT Code",
		CompanyAddressLabel:  "Company Address",
		CompanyInfoMessage:   "PVM Sąskaita faktūra sugeneruojama automatiškai po užsakymo ir PDF formatu prisegama prie užsakymo el. laiško.",
	}
}

// Clone returns a copy that shares no maps with s
func (s Settings) Clone() Settings {
	out := s
	out.Fields = make(map[string]FieldConfig, len(s.Fields))
	for k, v := range s.Fields {
		if v.structured != nil {
			sc := *v.structured
			v.structured = &sc
		}
		out.Fields[k] = v
	}
	return out
}

// LabelFor returns the configured label of a VAT block field, falling back
// to the default label when the stored one is empty. Unknown keys return "".
func (s Settings) LabelFor(fieldKey string) string {
	d := Defaults()
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	switch fieldKey {
	case FieldIsCompany:
		return pick(s.VATCheckboxLabel, d.VATCheckboxLabel)
	case FieldCompanyName:
		return pick(s.CompanyNameLabel, d.CompanyNameLabel)
	case FieldCompanyCode:
		return pick(s.CompanyCodeLabel, d.CompanyCodeLabel)
	case FieldCompanyVAT:
		return pick(s.CompanyVATLabel, d.CompanyVATLabel)
	case FieldCompanyAddress:
		return pick(s.CompanyAddressLabel, d.CompanyAddressLabel)
	}
	return ""
}
