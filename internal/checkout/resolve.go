package checkout

// Resolution is the canonical state of one checkout field.
// A nil Required means the platform default required flag is kept.
type Resolution struct {
	Status   FieldStatus `json:"status"`
	Required *bool       `json:"required"`
}

// Disabled reports whether the field is removed from the form
func (r Resolution) Disabled() bool {
	return r.Status == StatusDisabled
}

// Resolve computes the final state of fieldKey from the settings record.
// Structured entries are returned as stored, legacy strings are mapped to
// their structured equivalent and unknown keys resolve to enabled with no
// required override.
func Resolve(s Settings, fieldKey string) Resolution {
	cfg, ok := s.Fields[fieldKey]
	if !ok {
		return Resolution{Status: StatusEnabled}
	}

	status, required, ok := cfg.canonical()
	if !ok {
		return Resolution{Status: StatusEnabled}
	}
	return Resolution{Status: status, Required: &required}
}

// ResolveForDisplay is Resolve for the admin field table, where a field
// without configuration is shown as enabled and optional.
func ResolveForDisplay(s Settings, fieldKey string) StructuredConfig {
	r := Resolve(s, fieldKey)
	out := StructuredConfig{Status: r.Status}
	if r.Required != nil {
		out.Required = *r.Required
	}
	return out
}
