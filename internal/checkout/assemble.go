package checkout

type companyField struct {
	key      string
	typ      string
	class    string
	priority int
}

// vatBlock is the injected company field group, in priority order
var vatBlock = []companyField{
	{FieldIsCompany, "checkbox", ClassCompanyCheckbox, 120},
	{FieldCompanyName, "text", ClassCompanyField, 121},
	{FieldCompanyCode, "text", ClassCompanyField, 122},
	{FieldCompanyVAT, "text", ClassCompanyField, 123},
	{FieldCompanyAddress, "text", ClassCompanyField, 124},
}

// CompanyFieldKeys are the four company detail keys of the VAT block
var CompanyFieldKeys = []string{FieldCompanyName, FieldCompanyCode, FieldCompanyVAT, FieldCompanyAddress}

// Assemble overlays the settings record onto the platform fields. The input
// is not modified. Running Assemble on its own output with the same settings
// yields the same field set.
func Assemble(fields FieldSet, s Settings) FieldSet {
	out := fields.Clone()

	for key := range s.Fields {
		section, ok := SectionOf(key)
		if !ok {
			continue
		}
		field, ok := out[section][key]
		if !ok {
			continue
		}

		r := Resolve(s, key)
		if r.Disabled() {
			delete(out[section], key)
			continue
		}
		if r.Required != nil {
			field.Required = *r.Required
			out[section][key] = field
		}
	}

	if s.VATModeEnabled {
		if out[SectionBilling] == nil {
			out[SectionBilling] = map[string]Field{}
		}
		for _, cf := range vatBlock {
			out[SectionBilling][cf.key] = Field{
				Key:      cf.key,
				Type:     cf.typ,
				Label:    s.LabelFor(cf.key),
				Required: false,
				Class:    []string{classRowWide, cf.class},
				Clear:    true,
				Priority: cf.priority,
			}
		}
	}

	return out
}
