package checkout

import (
	"sort"
	"strings"
)

// Section is a checkout address section
type Section string

const (
	SectionBilling  Section = "billing"
	SectionShipping Section = "shipping"
)

// VAT block field keys
const (
	FieldIsCompany      = "billing_is_company"
	FieldCompanyName    = "billing_company_name"
	FieldCompanyCode    = "billing_company_code"
	FieldCompanyVAT     = "billing_company_vat"
	FieldCompanyAddress = "billing_company_address"
)

// CSS marker classes read by the storefront script
const (
	ClassCompanyCheckbox = "awcf-company-checkbox"
	ClassCompanyField    = "awcf-company-field"
	ClassCompanyInfo     = "awcf-company-info-message"
	classRowWide         = "form-row-wide"
)

// Field is one platform checkout field definition
type Field struct {
	Key         string   `json:"key"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Placeholder string   `json:"placeholder,omitempty"`
	Required    bool     `json:"required"`
	Class       []string `json:"class,omitempty"`
	Clear       bool     `json:"clear,omitempty"`
	Priority    int      `json:"priority"`
}

func (f Field) clone() Field {
	if f.Class != nil {
		f.Class = append([]string(nil), f.Class...)
	}
	return f
}

// FieldSet holds the checkout fields of every section, keyed by field key
type FieldSet map[Section]map[string]Field

// Clone returns a deep copy of fs
func (fs FieldSet) Clone() FieldSet {
	out := make(FieldSet, len(fs))
	for section, fields := range fs {
		m := make(map[string]Field, len(fields))
		for k, f := range fields {
			m[k] = f.clone()
		}
		out[section] = m
	}
	return out
}

// Get looks up a field by key in its section
func (fs FieldSet) Get(key string) (Field, bool) {
	section, ok := SectionOf(key)
	if !ok {
		return Field{}, false
	}
	f, ok := fs[section][key]
	return f, ok
}

// Sorted returns the fields of a section ordered by priority, then key
func (fs FieldSet) Sorted(section Section) []Field {
	fields := make([]Field, 0, len(fs[section]))
	for k, f := range fs[section] {
		if f.Key == "" {
			f.Key = k
		}
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Priority != fields[j].Priority {
			return fields[i].Priority < fields[j].Priority
		}
		return fields[i].Key < fields[j].Key
	})
	return fields
}

// SectionOf derives the section from the field key prefix
func SectionOf(key string) (Section, bool) {
	switch {
	case strings.HasPrefix(key, "billing_"):
		return SectionBilling, true
	case strings.HasPrefix(key, "shipping_"):
		return SectionShipping, true
	}
	return "", false
}

type fieldDef struct {
	suffix   string
	label    string
	typ      string
	required bool
	priority int
}

var addressFields = []fieldDef{
	{"first_name", "First name", "text", true, 10},
	{"last_name", "Last name", "text", true, 20},
	{"company", "Company name", "text", false, 30},
	{"country", "Country / Region", "country", true, 40},
	{"address_1", "Street address", "text", true, 50},
	{"address_2", "Apartment, suite, unit, etc.", "text", false, 60},
	{"city", "Town / City", "text", true, 70},
	{"state", "State / County", "state", true, 80},
	{"postcode", "Postcode / ZIP", "text", true, 90},
	{"phone", "Phone", "tel", true, 100},
}

// DefaultFieldSet returns the platform's default checkout fields
func DefaultFieldSet() FieldSet {
	fs := FieldSet{
		SectionBilling:  map[string]Field{},
		SectionShipping: map[string]Field{},
	}

	for _, d := range addressFields {
		for _, section := range []Section{SectionBilling, SectionShipping} {
			key := string(section) + "_" + d.suffix
			required := d.required
			// Shipping phone is optional on the platform
			if section == SectionShipping && d.suffix == "phone" {
				required = false
			}
			fs[section][key] = Field{
				Key:      key,
				Type:     d.typ,
				Label:    d.label,
				Required: required,
				Priority: d.priority,
			}
		}
	}

	fs[SectionBilling]["billing_email"] = Field{
		Key:      "billing_email",
		Type:     "email",
		Label:    "Email address",
		Required: true,
		Priority: 110,
	}

	return fs
}

// DefaultFieldKeys lists the configurable keys of a section in display order
func DefaultFieldKeys(section Section) []string {
	fields := DefaultFieldSet().Sorted(section)
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	return keys
}
