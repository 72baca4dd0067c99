package checkout

import (
	"fmt"
	"html"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	plainPolicy = bluemonday.StrictPolicy()
	richPolicy  = bluemonday.UGCPolicy()
)

// maxUnescapeRounds bounds the decode/strip loop of SanitizeText
const maxUnescapeRounds = 8

// SanitizeText strips all markup, including markup hidden behind HTML
// entities, and collapses whitespace. The result is plain text.
func SanitizeText(s string) string {
	for range maxUnescapeRounds {
		next := html.UnescapeString(plainPolicy.Sanitize(html.UnescapeString(s)))
		if next == s {
			return strings.Join(strings.Fields(next), " ")
		}
		s = next
	}
	// Still decoding into markup; keep the escaped form
	return strings.Join(strings.Fields(plainPolicy.Sanitize(s)), " ")
}

// SanitizeRichText keeps a restricted safe HTML subset
func SanitizeRichText(s string) string {
	return strings.TrimSpace(richPolicy.Sanitize(s))
}

// SanitizeKey normalizes a field key to lowercase [a-z0-9_-]
func SanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Sanitize coerces arbitrary input into a settings record. Unknown keys are
// dropped and anything missing or malformed takes its default value; input
// is never rejected.
func Sanitize(raw map[string]any) Settings {
	d := Defaults()
	out := Settings{
		ForceShipToDifferent: boolField(raw, "force_ship_to_different"),
		BillingTitle:         textField(raw, "billing_title", d.BillingTitle),
		ShippingTitle:        textField(raw, "shipping_title", d.ShippingTitle),
		CheckoutOrder:        OrderBillingFirst,
		Fields:               sanitizeFields(raw["fields"]),
		VATModeEnabled:       boolField(raw, "vat_mode_enabled"),
		VATCheckboxLabel:     textField(raw, "vat_checkbox_label", d.VATCheckboxLabel),
		CompanyNameLabel:     textField(raw, "company_name_label", d.CompanyNameLabel),
		CompanyCodeLabel:     textField(raw, "company_code_label", d.CompanyCodeLabel),
		CompanyVATLabel:      textField(raw, "company_vat_label", d.CompanyVATLabel),
		CompanyAddressLabel:  textField(raw, "company_address_label", d.CompanyAddressLabel),
		CompanyInfoMessage:   d.CompanyInfoMessage,
	}

	if v, ok := raw["checkout_order"].(string); ok && CheckoutOrder(v).Valid() {
		out.CheckoutOrder = CheckoutOrder(v)
	}
	if v, ok := scalarString(raw["company_info_message"]); ok {
		out.CompanyInfoMessage = SanitizeRichText(v)
	}

	return out
}

func sanitizeFields(v any) map[string]FieldConfig {
	out := map[string]FieldConfig{}
	entries, ok := v.(map[string]any)
	if !ok {
		return out
	}

	// Sorted so colliding keys resolve the same way every time
	rawKeys := slices.Sorted(maps.Keys(entries))
	for _, rawKey := range rawKeys {
		entry := entries[rawKey]
		key := SanitizeKey(rawKey)
		if key == "" {
			continue
		}
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		status := StatusEnabled
		if s, ok := fields["status"].(string); ok && (s == string(StatusEnabled) || s == string(StatusDisabled)) {
			status = FieldStatus(s)
		}
		out[key] = Structured(status, toBool(fields["required"]))
	}
	return out
}

func boolField(raw map[string]any, key string) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	return toBool(v)
}

func textField(raw map[string]any, key, def string) string {
	v, ok := scalarString(raw[key])
	if !ok {
		return def
	}
	return SanitizeText(v)
}

// scalarString renders strings and numbers; anything else is not text
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64, float32, int, int64, int32, uint, uint64, uint32, bool:
		return fmt.Sprint(t), true
	}
	return "", false
}

// toBool follows loose truthiness: empty values, "0", "false", "no" and
// "off" are false and any other string is true.
func toBool(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "no", "off":
			return false
		}
		return true
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case uint:
		return t != 0
	case uint64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// DecodeForm converts bracketed form names such as
// awcf_settings[fields][billing_phone][status] into the nested map that
// Sanitize consumes. With a non-empty prefix, only names under that prefix
// are kept and the prefix level is removed.
func DecodeForm(values url.Values, prefix string) map[string]any {
	out := map[string]any{}
	for name, vals := range values {
		if len(vals) == 0 {
			continue
		}
		path, ok := formPath(name)
		if !ok {
			continue
		}
		if prefix != "" {
			if path[0] != prefix || len(path) < 2 {
				continue
			}
			path = path[1:]
		}
		setPath(out, path, vals[len(vals)-1])
	}
	return out
}

func formPath(name string) ([]string, bool) {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		if name == "" {
			return nil, false
		}
		return []string{name}, true
	}
	if open == 0 {
		return nil, false
	}

	path := []string{name[:open]}
	rest := name[open:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, false
		}
		seg := rest[1:end]
		if seg == "" {
			return nil, false
		}
		path = append(path, seg)
		rest = rest[end+1:]
	}
	return path, true
}

func setPath(m map[string]any, path []string, value string) {
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	last := path[len(path)-1]
	if _, isMap := m[last].(map[string]any); isMap {
		return
	}
	m[last] = value
}
