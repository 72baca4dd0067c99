package checkout

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_Empty(t *testing.T) {
	s := Sanitize(nil)
	assert.Equal(t, Defaults(), s)
}

func TestSanitize_CheckoutOrder(t *testing.T) {
	assert.Equal(t, OrderBillingFirst, Sanitize(map[string]any{"checkout_order": "garbage"}).CheckoutOrder)
	assert.Equal(t, OrderBillingFirst, Sanitize(map[string]any{"checkout_order": 7}).CheckoutOrder)
	assert.Equal(t, OrderShippingFirst, Sanitize(map[string]any{"checkout_order": "shipping_first"}).CheckoutOrder)
}

func TestSanitize_DropsUnknownKeys(t *testing.T) {
	s := Sanitize(map[string]any{
		"not_a_setting":    "x",
		"vat_mode_enabled": "1",
	})
	assert.True(t, s.VATModeEnabled)

	want := Defaults()
	want.VATModeEnabled = true
	assert.Equal(t, want, s)
}

func TestSanitize_Fields(t *testing.T) {
	s := Sanitize(map[string]any{
		"fields": map[string]any{
			"Billing_Phone!": map[string]any{"status": "disabled"},
			"billing_city":   map[string]any{"status": "hidden", "required": "1"},
			"billing_state":  map[string]any{"required": true},
			"billing_email":  "required",
			"???":            map[string]any{"status": "disabled"},
		},
	})

	require.Len(t, s.Fields, 3)
	assert.Equal(t, Structured(StatusDisabled, false), s.Fields["billing_phone"])
	assert.Equal(t, Structured(StatusEnabled, true), s.Fields["billing_city"])
	assert.Equal(t, Structured(StatusEnabled, true), s.Fields["billing_state"])
	_, ok := s.Fields["billing_email"]
	assert.False(t, ok, "non-object entries are dropped")
}

func TestSanitize_Text(t *testing.T) {
	s := Sanitize(map[string]any{
		"billing_title":        "  <b>Invoice</b>   details\n",
		"company_name_label":   "Tom & Jerry <script>alert(1)</script>",
		"company_info_message": `<p>Invoice is <strong>attached</strong></p><script>alert(1)</script>`,
	})

	assert.Equal(t, "Invoice details", s.BillingTitle)
	assert.Equal(t, "Tom & Jerry", s.CompanyNameLabel)
	assert.Contains(t, s.CompanyInfoMessage, "<strong>attached</strong>")
	assert.NotContains(t, s.CompanyInfoMessage, "<script")
}

func TestSanitizeText_EncodedMarkup(t *testing.T) {
	tests := []struct{ in, want string }{
		{"&lt;script&gt;alert(1)&lt;/script&gt;Company", "Company"},
		{"&lt;img src=x onerror=alert(1)&gt;VAT", "VAT"},
		{"&amp;lt;script&amp;gt;alert(1)&amp;lt;/script&amp;gt;X", "X"},
		{"&lt;<b></b>img src=x onerror=alert(1)>Name", "Name"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"a < b", "a < b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeText(tt.in), tt.in)
	}
}

func TestSanitize_EncodedMarkupInLabels(t *testing.T) {
	s := Sanitize(map[string]any{
		"company_vat_label":  "&lt;img src=x onerror=alert(1)&gt;VAT",
		"vat_checkbox_label": "&lt;script&gt;alert(1)&lt;/script&gt;Buying as a company",
	})

	assert.Equal(t, "VAT", s.CompanyVATLabel)
	assert.Equal(t, "Buying as a company", s.VATCheckboxLabel)
}

func TestSanitize_CollidingFieldKeys(t *testing.T) {
	raw := map[string]any{
		"fields": map[string]any{
			"Billing_Phone": map[string]any{"status": "disabled"},
			"billing_phone": map[string]any{"status": "enabled", "required": "1"},
		},
	}

	for range 50 {
		s := Sanitize(raw)
		require.Len(t, s.Fields, 1)
		assert.Equal(t, Structured(StatusEnabled, true), s.Fields["billing_phone"])
	}
}

func TestSanitize_EmptyLabelKept(t *testing.T) {
	s := Sanitize(map[string]any{"company_info_message": ""})
	assert.Empty(t, s.CompanyInfoMessage)

	_, shown := InfoMessage(s)
	assert.False(t, shown)
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "billing_phone", SanitizeKey("Billing_Phone"))
	assert.Equal(t, "shipping-x1", SanitizeKey("shipping-x1 <>"))
	assert.Equal(t, "", SanitizeKey("!!"))
}

func TestToBool(t *testing.T) {
	for _, v := range []any{true, "1", "yes", "on", "true", 1.0, 3, []any{1}} {
		assert.True(t, toBool(v), "%#v", v)
	}
	for _, v := range []any{nil, false, "", "0", "false", "no", "off", 0.0, 0, []any{}} {
		assert.False(t, toBool(v), "%#v", v)
	}
}

func TestDecodeForm(t *testing.T) {
	form := url.Values{
		"awcf_settings[force_ship_to_different]":         {"1"},
		"awcf_settings[checkout_order]":                  {"shipping_first"},
		"awcf_settings[fields][billing_phone][status]":   {"disabled"},
		"awcf_settings[fields][billing_phone][required]": {"0"},
		"awcf_settings[fields][billing_city][required]":  {"1"},
		"option_page":          {"awcf_settings_group"},
		"awcf_settings[broken": {"x"},
	}

	raw := DecodeForm(form, OptionName)
	assert.Equal(t, "1", raw["force_ship_to_different"])
	assert.NotContains(t, raw, "option_page")

	s := Sanitize(raw)
	assert.True(t, s.ForceShipToDifferent)
	assert.Equal(t, OrderShippingFirst, s.CheckoutOrder)
	assert.Equal(t, Structured(StatusDisabled, false), s.Fields["billing_phone"])
	assert.Equal(t, Structured(StatusEnabled, true), s.Fields["billing_city"])
}

func TestDecodeForm_NoPrefix(t *testing.T) {
	raw := DecodeForm(url.Values{
		"vat_mode_enabled":              {"1"},
		"fields[billing_phone][status]": {"disabled"},
	}, "")

	s := Sanitize(raw)
	assert.True(t, s.VATModeEnabled)
	assert.True(t, Resolve(s, "billing_phone").Disabled())
}
