package checkout

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
)

// Order meta keys
const (
	MetaIsCompany = "_" + FieldIsCompany
	metaYes       = "yes"
	metaNo        = "no"
)

// MetaKey returns the order meta key a checkout field is stored under
func MetaKey(fieldKey string) string {
	return "_" + fieldKey
}

// OrderMeta is the metadata accessor of a single order
type OrderMeta interface {
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// SaveCompanyMeta stores the VAT block answers on the order. Nothing is
// written while VAT mode is off.
func SaveCompanyMeta(ctx context.Context, order OrderMeta, s Settings, sub Submission) error {
	if !s.VATModeEnabled {
		return nil
	}

	isCompany := sub.Truthy(FieldIsCompany)
	flag := metaNo
	if isCompany {
		flag = metaYes
	}
	if err := order.SetMeta(ctx, MetaIsCompany, flag); err != nil {
		return fmt.Errorf("failed to save %s: %w", MetaIsCompany, err)
	}
	if !isCompany {
		return nil
	}

	for _, key := range CompanyFieldKeys {
		v, ok := sub[key]
		if !ok {
			continue
		}
		if err := order.SetMeta(ctx, MetaKey(key), SanitizeText(v)); err != nil {
			return fmt.Errorf("failed to save %s: %w", MetaKey(key), err)
		}
	}
	return nil
}

// DetailLine is one labelled company value
type DetailLine struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// CompanyDetails is the company information recorded on an order
type CompanyDetails struct {
	IsCompany bool         `json:"is_company"`
	Lines     []DetailLine `json:"lines"`
}

// CompanyInfoHeading titles the company block in e-mails and order views
const CompanyInfoHeading = "Company Information"

// LoadCompanyDetails reads the company block back from an order. Empty
// values are left out.
func LoadCompanyDetails(ctx context.Context, order OrderMeta, s Settings) (CompanyDetails, error) {
	flag, _, err := order.GetMeta(ctx, MetaIsCompany)
	if err != nil {
		return CompanyDetails{}, fmt.Errorf("failed to read %s: %w", MetaIsCompany, err)
	}
	if flag != metaYes {
		return CompanyDetails{}, nil
	}

	details := CompanyDetails{IsCompany: true}
	for _, key := range CompanyFieldKeys {
		v, _, err := order.GetMeta(ctx, MetaKey(key))
		if err != nil {
			return CompanyDetails{}, fmt.Errorf("failed to read %s: %w", MetaKey(key), err)
		}
		if v == "" {
			continue
		}
		details.Lines = append(details.Lines, DetailLine{Field: key, Label: s.LabelFor(key), Value: v})
	}
	return details, nil
}

// PlainText renders the block for plain-text e-mails
func (d CompanyDetails) PlainText() string {
	if !d.IsCompany {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n" + CompanyInfoHeading + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	for _, l := range d.Lines {
		fmt.Fprintf(&b, "%s: %s\n", l.Label, l.Value)
	}
	b.WriteString("\n")
	return b.String()
}

var companyHTML = template.Must(template.New("company").Parse(`<div class="awcf-company-details">
<h3>{{.Heading}}</h3>
<table>
<tbody>
{{- range .Lines}}
<tr><th scope="row">{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
</tbody>
</table>
</div>
`))

// HTML renders the block for HTML e-mails and the order screen
func (d CompanyDetails) HTML() (string, error) {
	if !d.IsCompany {
		return "", nil
	}

	var buf bytes.Buffer
	err := companyHTML.Execute(&buf, struct {
		Heading string
		Lines   []DetailLine
	}{CompanyInfoHeading, d.Lines})
	if err != nil {
		return "", fmt.Errorf("failed to render company details: %w", err)
	}
	return buf.String(), nil
}
