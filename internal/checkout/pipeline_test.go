package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_PrepareDefaults(t *testing.T) {
	view := NewPipeline(Defaults()).Prepare(DefaultFieldSet())

	require.Len(t, view.Sections, 2)
	assert.Equal(t, SectionBilling, view.Sections[0].Section)
	assert.Equal(t, DefaultBillingTitle, view.Sections[0].Title)
	assert.Equal(t, DefaultShippingTitle, view.Sections[1].Title)
	assert.Len(t, view.Sections[0].Fields, 11)
	assert.False(t, view.ShipToDifferent)
	assert.Empty(t, view.InfoMessage)
}

func TestPipeline_PrepareConfigured(t *testing.T) {
	s := Defaults()
	s.CheckoutOrder = OrderShippingFirst
	s.ShippingTitle = "Delivery address"
	s.ForceShipToDifferent = true
	s.VATModeEnabled = true
	s.Fields = map[string]FieldConfig{"shipping_phone": Legacy("disabled")}

	view := NewPipeline(s).Prepare(DefaultFieldSet())

	require.Len(t, view.Sections, 2)
	assert.Equal(t, SectionShipping, view.Sections[0].Section)
	assert.Equal(t, "Delivery address", view.Sections[0].Title)
	assert.Len(t, view.Sections[0].Fields, 9)
	assert.Len(t, view.Sections[1].Fields, 16)
	assert.True(t, view.ShipToDifferent)
	assert.Equal(t, s.CompanyInfoMessage, view.InfoMessage)
	assert.True(t, view.Params.VATModeEnabled)
	assert.True(t, view.Params.ForceShipToDifferent)
}

func TestSectionTitle(t *testing.T) {
	s := Defaults()
	assert.Equal(t, "Billing details", SectionTitle(s, SectionBilling, "Billing details"))

	s.BillingTitle = ""
	assert.Equal(t, "Billing details", SectionTitle(s, SectionBilling, "Billing details"))

	s.BillingTitle = "Invoice details"
	assert.Equal(t, "Invoice details", SectionTitle(s, SectionBilling, "Billing details"))
	assert.Equal(t, "Other", SectionTitle(s, Section("other"), "Other"))
}

func TestShipToDifferentChecked(t *testing.T) {
	s := Defaults()
	assert.False(t, ShipToDifferentChecked(s, false))
	assert.True(t, ShipToDifferentChecked(s, true))

	s.ForceShipToDifferent = true
	assert.True(t, ShipToDifferentChecked(s, false))
}

func TestPipeline_SubmitRejectsWithoutWriting(t *testing.T) {
	s := Defaults()
	s.VATModeEnabled = true

	order := newMemOrder()
	err := NewPipeline(s).Submit(context.Background(), order, Submission{FieldIsCompany: "1"})

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 4)
	assert.Empty(t, order.meta)
}

func TestPipeline_SubmitStoresMeta(t *testing.T) {
	s := Defaults()
	s.VATModeEnabled = true

	order := newMemOrder()
	require.NoError(t, NewPipeline(s).Submit(context.Background(), order, completeCompany()))
	assert.Equal(t, "yes", order.meta[MetaIsCompany])
	assert.Equal(t, "UAB Pavyzdys", order.meta[MetaKey(FieldCompanyName)])
}
