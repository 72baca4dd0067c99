package checkout

import (
	"context"
)

// SectionView is one rendered address section
type SectionView struct {
	Section Section `json:"section"`
	Title   string  `json:"title"`
	Fields  []Field `json:"fields"`
}

// View is everything the storefront needs to render the checkout form
type View struct {
	Sections        []SectionView `json:"sections"`
	ShipToDifferent bool          `json:"ship_to_different"`
	InfoMessage     string        `json:"info_message,omitempty"`
	Params          ClientParams  `json:"params"`
}

// Pipeline runs the checkout steps in order against one settings record:
// resolve and assemble fields, lay out sections, then validate and store
// order metadata on submission.
type Pipeline struct {
	Settings Settings
}

// NewPipeline binds a pipeline to a settings record
func NewPipeline(s Settings) *Pipeline {
	return &Pipeline{Settings: s}
}

// Prepare assembles the checkout form from the platform fields
func (p *Pipeline) Prepare(fields FieldSet) View {
	assembled := Assemble(fields, p.Settings)

	defaults := map[Section]string{
		SectionBilling:  DefaultBillingTitle,
		SectionShipping: DefaultShippingTitle,
	}

	view := View{
		ShipToDifferent: ShipToDifferentChecked(p.Settings, false),
		Params:          Params(p.Settings),
	}
	for _, section := range SectionOrder(p.Settings) {
		view.Sections = append(view.Sections, SectionView{
			Section: section,
			Title:   SectionTitle(p.Settings, section, defaults[section]),
			Fields:  assembled.Sorted(section),
		})
	}
	if msg, ok := InfoMessage(p.Settings); ok {
		view.InfoMessage = msg
	}
	return view
}

// Validate checks a submission without side effects
func (p *Pipeline) Validate(sub Submission) ValidationErrors {
	return Validate(p.Settings, sub)
}

// Submit validates the submission and, when it passes, stores the company
// metadata on the order. A rejected submission writes nothing and returns
// ValidationErrors.
func (p *Pipeline) Submit(ctx context.Context, order OrderMeta, sub Submission) error {
	if errs := p.Validate(sub); len(errs) > 0 {
		return errs
	}
	return SaveCompanyMeta(ctx, order, p.Settings, sub)
}
