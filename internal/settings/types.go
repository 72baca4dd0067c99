package settings

import (
	"time"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/checkout"
)

// Revision is one saved copy of the settings record
type Revision struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Settings checkout.Settings `json:"settings"`
	Source   string            `json:"source"`
	SavedAt  time.Time         `json:"saved_at"`
}

// SourceReset is recorded for resets saved without an explicit source
const SourceReset = "reset"
