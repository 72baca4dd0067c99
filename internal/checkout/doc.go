// Package checkout decides what the storefront checkout form looks like.
//
// A Settings record is sanitized from admin input, each configured field is
// resolved to a canonical {status, required} pair (accepting both the
// structured and the legacy single-string format), the resolved state is
// overlaid on the platform's default fields together with the optional
// company/VAT block, and submitted checkouts are validated against the same
// record. Nothing in this package holds global state; every function takes
// the Settings it works with.
package checkout
