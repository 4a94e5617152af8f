// Package validator checks extracted invoices for the fields a usable record needs.
package validator

import (
	"strings"

	"invoicex/internal/domain"
)

// requiredField names a field that must be non-empty for an invoice to be valid.
type requiredField struct {
	fieldPath string
	extract   func(*domain.InvoiceResponse) string
}

var requiredFields = []requiredField{
	{fieldPath: "vendor.name", extract: func(inv *domain.InvoiceResponse) string { return inv.Vendor.Name }},
	{fieldPath: "client.name", extract: func(inv *domain.InvoiceResponse) string { return inv.Client.Name }},
	{fieldPath: "invoice_number", extract: func(inv *domain.InvoiceResponse) string { return inv.InvoiceNumber }},
}

// Report is the outcome of Check. Only Missing affects Valid.
type Report struct {
	Valid          bool
	Missing        []string
	SchemaWarnings []string
}

// Validate reports whether inv has a vendor name, a client name and an invoice number.
func Validate(inv *domain.InvoiceResponse) bool {
	return len(MissingFields(inv)) == 0
}

// MissingFields returns the paths of required fields that are empty, in a fixed order.
// A nil invoice is missing all of them.
func MissingFields(inv *domain.InvoiceResponse) []string {
	var missing []string
	for _, f := range requiredFields {
		if inv == nil || strings.TrimSpace(f.extract(inv)) == "" {
			missing = append(missing, f.fieldPath)
		}
	}
	return missing
}

// Check validates inv and, when raw is non-empty, checks the model's raw JSON
// against the invoice schema. Schema findings are warnings only.
func Check(inv *domain.InvoiceResponse, raw []byte) Report {
	missing := MissingFields(inv)
	report := Report{
		Valid:   len(missing) == 0,
		Missing: missing,
	}
	if len(raw) > 0 {
		report.SchemaWarnings = SchemaWarnings(raw)
	}
	return report
}
