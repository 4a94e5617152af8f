package parser

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"invoicex/internal/domain"
)

// StripCodeFences trims s and removes a leading ``` or ```json fence line and a
// trailing ``` fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseInvoiceJSON decodes a model reply into an InvoiceResponse. It returns
// the fence-stripped JSON alongside the record.
//
// Only replies that are not a JSON object fail. Scalars of the wrong type are
// coerced: numeric strings such as "120,00" become numbers, numbers become
// strings, and anything else is left at its zero value. The schema check in
// the validator reports those mismatches.
func ParseInvoiceJSON(content string) (*domain.InvoiceResponse, string, error) {
	cleaned := StripCodeFences(content)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, "", &ResponseParseError{Raw: content, Err: err}
	}
	if strings.TrimSpace(cleaned[dec.InputOffset():]) != "" {
		return nil, "", &ResponseParseError{Raw: content, Err: errors.New("unexpected data after JSON value")}
	}
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, "", &ResponseParseError{Raw: content, Err: errors.New("reply is not a JSON object")}
	}

	vendor := object(root["vendor"])
	client := object(root["client"])
	totals := object(root["totals"])
	inv := &domain.InvoiceResponse{
		Vendor: domain.Vendor{
			Name:    text(vendor["name"]),
			Address: text(vendor["address"]),
			TaxID:   text(vendor["taxId"]),
			IBAN:    text(vendor["iban"]),
		},
		Client: domain.Client{
			Name:    text(client["name"]),
			Address: text(client["address"]),
			TaxID:   text(client["taxId"]),
		},
		InvoiceNumber: text(root["invoice_number"]),
		InvoiceDate:   text(root["invoice_date"]),
		Totals: domain.Totals{
			NetWorth:   number(totals["net_worth"]),
			VAT:        number(totals["vat"]),
			GrandTotal: number(totals["grand_total"]),
		},
	}
	if items, ok := root["line_item"].([]any); ok {
		for _, raw := range items {
			item := object(raw)
			inv.LineItems = append(inv.LineItems, domain.LineItem{
				Description:   text(item["description"]),
				Quantity:      number(item["quantity"]),
				UnitOfMeasure: text(item["unit_of_measure"]),
				UnitPrice:     number(item["unit_price"]),
				NetWorth:      number(item["net_worth"]),
				VATPercent:    number(item["vat_percent"]),
				LineTotal:     number(item["line_total"]),
			})
		}
	}
	return inv, cleaned, nil
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		return parseAmount(t)
	default:
		return 0
	}
}

// parseAmount reads "1,200.50", "120,00", "20%" or "$ 45" as a number; 0 when
// nothing numeric remains.
func parseAmount(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	n := b.String()
	switch {
	case strings.Contains(n, ".") && strings.Contains(n, ","):
		n = strings.ReplaceAll(n, ",", "")
	case strings.Count(n, ",") == 1:
		n = strings.Replace(n, ",", ".", 1)
	default:
		n = strings.ReplaceAll(n, ",", "")
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0
	}
	return f
}
