package domain

// Vendor is the party that issued the invoice.
type Vendor struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	TaxID   string `json:"taxId,omitempty"`
	IBAN    string `json:"iban,omitempty"`
}

// Client is the party the invoice is addressed to.
type Client struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	TaxID   string `json:"taxId,omitempty"`
}

// Totals holds the invoice-level amounts.
type Totals struct {
	NetWorth   float64 `json:"net_worth"`
	VAT        float64 `json:"vat"`
	GrandTotal float64 `json:"grand_total"`
}

// LineItem is a single billed row of the invoice.
type LineItem struct {
	Description   string  `json:"description"`
	Quantity      float64 `json:"quantity"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	UnitPrice     float64 `json:"unit_price"`
	NetWorth      float64 `json:"net_worth"`
	VATPercent    float64 `json:"vat_percent"`
	LineTotal     float64 `json:"line_total"`
}

// InvoiceResponse is the invoice record the model is asked to return.
// It is built entirely from untrusted model output.
type InvoiceResponse struct {
	Vendor        Vendor     `json:"vendor"`
	Client        Client     `json:"client"`
	InvoiceNumber string     `json:"invoice_number"`
	InvoiceDate   string     `json:"invoice_date"`
	Totals        Totals     `json:"totals"`
	LineItems     []LineItem `json:"line_item"`
}
