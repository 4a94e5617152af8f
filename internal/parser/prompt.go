package parser

// SystemPrompt is sent as the system message for image and PDF-text requests.
const SystemPrompt = "You are an AI that extracts structured invoice data in JSON format. Return only valid JSON without markdown formatting."

// PDFFileInstruction is appended to the prompt when the PDF itself is attached.
const PDFFileInstruction = "Extract data from this PDF invoice and return ONLY valid JSON (no markdown, no explanations):"

// PDFTextIntro separates the prompt from text pulled out of a PDF.
const PDFTextIntro = "Here is the invoice text extracted from PDF:"

// BuildInvoicePrompt returns the extraction prompt for invoice documents.
func BuildInvoicePrompt() string {
	return `You are an invoice data extraction assistant. Analyze the provided invoice and extract its data into the following JSON structure.

IMPORTANT INSTRUCTIONS:
- Extract EVERY line item from every page into the "line_item" array. Do not skip, summarize, or merge items.
- Numbers must be plain JSON numbers without currency symbols or thousands separators.
- Keep dates exactly as printed on the invoice.
- "vat_percent" is the VAT rate as a number (e.g. 20 for 20%).
- Omit "taxId" and "iban" when they are not printed on the invoice.

Return ONLY valid JSON with no markdown formatting, no code fences, no explanation, just the raw JSON object.

The JSON must follow this schema:
{
  "vendor": {
    "name": "", "address": "",
    "taxId": "", "iban": ""
  },
  "client": {
    "name": "", "address": "",
    "taxId": ""
  },
  "invoice_number": "",
  "invoice_date": "",
  "totals": {
    "net_worth": 0, "vat": 0, "grand_total": 0
  },
  "line_item": [
    {
      "description": "",
      "quantity": 0, "unit_of_measure": "",
      "unit_price": 0, "net_worth": 0,
      "vat_percent": 0, "line_total": 0
    }
  ]
}

If a field is not present in the invoice, use empty string for text and 0 for numbers.`
}
