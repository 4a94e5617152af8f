package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "invoice.schema.json"

// invoiceSchema describes the shape the extraction prompt asks for. Required
// fields are enforced by Validate, so the schema only checks types.
const invoiceSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "vendor": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "address": {"type": "string"},
        "taxId": {"type": "string"},
        "iban": {"type": "string"}
      }
    },
    "client": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "address": {"type": "string"},
        "taxId": {"type": "string"}
      }
    },
    "invoice_number": {"type": "string"},
    "invoice_date": {"type": "string"},
    "totals": {
      "type": "object",
      "properties": {
        "net_worth": {"type": "number"},
        "vat": {"type": "number"},
        "grand_total": {"type": "number"}
      }
    },
    "line_item": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "quantity": {"type": "number"},
          "unit_of_measure": {"type": "string"},
          "unit_price": {"type": "number"},
          "net_worth": {"type": "number"},
          "vat_percent": {"type": "number"},
          "line_total": {"type": "number"}
        }
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(invoiceSchema)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// SchemaWarnings lists where raw departs from the invoice schema, as
// "<instance path>: <message>" strings sorted for stable output.
func SchemaWarnings(raw []byte) []string {
	s, err := schema()
	if err != nil {
		return []string{err.Error()}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []string{fmt.Sprintf("unmarshal data: %v", err)}
	}

	err = s.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var warnings []string
	collectLeaves(ve, &warnings)
	sort.Strings(warnings)
	return warnings
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}
