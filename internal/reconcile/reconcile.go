// Package reconcile merges the payloads of the independent inference
// passes under a deterministic, field-group-scoped precedence policy. The
// merge is order-independent except where a tie-break is stated; a missing
// source degrades to an empty payload and never fails the request.
package reconcile

import (
	"strings"

	"contaluz/internal/domain"
	"contaluz/internal/normalize"
)

// MaxConsumptionEntries caps consumo_lista at twelve months plus the
// current one.
const MaxConsumptionEntries = 13

// AddressFields are the fields the customer-crop pass may override.
var AddressFields = []string{"rua", "numero", "complemento", "bairro", "cidade", "estado", "cep"}

// AnchorFields are the only fields the anchor/tiling fallback targets.
var AnchorFields = []string{"vencimento", "mes_referencia", "valor_fatura", "aliquota_icms", "cod_cliente", "num_instalacao"}

// Merge combines the full-image, customer-crop, and consumption-crop
// payloads. The full-image payload is the baseline; the customer crop
// overrides address fields when its value passes the per-field sanity
// gate, and consumo_lista is resolved by list length with the full-image
// list winning ties. nome_cliente is never taken from the customer crop:
// that prompt is address-focused and bleeds street text into the name.
func Merge(full, customer, consumption domain.Payload) domain.Payload {
	out := domain.Payload{}
	for k, v := range full {
		out[k] = v
	}

	for _, key := range AddressFields {
		v, ok := customer[key]
		if !ok {
			continue
		}
		s := normalize.Str(v)
		if s == "" {
			continue
		}
		if key == "cep" && countDigits(s) != 8 {
			continue
		}
		if key == "estado" && !isTwoAlpha(s) {
			continue
		}
		out[key] = v
	}

	crop := consumptionList(consumption)
	fullList := consumptionList(out)
	switch {
	case len(crop) > 0 && len(fullList) == 0:
		out["consumo_lista"] = crop
	case len(crop) > len(fullList):
		out["consumo_lista"] = crop
	case len(fullList) > 0:
		out["consumo_lista"] = fullList
	}
	if lst, ok := out["consumo_lista"].([]any); ok && len(lst) > MaxConsumptionEntries {
		out["consumo_lista"] = lst[:MaxConsumptionEntries]
	}

	return out
}

// MergeAnchors overlays anchor-pipeline results onto the baseline. Only
// the anchor-targeted fields are considered, and only non-blank values
// take precedence.
func MergeAnchors(base, anchors domain.Payload) domain.Payload {
	out := domain.Payload{}
	for k, v := range base {
		out[k] = v
	}
	for _, key := range AnchorFields {
		if v, ok := anchors[key]; ok && !blank(v) {
			out[key] = v
		}
	}
	return out
}

// MergeTiles fills anchor fields still blank in base from per-tile
// payloads: first match wins per field, independently across tiles.
func MergeTiles(base domain.Payload, tiles []domain.Payload) domain.Payload {
	out := domain.Payload{}
	for k, v := range base {
		out[k] = v
	}
	for _, key := range AnchorFields {
		if v, ok := out[key]; ok && !blank(v) {
			continue
		}
		for _, tile := range tiles {
			if v, ok := tile[key]; ok && !blank(v) {
				out[key] = v
				break
			}
		}
	}
	return out
}

func consumptionList(p domain.Payload) []any {
	if p == nil {
		return nil
	}
	lst, _ := p["consumo_lista"].([]any)
	return lst
}

// blank mirrors loose truthiness: nil, whitespace strings, zero numbers,
// false, and empty collections contribute nothing.
func blank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return x == 0
	case int:
		return x == 0
	case bool:
		return !x
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func isTwoAlpha(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}
