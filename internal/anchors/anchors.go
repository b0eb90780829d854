// Package anchors implements the optional per-field fallback pipeline:
// short single-field prompts run against the whole image and, for fields
// still missing, against overlapping tiles. It is disabled by default for
// being too slow in production; kept behind configuration pending a
// product decision.
package anchors

import (
	"context"
	"image"
	"log"

	"contaluz/internal/domain"
	"contaluz/internal/extract"
	"contaluz/internal/imaging"
	"contaluz/internal/port"
	"contaluz/internal/reconcile"
)

// fieldPrompts are the short single-field extraction prompts. Each demands
// a one-key JSON object so the answer parses even from a tiny crop.
var fieldPrompts = map[string]string{
	"vencimento": `Analise esta imagem e extraia APENAS a data de vencimento.

RETORNE APENAS UM JSON VÁLIDO:
{
  "vencimento": "DD/MM/AAAA"
}

REGRAS:
- Formato: "DD/MM/AAAA" (ex: "15/01/2024")
- Se não encontrar, retorne: {"vencimento": ""}`,

	"mes_referencia": `Analise esta imagem e extraia APENAS o mês de referência.

RETORNE APENAS UM JSON VÁLIDO:
{
  "mes_referencia": "MM/AAAA"
}

REGRAS:
- Formato: "MM/AAAA" (ex: "01/2024", "10/2025")
- Se aparecer formato abreviado (ex: "OUT/2025"), converta:
  - JAN=01, FEV=02, MAR=03, ABR=04, MAI=05, JUN=06
  - JUL=07, AGO=08, SET=09, OUT=10, NOV=11, DEZ=12
- Se não encontrar, retorne: {"mes_referencia": ""}`,

	"valor_fatura": `Analise esta imagem e extraia APENAS o valor total da fatura.

RETORNE APENAS UM JSON VÁLIDO:
{
  "valor_fatura": 123.45
}

REGRAS:
- Número float (ex: 123.45, 140.54)
- Remova "R$" e separadores de milhar
- Use ponto como separador decimal
- Se não encontrar, retorne: {"valor_fatura": 0.0}`,

	"aliquota_icms": `Analise esta imagem e extraia APENAS a alíquota de ICMS.

RETORNE APENAS UM JSON VÁLIDO:
{
  "aliquota_icms": 19.0
}

REGRAS:
- Número float (ex: 18.0, 19.0, 22.0)
- Procure por "%" ou "ICMS"
- Se não encontrar, retorne: {"aliquota_icms": null}`,

	"cod_cliente": `Analise esta imagem e extraia APENAS o código do cliente.

RETORNE APENAS UM JSON VÁLIDO:
{
  "cod_cliente": "12345678"
}

REGRAS:
- String com números (ex: "12345678", "112326427")
- Procure por "Código Cliente", "Parceiro de Negócio", etc.
- Se não encontrar, retorne: {"cod_cliente": ""}`,

	"num_instalacao": `Analise esta imagem e extraia APENAS o número da instalação.

RETORNE APENAS UM JSON VÁLIDO:
{
  "num_instalacao": "30052610"
}

REGRAS:
- String com números (ex: "30052610", "10031843326")
- Procure por "Instalação", "Unidade Consumidora", etc.
- Se não encontrar, retorne: {"num_instalacao": ""}`,
}

// FieldPrompt returns the short prompt for a field, "" when the field is
// not anchor-targeted.
func FieldPrompt(field string) string {
	return fieldPrompts[field]
}

// Runner drives the fallback passes against an inference engine.
type Runner struct {
	engine   port.InferenceEngine
	maxTiles int
}

// NewRunner creates a fallback Runner. maxTiles bounds the tiling grid.
func NewRunner(engine port.InferenceEngine, maxTiles int) *Runner {
	if maxTiles <= 0 {
		maxTiles = 9
	}
	return &Runner{engine: engine, maxTiles: maxTiles}
}

// RunFields runs one short-prompt inference per requested field against
// img and collects whatever parsed. Per-field failures are logged and
// skipped; the pass never fails as a whole.
func (r *Runner) RunFields(ctx context.Context, img image.Image, fields []string) domain.Payload {
	out := domain.Payload{}
	for _, field := range fields {
		p := fieldPrompts[field]
		if p == "" {
			continue
		}
		v, ok := r.inferField(ctx, img, field, p)
		if ok {
			out[field] = v
		}
	}
	return out
}

// RunTiling cuts img into adaptive tiles and, for each requested field,
// tries tiles in order until one yields a value. Fields are independent:
// a hit for one field does not stop the scan for another. The result is
// one payload per tile, in tile order, ready for reconcile.MergeTiles.
func (r *Runner) RunTiling(ctx context.Context, img image.Image, fields []string) []domain.Payload {
	tiles := imaging.AdaptiveTiles(img, r.maxTiles)
	log.Printf("[anchors] generated %d tiles", len(tiles))
	out := make([]domain.Payload, len(tiles))
	for i := range out {
		out[i] = domain.Payload{}
	}
	for _, field := range fields {
		p := fieldPrompts[field]
		if p == "" {
			continue
		}
		for i, tile := range tiles {
			if ctx.Err() != nil {
				return out
			}
			v, ok := r.inferField(ctx, tile.Image, field, p)
			if ok {
				out[i][field] = v
				break
			}
		}
	}
	return out
}

// MissingFields returns the anchor-targeted fields that are still blank
// in payload.
func MissingFields(payload domain.Payload) []string {
	var missing []string
	for _, field := range reconcile.AnchorFields {
		v, ok := payload[field]
		if !ok || isBlank(v) {
			missing = append(missing, field)
		}
	}
	return missing
}

func (r *Runner) inferField(ctx context.Context, img image.Image, field, promptText string) (any, bool) {
	raw, err := r.engine.Infer(ctx, port.InferInput{Image: img, Prompt: promptText, Label: field})
	if err != nil {
		log.Printf("[anchors] %s inference: %v", field, err)
		return nil, false
	}
	parsed, err := extract.JSON(raw)
	if err != nil {
		log.Printf("[anchors] %s extraction: %v", field, err)
		return nil, false
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	if !ok || isBlank(v) {
		return nil, false
	}
	return v, true
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return x == 0
	default:
		return false
	}
}
