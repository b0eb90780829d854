// Package contract projects a dynamic parsed payload into the fixed output
// record. Assemble is total and idempotent: every coercion is defensive,
// and re-assembling its own output changes nothing.
package contract

import (
	"log"
	"strings"

	"contaluz/internal/domain"
	"contaluz/internal/normalize"
)

var flagFields = []string{
	"alta_tensao", "baixa_renda", "energia_ativa_injetada", "energia_reativa",
	"orgao_publico", "parcelamentos", "tarifa_branca", "ths_verde", "faturas_venc",
}

// Assemble fills the contract template from a payload, normalizes every
// field, and applies the per-concessionaria business rules. It never fails:
// missing or mistyped keys fall back to typed defaults.
func Assemble(payload domain.Payload, concessionaria, uf string) domain.Contract {
	empty := ""
	out := domain.Contract{
		ContaContrato:   &empty,
		ValoresEmAberto: []domain.OpenAmount{},
		ConsumoLista:    []domain.ConsumptionEntry{},
	}
	if payload == nil {
		payload = domain.Payload{}
	}

	copyStr(payload, "cod_cliente", &out.CodCliente)
	copyStr(payload, "complemento", &out.Complemento)
	copyStr(payload, "distribuidora", &out.Distribuidora)
	copyStr(payload, "num_instalacao", &out.NumInstalacao)
	copyStr(payload, "classificacao", &out.Classificacao)
	copyStr(payload, "tipo_instalacao", &out.TipoInstalacao)
	copyStr(payload, "tensao_nominal", &out.TensaoNominal)
	copyStr(payload, "mes_referencia", &out.MesReferencia)
	copyStr(payload, "vencimento", &out.Vencimento)
	copyStr(payload, "proximo_leitura", &out.ProximoLeitura)
	copyStr(payload, "nome_cliente", &out.NomeCliente)
	copyStr(payload, "rua", &out.Rua)
	copyStr(payload, "numero", &out.Numero)
	copyStr(payload, "bairro", &out.Bairro)
	copyStr(payload, "cidade", &out.Cidade)
	copyStr(payload, "estado", &out.Estado)
	copyStr(payload, "cep", &out.CEP)

	if v, ok := payload["conta_contrato"]; ok && v != nil {
		s := normalize.Str(v)
		out.ContaContrato = &s
	}

	if out.Distribuidora == "" {
		out.Distribuidora = concessionaria
	}
	if out.MesReferencia != "" {
		out.MesReferencia = normalize.MonthReference(out.MesReferencia)
	}
	if out.CEP != "" {
		out.CEP = normalize.CEP(out.CEP)
	}

	out.ValorFatura = normalize.ToFloat(payload["valor_fatura"], 0.0)
	if v, ok := payload["aliquota_icms"]; ok && v != nil {
		f := normalize.ToFloat(v, 0.0)
		out.AliquotaICMS = &f
	}

	flags := make(map[string]bool, len(flagFields))
	for _, name := range flagFields {
		flags[name] = normalize.ToBool(payload[name])
	}
	out.AltaTensao = flags["alta_tensao"]
	out.BaixaRenda = flags["baixa_renda"]
	out.EnergiaAtivaInj = flags["energia_ativa_injetada"]
	out.EnergiaReativa = flags["energia_reativa"]
	out.OrgaoPublico = flags["orgao_publico"]
	out.Parcelamentos = flags["parcelamentos"]
	out.TarifaBranca = flags["tarifa_branca"]
	out.THSVerde = flags["ths_verde"]
	out.FaturasVenc = flags["faturas_venc"]

	if items, ok := payload["valores_em_aberto"].([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out.ValoresEmAberto = append(out.ValoresEmAberto, domain.OpenAmount{
				MesAno: normalize.Str(m["mes_ano"]),
				Valor:  normalize.ToFloat(m["valor"], 0.0),
			})
		}
	}

	if items, ok := payload["consumo_lista"].([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out.ConsumoLista = append(out.ConsumoLista, domain.ConsumptionEntry{
				MesAno:  normalize.Str(m["mes_ano"]),
				Consumo: normalize.ToInt(m["consumo"], 0),
			})
		}
	}

	// Equatorial/GO reports conta_contrato as null by contract with the
	// operator, regardless of what the model extracted.
	if normalize.Key(concessionaria) == "equatorial" && normalize.Key(uf) == "go" {
		out.ContaContrato = nil
		log.Printf("[validation] conta_contrato = null for %s/%s", concessionaria, uf)
	}

	estado := strings.ToUpper(strings.TrimSpace(out.Estado))
	ufUp := strings.ToUpper(strings.TrimSpace(uf))
	switch {
	case estado != "" && ufUp != "":
		if estado != ufUp {
			log.Printf("[validation] estado %q != UF %q, correcting", estado, ufUp)
			out.Estado = ufUp
		} else {
			out.Estado = estado
		}
	case ufUp != "":
		out.Estado = ufUp
		log.Printf("[validation] estado missing, using UF %s", ufUp)
	}

	return out
}

func copyStr(payload domain.Payload, key string, dst *string) {
	if v, ok := payload[key]; ok {
		*dst = normalize.Str(v)
	}
}
