package contract_test

import (
	"encoding/json"
	"testing"

	"github.com/gowebpki/jcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contaluz/internal/contract"
	"contaluz/internal/domain"
)

func TestAssemble_EmptyPayloadFillsTemplate(t *testing.T) {
	out := contract.Assemble(domain.Payload{}, "CEMIG-D", "MG")

	require.NotNil(t, out.ContaContrato)
	assert.Equal(t, "", *out.ContaContrato)
	assert.Equal(t, "CEMIG-D", out.Distribuidora)
	assert.Equal(t, "MG", out.Estado)
	assert.Equal(t, 0.0, out.ValorFatura)
	assert.Nil(t, out.AliquotaICMS)
	assert.NotNil(t, out.ValoresEmAberto)
	assert.Empty(t, out.ValoresEmAberto)
	assert.NotNil(t, out.ConsumoLista)
	assert.Empty(t, out.ConsumoLista)
	assert.False(t, out.AltaTensao)
}

func TestAssemble_NilPayload(t *testing.T) {
	out := contract.Assemble(nil, "Enel", "SP")

	assert.Equal(t, "Enel", out.Distribuidora)
	assert.Equal(t, "SP", out.Estado)
}

func TestAssemble_NormalizesFields(t *testing.T) {
	payload := domain.Payload{
		"nome_cliente":   "  Maria Silva  ",
		"mes_referencia": "OUT/25",
		"cep":            "30130010",
		"valor_fatura":   "R$ 1.234,56",
		"aliquota_icms":  "18,0",
		"alta_tensao":    "sim",
		"baixa_renda":    "false",
		"cod_cliente":    7001234567.0,
		"consumo_lista": []any{
			map[string]any{"mes_ano": "09/2025", "consumo": "180"},
			"not-a-map",
			map[string]any{"mes_ano": "08/2025", "consumo": 175.0},
		},
		"valores_em_aberto": []any{
			map[string]any{"mes_ano": "07/2025", "valor": "89,90"},
		},
	}

	out := contract.Assemble(payload, "CEMIG-D", "MG")

	assert.Equal(t, "Maria Silva", out.NomeCliente)
	assert.Equal(t, "10/2025", out.MesReferencia)
	assert.Equal(t, "30.130-010", out.CEP)
	assert.Equal(t, 1234.56, out.ValorFatura)
	require.NotNil(t, out.AliquotaICMS)
	assert.Equal(t, 18.0, *out.AliquotaICMS)
	assert.True(t, out.AltaTensao)
	assert.False(t, out.BaixaRenda)
	assert.Equal(t, "7001234567", out.CodCliente)
	require.Len(t, out.ConsumoLista, 2)
	assert.Equal(t, domain.ConsumptionEntry{MesAno: "09/2025", Consumo: 180}, out.ConsumoLista[0])
	assert.Equal(t, domain.ConsumptionEntry{MesAno: "08/2025", Consumo: 175}, out.ConsumoLista[1])
	require.Len(t, out.ValoresEmAberto, 1)
	assert.Equal(t, domain.OpenAmount{MesAno: "07/2025", Valor: 89.90}, out.ValoresEmAberto[0])
}

func TestAssemble_EquatorialGOForcesNullContaContrato(t *testing.T) {
	payload := domain.Payload{"conta_contrato": "123456"}

	out := contract.Assemble(payload, "Equatorial", "GO")
	assert.Nil(t, out.ContaContrato)

	// Case and punctuation variants of the pair hit the same rule.
	out = contract.Assemble(payload, " EQUATORIAL ", "go")
	assert.Nil(t, out.ContaContrato)

	// Other states keep the extracted value.
	out = contract.Assemble(payload, "Equatorial", "PA")
	require.NotNil(t, out.ContaContrato)
	assert.Equal(t, "123456", *out.ContaContrato)
}

func TestAssemble_EstadoCorrectedToUF(t *testing.T) {
	out := contract.Assemble(domain.Payload{"estado": "sp"}, "Enel", "RJ")
	assert.Equal(t, "RJ", out.Estado)

	out = contract.Assemble(domain.Payload{"estado": "rj"}, "Enel", "RJ")
	assert.Equal(t, "RJ", out.Estado)

	out = contract.Assemble(domain.Payload{}, "Enel", "RJ")
	assert.Equal(t, "RJ", out.Estado)
}

func TestAssemble_Idempotent(t *testing.T) {
	payload := domain.Payload{
		"nome_cliente":   "Jose",
		"mes_referencia": "OUT/2025",
		"cep":            "74000123",
		"valor_fatura":   "R$ 321,09",
		"aliquota_icms":  17.5,
		"tarifa_branca":  true,
		"consumo_lista": []any{
			map[string]any{"mes_ano": "09/2025", "consumo": 200},
		},
	}

	first := contract.Assemble(payload, "CELG", "GO")

	raw, err := json.Marshal(first)
	require.NoError(t, err)
	var roundtrip domain.Payload
	require.NoError(t, json.Unmarshal(raw, &roundtrip))

	second := contract.Assemble(roundtrip, "CELG", "GO")

	rawFirst, err := jcs.Transform(raw)
	require.NoError(t, err)
	rawSecondIn, err := json.Marshal(second)
	require.NoError(t, err)
	rawSecond, err := jcs.Transform(rawSecondIn)
	require.NoError(t, err)
	assert.Equal(t, string(rawFirst), string(rawSecond))
}
