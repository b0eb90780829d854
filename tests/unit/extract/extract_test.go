package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contaluz/internal/extract"
)

func TestJSON_FencedObject(t *testing.T) {
	text := "Here is the data:\n```json\n{\"nome_cliente\": \"Maria Silva\", \"valor_fatura\": 123.45}\n```"

	v, err := extract.JSON(text)

	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Maria Silva", m["nome_cliente"])
	assert.Equal(t, 123.45, m["valor_fatura"])
}

func TestJSON_DeprecationNoiseAndTrailingComma(t *testing.T) {
	text := "WARNING: this flag is DEPRECATED and will be removed\n" +
		"Calling python -m mlx_vlm.generate\n" +
		"==========\n" +
		"{\"cep\": \"74000123\", \"estado\": \"GO\",}"

	v, err := extract.JSON(text)

	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "74000123", m["cep"])
	assert.Equal(t, "GO", m["estado"])
}

func TestJSON_BracesInsideStrings(t *testing.T) {
	text := `prefix {"endereco": "Rua {Bloco} 12", "obs": "chave \" interna"} suffix`

	v, err := extract.JSON(text)

	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "Rua {Bloco} 12", m["endereco"])
}

func TestJSON_TruncatedOutput(t *testing.T) {
	// Model ran out of tokens mid-object; everything up to the last closing
	// brace should still parse.
	text := `{"nome_cliente": "Jose", "consumo_lista": [{"mes_ano": "01/2025", "consumo": 100},`

	v, err := extract.JSON(text)

	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "Jose", m["nome_cliente"])
}

func TestJSON_MultipleCandidatesPrefersPlausible(t *testing.T) {
	// Echoed example carries a 14-entry consumption list; the real answer a
	// shorter one.
	long := `{"consumo_lista": [{"a":1},{"a":2},{"a":3},{"a":4},{"a":5},{"a":6},{"a":7},{"a":8},{"a":9},{"a":10},{"a":11},{"a":12},{"a":13},{"a":14}]}`
	short := `{"nome_cliente": "Ana", "consumo_lista": [{"mes_ano": "02/2025", "consumo": 180}]}`
	text := "Exemplo:\n" + long + "\nResposta:\n" + short

	v, err := extract.JSON(text)

	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "Ana", m["nome_cliente"])
}

func TestJSON_TurnMarkerStripsPromptEcho(t *testing.T) {
	text := `<|im_start|>system instructions {"ignore": "me"}<|im_end|><|im_start|>assistant{"valor_fatura": 99.9}<|im_end|>`

	v, err := extract.JSON(text)

	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, 99.9, m["valor_fatura"])
	assert.NotContains(t, m, "ignore")
}

func TestJSON_DecimalComma(t *testing.T) {
	text := `{"valor_fatura": 1234,56}`

	v, err := extract.JSON(text)

	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, 1234.56, m["valor_fatura"])
}

func TestJSON_TopLevelArray(t *testing.T) {
	text := "```json\n[{\"mes_ano\": \"03/2025\", \"consumo\": 210}]\n```"

	v, err := extract.JSON(text)

	require.NoError(t, err)
	arr, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, arr, 1)
}

func TestJSON_NoJSONReturnsNotFound(t *testing.T) {
	v, err := extract.JSON("nenhum dado encontrado na imagem")

	assert.Nil(t, v)
	var nf *extract.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestJSON_ScalarIsNotAValue(t *testing.T) {
	v, err := extract.JSON(`"apenas uma string"`)

	assert.Nil(t, v)
	assert.Error(t, err)
}
