package domain

// Payload is the dynamic mapping recovered from one raw model response.
// It is not guaranteed to contain every contract field, nor to be
// well-typed; it never leaves the reconciliation/assembly boundary.
type Payload map[string]any

// ConsumptionEntry is one month of the consumption history table.
type ConsumptionEntry struct {
	MesAno  string `json:"mes_ano"`
	Consumo int    `json:"consumo"`
}

// OpenAmount is one overdue invoice listed on the bill.
type OpenAmount struct {
	MesAno string  `json:"mes_ano"`
	Valor  float64 `json:"valor"`
}

// Contract is the fixed-shape record returned by the API regardless of how
// many fields the model actually found. ContaContrato is a pointer because
// the Equatorial/GO rule forces it to JSON null; everywhere else it carries
// a (possibly empty) string.
type Contract struct {
	CodCliente      string             `json:"cod_cliente"`
	ContaContrato   *string            `json:"conta_contrato"`
	Complemento     string             `json:"complemento"`
	Distribuidora   string             `json:"distribuidora"`
	NumInstalacao   string             `json:"num_instalacao"`
	Classificacao   string             `json:"classificacao"`
	TipoInstalacao  string             `json:"tipo_instalacao"`
	TensaoNominal   string             `json:"tensao_nominal"`
	AltaTensao      bool               `json:"alta_tensao"`
	MesReferencia   string             `json:"mes_referencia"`
	ValorFatura     float64            `json:"valor_fatura"`
	Vencimento      string             `json:"vencimento"`
	ProximoLeitura  string             `json:"proximo_leitura"`
	AliquotaICMS    *float64           `json:"aliquota_icms"`
	BaixaRenda      bool               `json:"baixa_renda"`
	EnergiaAtivaInj bool               `json:"energia_ativa_injetada"`
	EnergiaReativa  bool               `json:"energia_reativa"`
	OrgaoPublico    bool               `json:"orgao_publico"`
	Parcelamentos   bool               `json:"parcelamentos"`
	TarifaBranca    bool               `json:"tarifa_branca"`
	THSVerde        bool               `json:"ths_verde"`
	FaturasVenc     bool               `json:"faturas_venc"`
	ValoresEmAberto []OpenAmount       `json:"valores_em_aberto"`
	NomeCliente     string             `json:"nome_cliente"`
	Rua             string             `json:"rua"`
	Numero          string             `json:"numero"`
	Bairro          string             `json:"bairro"`
	Cidade          string             `json:"cidade"`
	Estado          string             `json:"estado"`
	CEP             string             `json:"cep"`
	ConsumoLista    []ConsumptionEntry `json:"consumo_lista"`
}
