package serv

import (
	"encoding/json"

	"github.com/WrongProvider/quemVota-sub000/core/timeseries"
	"github.com/shopspring/decimal"
)

// Politician is an entry of the politicians list.
type Politician struct {
	ID       int    `json:"id"`
	Name     string `json:"nome"`
	UF       string `json:"uf"`
	Party    string `json:"partido_sigla"`
	PhotoURL string `json:"url_foto,omitempty"`
}

// PoliticianDetail is a politician with contact and electoral details.
type PoliticianDetail struct {
	Politician
	Education         string `json:"escolaridade,omitempty"`
	Situation         string `json:"situacao,omitempty"`
	ElectoralStatus   string `json:"condicao_eleitoral,omitempty"`
	OfficeEmail       string `json:"email_gabinete,omitempty"`
	OfficePhoneNumber string `json:"telefone_gabinete,omitempty"`
}

// PoliticianStats summarizes a politician's activity.
type PoliticianStats struct {
	TotalVotes    int             `json:"total_votacoes"`
	TotalExpenses int             `json:"total_despesas"`
	TotalSpent    decimal.Decimal `json:"total_gasto"`
	MonthlyMean   decimal.Decimal `json:"media_mensal"`
	FirstYear     *int            `json:"primeiro_ano"`
	LastYear      *int            `json:"ultimo_ano"`
}

// PerformanceGrades are the partial grades behind a performance score.
type PerformanceGrades struct {
	Attendance float64 `json:"nota_assiduidade"`
	Economy    float64 `json:"nota_economia"`
	Production float64 `json:"nota_producao"`
}

// PerformanceInfo describes how the allowance was used.
type PerformanceInfo struct {
	MonthlyAllowance decimal.Decimal `json:"valor_cota_mensal"`
	Months           int             `json:"meses_considerados"`
	TotalSpent       decimal.Decimal `json:"total_gasto"`
	AllowanceUsedPct float64         `json:"cota_utilizada_pct"`
}

// PoliticianPerformance is the server-computed performance score. The score
// is opaque to this client.
type PoliticianPerformance struct {
	PoliticianID int               `json:"politico_id"`
	Year         *int              `json:"ano"`
	Score        float64           `json:"score_final"`
	GlobalMean   float64           `json:"media_global"`
	Grades       PerformanceGrades `json:"detalhes"`
	Info         PerformanceInfo   `json:"info"`
}

// TimelineYear is one year of a politician's performance history.
type TimelineYear struct {
	Year   int     `json:"ano"`
	Score  float64 `json:"score"`
	Grades struct {
		Attendance float64 `json:"assiduidade"`
		Production float64 `json:"producao"`
		Economy    float64 `json:"economia"`
	} `json:"notas"`
	Stats struct {
		TotalVotes    int             `json:"total_votacoes"`
		TotalExpenses int             `json:"total_despesas"`
		TotalSpent    decimal.Decimal `json:"total_gasto"`
		MonthlyMean   decimal.Decimal `json:"media_mensal"`
	} `json:"estatisticas"`
	Info struct {
		MonthlyAllowance decimal.Decimal `json:"valor_cota_mensal"`
		ActiveMonths     int             `json:"meses_ativos"`
		TotalAllowance   decimal.Decimal `json:"cota_total"`
		AllowanceUsedPct float64         `json:"cota_utilizada_pct"`
	} `json:"info"`
}

// Supplier is one of the suppliers that received the most from a politician.
type Supplier struct {
	Name         string          `json:"nome"`
	Total        decimal.Decimal `json:"total"`
	MainCategory string          `json:"categoria_principal,omitempty"`
}

// UnmarshalJSON accepts both the supplier and the ranking field names.
func (s *Supplier) UnmarshalJSON(b []byte) error {
	var w struct {
		Name         *string          `json:"nome"`
		SupplierName *string          `json:"nome_fornecedor"`
		Total        *decimal.Decimal `json:"total"`
		Received     *decimal.Decimal `json:"total_recebido"`
		MainCategory *string          `json:"categoria_principal"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Supplier{
		Name:         firstString(w.Name, w.SupplierName),
		Total:        firstDecimal(w.Total, w.Received),
		MainCategory: firstString(w.MainCategory),
	}
	if s.Name == "" {
		s.Name = unnamed
	}
	return nil
}

// Category is an expense category with its total.
type Category struct {
	Name  string          `json:"nome"`
	Total decimal.Decimal `json:"total"`
}

// UnmarshalJSON accepts both "nome" and "tipo_despesa" for the name.
func (c *Category) UnmarshalJSON(b []byte) error {
	var w struct {
		Name  *string          `json:"nome"`
		Type  *string          `json:"tipo_despesa"`
		Total *decimal.Decimal `json:"total"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*c = Category{
		Name:  firstString(w.Name, w.Type),
		Total: firstDecimal(w.Total),
	}
	if c.Name == "" {
		c.Name = unnamed
	}
	return nil
}

const unnamed = "—"

func firstString(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func firstDecimal(vals ...*decimal.Decimal) decimal.Decimal {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return decimal.Zero
}

// ExpensesSummary is the full expense summary of a politician: monthly
// history plus top suppliers and categories.
type ExpensesSummary struct {
	Monthly    []timeseries.MonthlyRecord `json:"historico_mensal"`
	Suppliers  []Supplier                 `json:"top_fornecedores"`
	Categories []Category                 `json:"top_categorias"`
}

// UnmarshalJSON tolerates missing lists and the older "por_categoria" name.
func (e *ExpensesSummary) UnmarshalJSON(b []byte) error {
	var w struct {
		Monthly    []timeseries.MonthlyRecord `json:"historico_mensal"`
		Suppliers  []Supplier                 `json:"top_fornecedores"`
		Categories []Category                 `json:"top_categorias"`
		ByCategory []Category                 `json:"por_categoria"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = ExpensesSummary{
		Monthly:    w.Monthly,
		Suppliers:  w.Suppliers,
		Categories: w.ByCategory,
	}
	if e.Categories == nil {
		e.Categories = w.Categories
	}
	return nil
}

// Vote is a politician's vote in a voting session.
type Vote struct {
	Date        string `json:"data"`
	Description string `json:"descricao"`
	Vote        string `json:"voto"`
	Result      string `json:"resultado,omitempty"`
	Proposal    string `json:"proposicao,omitempty"`
}

// ProposalAuthor is an author of a legislative proposal.
type ProposalAuthor struct {
	PoliticianID *int    `json:"politico_id"`
	Name         string  `json:"nome"`
	Type         *string `json:"tipo"`
	Proponent    *bool   `json:"proponente"`
}

// Theme is a legislative theme.
type Theme struct {
	ID    int    `json:"id"`
	Code  *int   `json:"cod_tema"`
	Theme string `json:"tema"`
}

// Proposal is an entry of the proposals list.
type Proposal struct {
	ID               int              `json:"id"`
	ChamberID        int              `json:"id_camara"`
	Type             *string          `json:"sigla_tipo"`
	Number           *int             `json:"numero"`
	Year             *int             `json:"ano"`
	TypeDescription  *string          `json:"descricao_tipo"`
	Summary          *string          `json:"ementa"`
	Keywords         *string          `json:"keywords"`
	PresentationDate *string          `json:"data_apresentacao"`
	FullTextURL      *string          `json:"url_inteiro_teor"`
	Authors          []ProposalAuthor `json:"autores"`
	Themes           []Theme          `json:"temas"`
}

// Procedure is one step of a proposal's legislative procedure.
type Procedure struct {
	ID                   int     `json:"id"`
	DateTime             *string `json:"data_hora"`
	Sequence             *int    `json:"sequencia"`
	Body                 *string `json:"sigla_orgao"`
	Regime               *string `json:"regime"`
	Description          *string `json:"descricao_tramitacao"`
	SituationDescription *string `json:"descricao_situacao"`
	Dispatch             *string `json:"despacho"`
	Scope                *string `json:"ambito"`
	Appraisal            *string `json:"apreciacao"`
}

// ProposalDetail is a proposal with its procedure history.
type ProposalDetail struct {
	Proposal
	DetailedSummary *string     `json:"ementa_detalhada"`
	Justification   *string     `json:"justificativa"`
	FinalURN        *string     `json:"urn_final"`
	Procedures      []Procedure `json:"tramitacoes"`
}

// Voting is an entry of the votings list.
//
// Approval is 1 when approved, 0 when rejected, -1 when undefined and nil
// when unavailable.
type Voting struct {
	ID               int     `json:"id"`
	ChamberID        string  `json:"id_camara"`
	Date             *string `json:"data"`
	RegisteredAt     *string `json:"data_hora_registro"`
	Type             *string `json:"tipo_votacao"`
	Description      *string `json:"descricao"`
	Approval         *int    `json:"aprovacao"`
	Body             *string `json:"sigla_orgao"`
	ProposalID       *int    `json:"proposicao_id"`
	ProposalType     *string `json:"proposicao_sigla"`
	ProposalNumber   *int    `json:"proposicao_numero"`
	ProposalYear     *int    `json:"proposicao_ano"`
	ProposalAbstract *string `json:"proposicao_ementa"`
}

// ExpenseRanking ranks politicians by total spent.
type ExpenseRanking struct {
	PoliticianID int             `json:"politico_id"`
	Name         string          `json:"nome"`
	TotalSpent   decimal.Decimal `json:"total_gasto"`
}

// PerformanceRanking ranks politicians by performance score.
type PerformanceRanking struct {
	ID     int     `json:"id"`
	Name   string  `json:"nome"`
	UF     string  `json:"uf"`
	Party  string  `json:"partido"`
	Photo  string  `json:"foto"`
	Score  float64 `json:"score"`
	Grades struct {
		Attendance float64 `json:"assiduidade"`
		Production float64 `json:"producao"`
		Economy    float64 `json:"economia"`
	} `json:"notas"`
}

// OverallStats are the dashboard-wide figures.
type OverallStats struct {
	GlobalMean       float64              `json:"media_global"`
	TotalPoliticians int                  `json:"total_parlamentares"`
	Top              []PerformanceRanking `json:"top_3"`
}

// PartyOrientation is how a party or bloc oriented its members to vote.
type PartyOrientation struct {
	Party       *string `json:"sigla_partido_bloco"`
	Leadership  *string `json:"cod_tipo_lideranca"`
	Orientation *string `json:"orientacao_voto"`
}

// VotingDetail is a voting with the orientation of each party.
type VotingDetail struct {
	Voting
	Orientations []PartyOrientation `json:"orientacoes"`
}

// SupplierRanking ranks companies by amount received.
type SupplierRanking struct {
	CNPJ     string          `json:"cnpj"`
	Name     string          `json:"nome_fornecedor"`
	Received decimal.Decimal `json:"total_recebido"`
}
