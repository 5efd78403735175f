// internal/domain/report/report.go
package report

import (
	"time"

	"github.com/google/uuid"
)

// PartyKind distinguishes the shapes a transferee or transferor can take.
type PartyKind string

const (
	PartyIndividual PartyKind = "individual"
	PartyEntity     PartyKind = "entity"
	PartyTrust      PartyKind = "trust"
)

// Address as captured by the reporting application. Country is free text
// ("United States", "USA", "US") and is normalised on build.
type Address struct {
	Street  string `json:"street"`
	Unit    string `json:"unit,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZIP     string `json:"zip"`
	Country string `json:"country"`
}

// IsZero reports whether no address line was captured at all.
func (a *Address) IsZero() bool {
	return a == nil || (a.Street == "" && a.City == "" && a.State == "" && a.ZIP == "")
}

// Party is a transferee (buyer) or transferor (seller).
type Party struct {
	Kind       PartyKind  `json:"kind"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
	EntityName string     `json:"entity_name,omitempty"`
	TIN        string     `json:"tin"`
	Phone      string     `json:"phone,omitempty"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Address    *Address   `json:"address"`
}

// BeneficialOwner of an entity or trust transferee.
type BeneficialOwner struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	BirthDate   *time.Time `json:"birth_date"`
	TIN         string     `json:"tin"`
	Citizenship string     `json:"citizenship"`
	Address     *Address   `json:"address"`
}

// Fields is the normalised field set of one real-estate report, read-only input
// to the document builder.
type Fields struct {
	ReportID         uuid.UUID         `json:"report_id"`
	PropertyAddress  *Address          `json:"property_address"`
	ClosingDate      time.Time         `json:"closing_date"`
	PurchasePrice    int64             `json:"purchase_price_cents"`
	Transferees      []Party           `json:"transferees"`
	Transferors      []Party           `json:"transferors"`
	BeneficialOwners []BeneficialOwner `json:"beneficial_owners"`
}
