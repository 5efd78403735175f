// internal/app/builder/builder.go
package builder

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"rre_filing_agent/internal/domain/report"
)

const formTypeCode = "RRE"

// Filer identifies the reporting organisation on every document.
type Filer struct {
	OrgCode string
	TIN     string
	Name    string
}

// Meta carries the inputs of a build that are not part of the report itself.
// Identical Fields and Meta always produce identical output.
type Meta struct {
	GeneratedAt time.Time
	Sequence    int
}

// Document is a built submission, ready to push.
type Document struct {
	Text     string
	Filename string
}

// Builder turns report field sets into submission documents.
type Builder struct {
	filer Filer
}

func New(filer Filer) *Builder {
	return &Builder{filer: filer}
}

// Build validates fields and renders the submission document and its remote
// filename. Validation failures are returned together as a *PreflightError.
func (b *Builder) Build(fields *report.Fields, meta Meta) (*Document, error) {
	p := &preflight{}
	if fields == nil {
		p.add("report", "required")
		return nil, p.err()
	}

	filer := xmlFiler{
		OrganizationCode: strings.ToUpper(alphanumeric(b.filer.OrgCode)),
		Name:             p.text("filer.name", b.filer.Name, true),
		TIN:              p.digits("filer.tin", b.filer.TIN, true, 9),
	}
	if filer.OrganizationCode == "" {
		p.add("filer.org_code", "required")
	}
	if meta.Sequence < 0 || meta.Sequence > 9999 {
		p.add("meta.sequence", "must be between 0 and 9999")
	}
	if meta.GeneratedAt.IsZero() {
		p.add("meta.generated_at", "required")
	}

	seq := &sequencer{}
	activity := xmlActivity{
		SeqNum:   seq.next(),
		ReportID: fields.ReportID.String(),
	}
	if fields.ClosingDate.IsZero() {
		p.add("closing_date", "required")
	} else {
		activity.ClosingDate = fields.ClosingDate.UTC().Format("20060102")
	}
	if fields.PurchasePrice < 0 {
		p.add("purchase_price", "must not be negative")
	}
	activity.PurchasePrice = formatCents(fields.PurchasePrice)

	if fields.PropertyAddress.IsZero() {
		p.add("property_address", "required")
	} else {
		activity.Property = &xmlProperty{SeqNum: seq.next(), Address: p.address("property_address", fields.PropertyAddress)}
	}

	if len(fields.Transferees) == 0 {
		p.add("transferees", "at least one transferee is required")
	}
	if len(fields.Transferors) == 0 {
		p.add("transferors", "at least one transferor is required")
	}
	needsOwners := false
	for i := range fields.Transferees {
		party := &fields.Transferees[i]
		if party.Kind == report.PartyEntity || party.Kind == report.PartyTrust {
			needsOwners = true
		}
		activity.Parties = append(activity.Parties, p.party(fmt.Sprintf("transferees[%d]", i), "Transferee", party, seq))
	}
	for i := range fields.Transferors {
		activity.Parties = append(activity.Parties, p.party(fmt.Sprintf("transferors[%d]", i), "Transferor", &fields.Transferors[i], seq))
	}

	if needsOwners && len(fields.BeneficialOwners) == 0 {
		p.add("beneficial_owners", "required when a transferee is an entity or trust")
	}
	for i := range fields.BeneficialOwners {
		activity.Owners = append(activity.Owners, p.owner(fmt.Sprintf("beneficial_owners[%d]", i), &fields.BeneficialOwners[i], seq))
	}

	if err := p.err(); err != nil {
		return nil, err
	}

	batch := xmlBatch{
		FormTypeCode:  formTypeCode,
		ActivityCount: 1,
		Filer:         filer,
		Activity:      activity,
	}
	out, err := xml.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission document: %w", err)
	}

	return &Document{
		Text:     xml.Header + string(out) + "\n",
		Filename: Filename(filer.OrganizationCode, meta.GeneratedAt, meta.Sequence),
	}, nil
}

// Filename is the canonical remote name: org code, UTC timestamp, 4-digit sequence.
func Filename(orgCode string, at time.Time, sequence int) string {
	stem := strings.ToUpper(alphanumeric(orgCode)) + at.UTC().Format("20060102150405") + fmt.Sprintf("%04d", sequence)
	return alphanumeric(stem) + ".xml"
}

func (p *preflight) address(path string, a *report.Address) *xmlAddress {
	if a.IsZero() {
		p.add(path, "required")
		return nil
	}
	out := &xmlAddress{
		Street:  p.text(path+".street", a.Street, true),
		Unit:    p.text(path+".unit", a.Unit, false),
		City:    p.text(path+".city", a.City, true),
		Country: p.country(path+".country", a.Country),
	}
	if out.Country == "US" {
		out.State = strings.ToUpper(p.text(path+".state", a.State, true))
		if out.State != "" && (len(out.State) != 2 || alphanumeric(out.State) != out.State) {
			p.add(path+".state", "expected 2-letter state code")
		}
		out.ZIP = p.digits(path+".zip", a.ZIP, true, 5, 9)
	} else {
		out.State = p.text(path+".state", a.State, false)
		out.ZIP = p.text(path+".zip", a.ZIP, false)
	}
	return out
}

func (p *preflight) party(path, role string, party *report.Party, seq *sequencer) xmlParty {
	out := xmlParty{SeqNum: seq.next(), Role: role}
	switch party.Kind {
	case report.PartyIndividual:
		out.Type = "Individual"
		out.Name = &xmlName{
			First: p.text(path+".first_name", party.FirstName, true),
			Last:  p.text(path+".last_name", party.LastName, true),
		}
		if party.BirthDate != nil {
			out.BirthDate = party.BirthDate.UTC().Format("20060102")
		}
	case report.PartyEntity, report.PartyTrust:
		out.Type = "Entity"
		if party.Kind == report.PartyTrust {
			out.Type = "Trust"
		}
		out.EntityName = p.text(path+".entity_name", party.EntityName, true)
	default:
		p.add(path+".kind", fmt.Sprintf("unknown party kind %q", party.Kind))
	}
	out.TIN = p.digits(path+".tin", party.TIN, true, 9)
	out.Phone = p.phone(path+".phone", party.Phone)
	if party.Address == nil {
		p.add(path+".address", "required")
	} else {
		out.Address = p.address(path+".address", party.Address)
	}
	return out
}

func (p *preflight) owner(path string, bo *report.BeneficialOwner, seq *sequencer) xmlOwner {
	out := xmlOwner{
		SeqNum: seq.next(),
		Name: xmlName{
			First: p.text(path+".first_name", bo.FirstName, true),
			Last:  p.text(path+".last_name", bo.LastName, true),
		},
		TIN:         p.digits(path+".tin", bo.TIN, true, 9),
		Citizenship: p.country(path+".citizenship", bo.Citizenship),
	}
	if bo.BirthDate == nil || bo.BirthDate.IsZero() {
		p.add(path+".birth_date", "required")
	} else {
		out.BirthDate = bo.BirthDate.UTC().Format("20060102")
	}
	if bo.Address == nil {
		p.add(path+".address", "required")
	} else {
		out.Address = p.address(path+".address", bo.Address)
	}
	return out
}

func formatCents(cents int64) string {
	if cents < 0 {
		cents = 0
	}
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

type sequencer struct{ n int }

func (s *sequencer) next() int {
	s.n++
	return s.n
}
