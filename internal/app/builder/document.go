// internal/app/builder/document.go
package builder

import "encoding/xml"

// XML shape of a submission batch. Field order is the element order on the wire.

type xmlBatch struct {
	XMLName       xml.Name    `xml:"EFilingBatchXML"`
	FormTypeCode  string      `xml:"FormTypeCode,attr"`
	ActivityCount int         `xml:"ActivityCount,attr"`
	Filer         xmlFiler    `xml:"FilerInformation"`
	Activity      xmlActivity `xml:"Activity"`
}

type xmlFiler struct {
	OrganizationCode string `xml:"OrganizationCode"`
	Name             string `xml:"FilerName"`
	TIN              string `xml:"FilerTIN"`
}

type xmlActivity struct {
	SeqNum        int          `xml:"SeqNum,attr"`
	ReportID      string       `xml:"ReportID"`
	ClosingDate   string       `xml:"ClosingDate"`
	PurchasePrice string       `xml:"PurchasePrice"`
	Property      *xmlProperty `xml:"Property"`
	Parties       []xmlParty   `xml:"Party"`
	Owners        []xmlOwner   `xml:"BeneficialOwner"`
}

type xmlProperty struct {
	SeqNum  int         `xml:"SeqNum,attr"`
	Address *xmlAddress `xml:"Address"`
}

type xmlAddress struct {
	Street  string `xml:"Street"`
	Unit    string `xml:"Unit,omitempty"`
	City    string `xml:"City"`
	State   string `xml:"State,omitempty"`
	ZIP     string `xml:"ZIP,omitempty"`
	Country string `xml:"Country"`
}

type xmlName struct {
	First string `xml:"FirstName"`
	Last  string `xml:"LastName"`
}

type xmlParty struct {
	SeqNum     int         `xml:"SeqNum,attr"`
	Role       string      `xml:"PartyRole,attr"`
	Type       string      `xml:"PartyType,attr"`
	Name       *xmlName    `xml:"Name,omitempty"`
	EntityName string      `xml:"EntityName,omitempty"`
	TIN        string      `xml:"TIN"`
	Phone      string      `xml:"Phone,omitempty"`
	BirthDate  string      `xml:"BirthDate,omitempty"`
	Address    *xmlAddress `xml:"Address"`
}

type xmlOwner struct {
	SeqNum      int         `xml:"SeqNum,attr"`
	Name        xmlName     `xml:"Name"`
	BirthDate   string      `xml:"BirthDate"`
	TIN         string      `xml:"TIN"`
	Citizenship string      `xml:"Citizenship"`
	Address     *xmlAddress `xml:"Address"`
}
