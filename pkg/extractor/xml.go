package extractor

import (
	"strings"
)

// xmlRecord is one <zaznam> element of the dump.
type xmlRecord struct {
	Identifier struct {
		ContractID string `xml:"idSmlouvy"`
		VersionID  string `xml:"idVerze"`
	} `xml:"identifikator"`
	Body       *xmlContract   `xml:"smlouva"`
	Amendments []xmlAmendment `xml:"dodatky>dodatek"`
}

// xmlContract is the <smlouva> body. It carries the union of every party
// layout seen upstream; the shape decoders pick the one that is populated.
type xmlContract struct {
	Title           string          `xml:"predmet"`
	AmountNoVAT     string          `xml:"hodnotaBezDph"`
	AmountWithVAT   string          `xml:"hodnotaVcetneDph"`
	Date            string          `xml:"datumUzavreni"`
	Category        string          `xml:"kategorie"`
	ProcurementType string          `xml:"typRizeni"`
	Coordinates     *xmlCoordinates `xml:"souradnice"`

	// Publisher is the subject that published the record (usually the authority).
	Publisher *xmlParty `xml:"subjekt"`

	Subjects            []xmlTaggedSubject    `xml:"subjekty>subjekt"`
	Supplier            *xmlParty             `xml:"dodavatel"`
	Contractor          *xmlParty             `xml:"zadavatel"`
	Parties             []xmlContractingParty `xml:"smluvniStrana"`
	LegacySupplierName  string                `xml:"nazevDodavatele"`
	LegacySupplierTaxID string                `xml:"icoDodavatele"`
}

type xmlCoordinates struct {
	Lat string `xml:"lat,attr"`
	Lon string `xml:"lon,attr"`
}

type xmlParty struct {
	Name  string `xml:"nazev"`
	TaxID string `xml:"ico"`
}

func (p *xmlParty) party() Party {
	return Party{Name: clean(p.Name), TaxID: clean(p.TaxID)}
}

type xmlTaggedSubject struct {
	Role  string `xml:"role,attr"`
	Name  string `xml:"nazev"`
	TaxID string `xml:"ico"`
}

func (s xmlTaggedSubject) party() Party {
	return Party{Name: clean(s.Name), TaxID: clean(s.TaxID)}
}

type xmlContractingParty struct {
	Name      string `xml:"nazev"`
	TaxID     string `xml:"ico"`
	Recipient string `xml:"prijemce"`
}

func (p xmlContractingParty) party() Party {
	return Party{Name: clean(p.Name), TaxID: clean(p.TaxID)}
}

func (p xmlContractingParty) isRecipient() bool {
	switch strings.ToLower(strings.TrimSpace(p.Recipient)) {
	case "1", "true", "ano":
		return true
	}
	return false
}

// xmlAmendment is a <dodatek>, either nested in <dodatky> or standalone at the
// top level, where it names its parent contract.
type xmlAmendment struct {
	ContractID string `xml:"idSmlouvy"`
	Amount     string `xml:"castka"`
	Date       string `xml:"datum"`
}

// clean trims surrounding whitespace. Inner whitespace is normalised by the
// reconciler, which owns the dedup key.
func clean(s string) string {
	return strings.TrimSpace(s)
}
