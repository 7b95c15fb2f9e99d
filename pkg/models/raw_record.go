package models

// RecordKind distinguishes the top-level elements of a dump.
type RecordKind string

const (
	RecordKindContract  RecordKind = "contract"
	RecordKindAmendment RecordKind = "amendment"
)

// RawAmendment is an amendment as it appears in the dump, before parsing.
type RawAmendment struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
}

// RawRecord is one top-level dump record with every value still in its
// upstream string form. Numbers and dates are parsed by the reconciler.
type RawRecord struct {
	// Index is the 1-based position of the record in the document.
	Index int        `json:"index"`
	Kind  RecordKind `json:"kind"`

	ExternalID      string `json:"external_id,omitempty"`
	Title           string `json:"title"`
	Amount          string `json:"amount"`
	Date            string `json:"date"`
	Category        string `json:"category,omitempty"`
	ProcurementType string `json:"procurement_type,omitempty"`
	Latitude        string `json:"latitude,omitempty"`
	Longitude       string `json:"longitude,omitempty"`

	SupplierName  string `json:"supplier_name,omitempty"`
	SupplierTaxID string `json:"supplier_tax_id,omitempty"`
	Authority     string `json:"authority,omitempty"`

	// Shape names the party decoder that matched; empty when none did.
	Shape string `json:"shape,omitempty"`
	// NoSupplier is set when no decoder could determine a supplier.
	NoSupplier bool `json:"no_supplier,omitempty"`

	Amendments []RawAmendment `json:"amendments,omitempty"`

	// ParentExternalID links a standalone amendment record to its contract.
	ParentExternalID string `json:"parent_external_id,omitempty"`

	// ParseErr is set when the record could not be decoded at all.
	ParseErr error `json:"-"`
}
