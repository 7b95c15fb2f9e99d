package extractor

import (
	"fmt"
	"strings"
)

// ShapeName identifies one historical way the dump expresses contract parties.
type ShapeName string

const (
	// ShapeTaggedSubjects: <subjekty><subjekt role="dodavatel|zadavatel">.
	ShapeTaggedSubjects ShapeName = "tagged-subjects"
	// ShapeDirectSupplier: a single <dodavatel> element, optionally <zadavatel>.
	ShapeDirectSupplier ShapeName = "direct-supplier"
	// ShapeContractingParties: repeated <smluvniStrana>, <prijemce>1 marks the supplier.
	ShapeContractingParties ShapeName = "contracting-parties"
	// ShapeLegacyFlat: <nazevDodavatele>/<icoDodavatele> directly on the contract.
	ShapeLegacyFlat ShapeName = "legacy-flat"
)

// Party is a named counterparty with an optional tax id (IČO).
type Party struct {
	Name  string
	TaxID string
}

func (p Party) empty() bool {
	return p.Name == "" && p.TaxID == ""
}

// PartyShape is the closed set of decoded party layouts. Only the types in
// this file implement it.
type PartyShape interface {
	Name() ShapeName
	isPartyShape()
}

// TaggedSubjects is the generic role-tagged subject list.
type TaggedSubjects struct {
	Supplier  Party
	Authority Party
}

// DirectSupplier is the explicit supplier element.
type DirectSupplier struct {
	Supplier  Party
	Authority Party
}

// ContractingParties is the list of contract sides.
type ContractingParties struct {
	Supplier Party
	Others   []Party
}

// LegacyFlat is the oldest layout with supplier fields inline.
type LegacyFlat struct {
	Supplier Party
}

func (TaggedSubjects) Name() ShapeName     { return ShapeTaggedSubjects }
func (DirectSupplier) Name() ShapeName     { return ShapeDirectSupplier }
func (ContractingParties) Name() ShapeName { return ShapeContractingParties }
func (LegacyFlat) Name() ShapeName         { return ShapeLegacyFlat }

func (TaggedSubjects) isPartyShape()     {}
func (DirectSupplier) isPartyShape()     {}
func (ContractingParties) isPartyShape() {}
func (LegacyFlat) isPartyShape()         {}

// parties flattens a decoded shape into supplier and authority.
func parties(shape PartyShape) (supplier, authority Party) {
	switch s := shape.(type) {
	case TaggedSubjects:
		return s.Supplier, s.Authority
	case DirectSupplier:
		return s.Supplier, s.Authority
	case ContractingParties:
		return s.Supplier, Party{}
	case LegacyFlat:
		return s.Supplier, Party{}
	}
	return Party{}, Party{}
}

// shapeDecoder tries to read one shape from a contract body. ok is false when
// the body has no element of that shape.
type shapeDecoder func(body *xmlContract) (shape PartyShape, ok bool)

var decoders = map[ShapeName]shapeDecoder{
	ShapeTaggedSubjects:     decodeTaggedSubjects,
	ShapeDirectSupplier:     decodeDirectSupplier,
	ShapeContractingParties: decodeContractingParties,
	ShapeLegacyFlat:         decodeLegacyFlat,
}

func decodeTaggedSubjects(body *xmlContract) (PartyShape, bool) {
	var shape TaggedSubjects
	found := false
	for _, s := range body.Subjects {
		p := s.party()
		if p.empty() {
			continue
		}
		switch normalizeRole(s.Role) {
		case roleSupplier:
			if shape.Supplier.empty() {
				shape.Supplier = p
				found = true
			}
		case roleAuthority:
			if shape.Authority.empty() {
				shape.Authority = p
			}
		}
	}
	return shape, found
}

func decodeDirectSupplier(body *xmlContract) (PartyShape, bool) {
	if body.Supplier == nil {
		return nil, false
	}
	supplier := body.Supplier.party()
	if supplier.empty() {
		return nil, false
	}
	shape := DirectSupplier{Supplier: supplier}
	if body.Contractor != nil {
		shape.Authority = body.Contractor.party()
	}
	return shape, true
}

func decodeContractingParties(body *xmlContract) (PartyShape, bool) {
	if len(body.Parties) == 0 {
		return nil, false
	}

	var publisher Party
	if body.Publisher != nil {
		publisher = body.Publisher.party()
	}

	supplierIdx := -1
	for i, p := range body.Parties {
		if p.isRecipient() && !p.party().empty() {
			supplierIdx = i
			break
		}
	}
	if supplierIdx < 0 {
		// No recipient flag: the first side that is not the publisher.
		for i, p := range body.Parties {
			party := p.party()
			if party.empty() {
				continue
			}
			if publisher.TaxID != "" && party.TaxID == publisher.TaxID {
				continue
			}
			supplierIdx = i
			break
		}
	}
	if supplierIdx < 0 {
		return nil, false
	}

	shape := ContractingParties{Supplier: body.Parties[supplierIdx].party()}
	for i, p := range body.Parties {
		if i != supplierIdx {
			shape.Others = append(shape.Others, p.party())
		}
	}
	return shape, true
}

func decodeLegacyFlat(body *xmlContract) (PartyShape, bool) {
	p := Party{Name: clean(body.LegacySupplierName), TaxID: clean(body.LegacySupplierTaxID)}
	if p.empty() {
		return nil, false
	}
	return LegacyFlat{Supplier: p}, true
}

const (
	roleSupplier  = "supplier"
	roleAuthority = "authority"
)

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "dodavatel", "supplier", "prijemce", "příjemce":
		return roleSupplier
	case "zadavatel", "objednatel", "authority", "publisher":
		return roleAuthority
	}
	return ""
}

// ShapePolicy is the ordered list of shapes tried for every record. The
// first shape with a matching element wins.
type ShapePolicy []ShapeName

// DefaultShapePolicy probes the generic tagged list first, then the direct
// supplier element, then the contracting-party list, then the legacy fields.
func DefaultShapePolicy() ShapePolicy {
	return ShapePolicy{
		ShapeTaggedSubjects,
		ShapeDirectSupplier,
		ShapeContractingParties,
		ShapeLegacyFlat,
	}
}

// ParseShapePolicy builds a policy from shape names, rejecting unknown or
// repeated names.
func ParseShapePolicy(names []string) (ShapePolicy, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("shape policy must list at least one shape")
	}
	seen := make(map[ShapeName]bool, len(names))
	policy := make(ShapePolicy, 0, len(names))
	for _, n := range names {
		name := ShapeName(strings.ToLower(strings.TrimSpace(n)))
		if _, ok := decoders[name]; !ok {
			return nil, fmt.Errorf("unknown party shape %q", n)
		}
		if seen[name] {
			return nil, fmt.Errorf("party shape %q listed twice", n)
		}
		seen[name] = true
		policy = append(policy, name)
	}
	return policy, nil
}

// detect runs the decoders in policy order.
func (p ShapePolicy) detect(body *xmlContract) (PartyShape, bool) {
	for _, name := range p {
		if shape, ok := decoders[name](body); ok {
			return shape, true
		}
	}
	return nil, false
}
