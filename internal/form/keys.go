// Package form holds the rental-contract wizard values and their
// persisted snapshot.
package form

import (
	"fmt"

	"github.com/platinummonkey/leasescan/internal/extract"
)

// Key identifies one wizard field.
type Key string

// Landlord identity
const (
	LandlordName         Key = "landlordName"
	LandlordPassport     Key = "landlordPassport"
	LandlordIssuedBy     Key = "landlordIssuedBy"
	LandlordIssueDate    Key = "landlordIssueDate"
	LandlordDivisionCode Key = "landlordDivisionCode"
	LandlordRegistration Key = "landlordRegistration"
)

// Tenant identity
const (
	TenantName         Key = "tenantName"
	TenantPassport     Key = "tenantPassport"
	TenantIssuedBy     Key = "tenantIssuedBy"
	TenantIssueDate    Key = "tenantIssueDate"
	TenantDivisionCode Key = "tenantDivisionCode"
	TenantRegistration Key = "tenantRegistration"
)

// Apartment, terms and meters
const (
	ApartmentAddress   Key = "apartmentAddress"
	ApartmentArea      Key = "apartmentArea"
	RoomsCount         Key = "roomsCount"
	BasisDocument      Key = "basisDocument"
	RentAmount         Key = "rentAmount"
	DepositAmount      Key = "depositAmount"
	ContractStart      Key = "contractStart"
	ContractEnd        Key = "contractEnd"
	ElectricityCounter Key = "electricityCounter"
	HotWaterCounter    Key = "hotWaterCounter"
	ColdWaterCounter   Key = "coldWaterCounter"
)

// ResidentsField names the residents list in validation reports.
const ResidentsField = "residents"

// AllKeys lists every wizard field in form order. All of them are required.
var AllKeys = []Key{
	LandlordName, LandlordPassport, LandlordIssuedBy, LandlordIssueDate, LandlordDivisionCode, LandlordRegistration,
	TenantName, TenantPassport, TenantIssuedBy, TenantIssueDate, TenantDivisionCode, TenantRegistration,
	ApartmentAddress, ApartmentArea, RoomsCount, BasisDocument,
	RentAmount, DepositAmount, ContractStart, ContractEnd,
	ElectricityCounter, HotWaterCounter, ColdWaterCounter,
}

var knownKeys = func() map[Key]struct{} {
	m := make(map[Key]struct{}, len(AllKeys))
	for _, k := range AllKeys {
		m[k] = struct{}{}
	}
	return m
}()

// Valid reports whether k is a wizard field.
func (k Key) Valid() bool {
	_, ok := knownKeys[k]
	return ok
}

// ParseKey resolves a wizard field by name.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, s)
	}
	return k, nil
}

// Role selects which identity group receives scanned passport fields.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTenant, RoleLandlord:
		return Role(s), nil
	default:
		return "", fmt.Errorf("invalid role %q (must be tenant or landlord)", s)
	}
}

// Binding resolves each extracted field kind to the form field of one role.
type Binding map[extract.FieldKind]Key

var bindings = map[Role]Binding{
	RoleTenant: {
		extract.FullName:         TenantName,
		extract.PassportNumber:   TenantPassport,
		extract.IssueDate:        TenantIssueDate,
		extract.DivisionCode:     TenantDivisionCode,
		extract.IssuingAuthority: TenantIssuedBy,
	},
	RoleLandlord: {
		extract.FullName:         LandlordName,
		extract.PassportNumber:   LandlordPassport,
		extract.IssueDate:        LandlordIssueDate,
		extract.DivisionCode:     LandlordDivisionCode,
		extract.IssuingAuthority: LandlordIssuedBy,
	},
}

// Field returns the form field that receives kind for role.
func Field(role Role, kind extract.FieldKind) (Key, bool) {
	b, ok := bindings[role]
	if !ok {
		return "", false
	}
	k, ok := b[kind]
	return k, ok
}

// BindingFor returns a copy of the full binding for role.
func BindingFor(role Role) (Binding, error) {
	b, ok := bindings[role]
	if !ok {
		return nil, fmt.Errorf("invalid role %q (must be tenant or landlord)", role)
	}
	out := make(Binding, len(b))
	for kind, key := range b {
		out[kind] = key
	}
	return out, nil
}

// Apply maps extracted fields onto form keys. Only found fields appear in
// the result.
func (b Binding) Apply(fields extract.Fields) map[Key]string {
	out := make(map[Key]string, fields.Len())
	for _, kind := range fields.Kinds() {
		key, ok := b[kind]
		if !ok {
			continue
		}
		v, _ := fields.Get(kind)
		out[key] = v
	}
	return out
}
