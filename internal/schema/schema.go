// Package schema defines the record-type descriptors for the Wisconsin
// real-estate sources the ingestion service accepts. Each source type has a
// static field table that both column validation and record building consult,
// so there is a single place that says what a PARCEL, RETR or DFI record
// looks like on the wire.
package schema

import (
	"fmt"
	"strings"
)

// SourceType identifies the kind of records a file contains.
type SourceType string

const (
	SourceParcel SourceType = "PARCEL"
	SourceRETR   SourceType = "RETR"
	SourceDFI    SourceType = "DFI"
)

// ParseSourceType converts a string to a SourceType, case-insensitively.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(strings.ToUpper(strings.TrimSpace(s))) {
	case SourceParcel:
		return SourceParcel, nil
	case SourceRETR:
		return SourceRETR, nil
	case SourceDFI:
		return SourceDFI, nil
	}
	return "", fmt.Errorf("unknown source type %q (expected PARCEL, RETR or DFI)", s)
}

// FileFormat identifies the container a source arrives in.
type FileFormat string

const (
	FormatCSV FileFormat = "CSV"
	FormatGDB FileFormat = "GDB"
)

// Kind is the value type a field is coerced to during record building.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
)

// Field describes one column of a record type.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// GeometryWKT and GeometryType are the two fields a parcel record cannot
// exist without. They are lowercase on the wire, unlike the V11 attribute
// columns.
const (
	GeometryWKT  = "geometry_wkt"
	GeometryType = "geometry_type"
)

// Descriptor is the full static field table for one source type.
type Descriptor struct {
	Source SourceType
	Fields []Field
}

// parcelFields follows the Wisconsin V11 Statewide Parcel Database schema.
var parcelFields = []Field{
	{Name: "STATEID", Kind: KindString},
	{Name: "PARCELID", Kind: KindString},
	{Name: "TAXPARCELID", Kind: KindString},
	{Name: "ADDNUMPREFIX", Kind: KindString},
	{Name: "ADDNUM", Kind: KindString},
	{Name: "ADDNUMSUFFIX", Kind: KindString},
	{Name: "PREFIX", Kind: KindString},
	{Name: "STREETNAME", Kind: KindString},
	{Name: "STREETTYPE", Kind: KindString},
	{Name: "SUFFIX", Kind: KindString},
	{Name: "LANDMARKNAME", Kind: KindString},
	{Name: "UNITTYPE", Kind: KindString},
	{Name: "UNITID", Kind: KindString},
	{Name: "PLACENAME", Kind: KindString},
	{Name: "ZIPCODE", Kind: KindString},
	{Name: "ZIP4", Kind: KindString},
	{Name: "CONAME", Kind: KindString},
	{Name: "OWNERNME1", Kind: KindString},
	{Name: "OWNERNME2", Kind: KindString},
	{Name: "PSTLADRESS", Kind: KindString},
	{Name: "SITEADRESS", Kind: KindString},
	{Name: "CNTASSDVALUE", Kind: KindFloat},
	{Name: "LNDVALUE", Kind: KindFloat},
	{Name: "IMPVALUE", Kind: KindFloat},
	{Name: "ESTFMKVALUE", Kind: KindFloat},
	{Name: "ASSESSEDBY", Kind: KindString},
	{Name: "ASSESSYEAR", Kind: KindString},
	{Name: "PROPCLASS", Kind: KindString},
	{Name: "AUXCLASS", Kind: KindString},
	{Name: "ASSDACRES", Kind: KindFloat},
	{Name: "GISACRES", Kind: KindFloat},
	{Name: "PARCELDEED", Kind: KindString},
	{Name: "PARCELSRC", Kind: KindString},
	{Name: "PARCELSRCDATE", Kind: KindString},
	{Name: "LEGALAREA", Kind: KindString},
	{Name: "SCHOOLDIST", Kind: KindString},
	{Name: "SCHOOLDISTNO", Kind: KindString},
	{Name: GeometryWKT, Kind: KindString, Required: true},
	{Name: GeometryType, Kind: KindString, Required: true},
}

// retrFields follows the Wisconsin DOR Real Estate Transfer Return layout.
var retrFields = []Field{
	{Name: "PARCEL_ID", Kind: KindString},
	{Name: "DOC_NUMBER", Kind: KindString},
	{Name: "TRANSFER_DATE", Kind: KindString},
	{Name: "RECORDING_DATE", Kind: KindString},
	{Name: "GRANTOR", Kind: KindString},
	{Name: "GRANTEE", Kind: KindString},
	{Name: "SALE_AMOUNT", Kind: KindFloat},
	{Name: "CONVEYANCE_FEE", Kind: KindFloat},
	{Name: "PROPERTY_TYPE", Kind: KindString},
	{Name: "TRANSFER_TYPE", Kind: KindString},
	{Name: "MUNICIPALITY", Kind: KindString},
	{Name: "COUNTY", Kind: KindString},
	{Name: "IMPROVED", Kind: KindString},
	{Name: "NUM_PARCELS", Kind: KindInt},
}

// dfiFields follows the Wisconsin DFI corporate-entity registry layout.
var dfiFields = []Field{
	{Name: "ENTITY_ID", Kind: KindString},
	{Name: "ENTITY_NAME", Kind: KindString},
	{Name: "ENTITY_TYPE", Kind: KindString},
	{Name: "STATUS", Kind: KindString},
	{Name: "FORMATION_DATE", Kind: KindString},
	{Name: "EFFECTIVE_DATE", Kind: KindString},
	{Name: "EXPIRATION_DATE", Kind: KindString},
	{Name: "AGENT_NAME", Kind: KindString},
	{Name: "AGENT_ADDRESS", Kind: KindString},
	{Name: "AGENT_CITY", Kind: KindString},
	{Name: "AGENT_STATE", Kind: KindString},
	{Name: "AGENT_ZIP", Kind: KindString},
	{Name: "PRINCIPAL_ADDRESS", Kind: KindString},
	{Name: "PRINCIPAL_CITY", Kind: KindString},
	{Name: "PRINCIPAL_STATE", Kind: KindString},
	{Name: "PRINCIPAL_ZIP", Kind: KindString},
}

var descriptors = map[SourceType]*Descriptor{
	SourceParcel: {Source: SourceParcel, Fields: parcelFields},
	SourceRETR:   {Source: SourceRETR, Fields: retrFields},
	SourceDFI:    {Source: SourceDFI, Fields: dfiFields},
}

// ForSource returns the descriptor for a source type.
func ForSource(st SourceType) (*Descriptor, error) {
	d, ok := descriptors[st]
	if !ok {
		return nil, fmt.Errorf("no descriptor for source type %q", st)
	}
	return d, nil
}

// field looks up a field by name, case-insensitively.
func (d *Descriptor) field(name string) (Field, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, f := range d.Fields {
		if strings.ToUpper(f.Name) == name {
			return f, true
		}
	}
	return Field{}, false
}

// Required returns the names of all required fields.
func (d *Descriptor) Required() []string {
	var req []string
	for _, f := range d.Fields {
		if f.Required {
			req = append(req, f.Name)
		}
	}
	return req
}
