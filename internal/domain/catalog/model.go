package catalog

// Category groups system fields by the kind of fact they describe.
type Category string

const (
	CategoryPatient   Category = "patient"
	CategoryProvider  Category = "provider"
	CategoryFacility  Category = "facility"
	CategoryInsurance Category = "insurance"
	CategoryClinical  Category = "clinical"
	CategoryProduct   Category = "product"
	CategorySignature Category = "signature"
	CategoryOther     Category = "other"
)

// DataType is the declared type of a system field's value.
type DataType string

const (
	TypeString  DataType = "string"
	TypeDate    DataType = "date"
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeEnum    DataType = "enum"
)

// SystemField is one named, typed slot in the organization's canonical data
// dictionary. Names are globally unique and immutable once any mapping
// references them.
type SystemField struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	DataType DataType `json:"data_type"`
	Label    string   `json:"label,omitempty"`
}

var validCategories = map[Category]bool{
	CategoryPatient: true, CategoryProvider: true, CategoryFacility: true,
	CategoryInsurance: true, CategoryClinical: true, CategoryProduct: true,
	CategorySignature: true, CategoryOther: true,
}

var validDataTypes = map[DataType]bool{
	TypeString: true, TypeDate: true, TypeNumber: true, TypeBoolean: true, TypeEnum: true,
}

// Valid reports whether the field has a name, a known category and a known
// data type.
func (f SystemField) Valid() bool {
	return f.Name != "" && validCategories[f.Category] && validDataTypes[f.DataType]
}
