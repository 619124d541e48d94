package catalog

import (
	"fmt"
	"sort"
)

// Catalog is the canonical set of system field names the organization can
// produce values for. It is pure data: lookups and validation, no I/O.
type Catalog struct {
	fields map[string]SystemField
}

// New builds a catalog from the given fields. Duplicate or invalid field
// definitions are rejected.
func New(fields []SystemField) (*Catalog, error) {
	c := &Catalog{fields: make(map[string]SystemField, len(fields))}
	for _, f := range fields {
		if !f.Valid() {
			return nil, fmt.Errorf("invalid system field definition: %+v", f)
		}
		if _, dup := c.fields[f.Name]; dup {
			return nil, fmt.Errorf("duplicate system field name: %s", f.Name)
		}
		c.fields[f.Name] = f
	}
	return c, nil
}

// Lookup returns the field definition for name.
func (c *Catalog) Lookup(name string) (SystemField, bool) {
	f, ok := c.fields[name]
	return f, ok
}

// Has reports whether name is a known system field.
func (c *Catalog) Has(name string) bool {
	_, ok := c.fields[name]
	return ok
}

// Len returns the number of fields in the catalog.
func (c *Catalog) Len() int { return len(c.fields) }

// Names returns all field names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.fields))
	for n := range c.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UnknownNames returns, in sorted order, the names from the input that are
// not part of the catalog. Used to flag stale-dictionary facts supplied by a
// caller.
func (c *Catalog) UnknownNames(names []string) []string {
	var unknown []string
	for _, n := range names {
		if !c.Has(n) {
			unknown = append(unknown, n)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Default returns the standard clinical/order data dictionary used for
// signable document resolution.
func Default() *Catalog {
	c, err := New(defaultFields)
	if err != nil {
		// defaultFields is a compile-time constant set; a failure here is a
		// programming error.
		panic(err)
	}
	return c
}

var defaultFields = []SystemField{
	{Name: "patient_name", Category: CategoryPatient, DataType: TypeString, Label: "Patient Name"},
	{Name: "patient_first_name", Category: CategoryPatient, DataType: TypeString, Label: "Patient First Name"},
	{Name: "patient_last_name", Category: CategoryPatient, DataType: TypeString, Label: "Patient Last Name"},
	{Name: "patient_dob", Category: CategoryPatient, DataType: TypeDate, Label: "Date of Birth"},
	{Name: "patient_mrn", Category: CategoryPatient, DataType: TypeString, Label: "Medical Record Number"},
	{Name: "patient_gender", Category: CategoryPatient, DataType: TypeEnum, Label: "Gender"},
	{Name: "patient_phone", Category: CategoryPatient, DataType: TypeString, Label: "Patient Phone"},
	{Name: "patient_address", Category: CategoryPatient, DataType: TypeString, Label: "Patient Address"},
	{Name: "patient_city", Category: CategoryPatient, DataType: TypeString, Label: "Patient City"},
	{Name: "patient_state", Category: CategoryPatient, DataType: TypeString, Label: "Patient State"},
	{Name: "patient_zip", Category: CategoryPatient, DataType: TypeString, Label: "Patient ZIP"},

	{Name: "provider_name", Category: CategoryProvider, DataType: TypeString, Label: "Provider Name"},
	{Name: "provider_npi", Category: CategoryProvider, DataType: TypeString, Label: "Provider NPI"},
	{Name: "provider_phone", Category: CategoryProvider, DataType: TypeString, Label: "Provider Phone"},
	{Name: "provider_fax", Category: CategoryProvider, DataType: TypeString, Label: "Provider Fax"},
	{Name: "provider_specialty", Category: CategoryProvider, DataType: TypeString, Label: "Provider Specialty"},

	{Name: "facility_name", Category: CategoryFacility, DataType: TypeString, Label: "Facility Name"},
	{Name: "facility_address", Category: CategoryFacility, DataType: TypeString, Label: "Facility Address"},
	{Name: "facility_phone", Category: CategoryFacility, DataType: TypeString, Label: "Facility Phone"},

	{Name: "insurance_carrier", Category: CategoryInsurance, DataType: TypeString, Label: "Insurance Carrier"},
	{Name: "insurance_policy_number", Category: CategoryInsurance, DataType: TypeString, Label: "Policy Number"},
	{Name: "insurance_group_number", Category: CategoryInsurance, DataType: TypeString, Label: "Group Number"},
	{Name: "medicare_id", Category: CategoryInsurance, DataType: TypeString, Label: "Medicare ID"},
	{Name: "mac_jurisdiction", Category: CategoryInsurance, DataType: TypeString, Label: "MAC Jurisdiction"},

	{Name: "primary_diagnosis", Category: CategoryClinical, DataType: TypeString, Label: "Primary Diagnosis"},
	{Name: "icd10_codes", Category: CategoryClinical, DataType: TypeString, Label: "ICD-10 Codes"},
	{Name: "wound_location", Category: CategoryClinical, DataType: TypeString, Label: "Wound Location"},
	{Name: "wound_type", Category: CategoryClinical, DataType: TypeEnum, Label: "Wound Type"},
	{Name: "wound_length_cm", Category: CategoryClinical, DataType: TypeNumber, Label: "Wound Length (cm)"},
	{Name: "wound_width_cm", Category: CategoryClinical, DataType: TypeNumber, Label: "Wound Width (cm)"},
	{Name: "wound_depth_cm", Category: CategoryClinical, DataType: TypeNumber, Label: "Wound Depth (cm)"},
	{Name: "wound_duration", Category: CategoryClinical, DataType: TypeString, Label: "Wound Duration"},
	{Name: "conservative_care_provided", Category: CategoryClinical, DataType: TypeBoolean, Label: "Conservative Care Provided"},

	{Name: "product_name", Category: CategoryProduct, DataType: TypeString, Label: "Product Name"},
	{Name: "product_code", Category: CategoryProduct, DataType: TypeString, Label: "Product Code"},
	{Name: "product_size", Category: CategoryProduct, DataType: TypeString, Label: "Product Size"},
	{Name: "quantity", Category: CategoryProduct, DataType: TypeNumber, Label: "Quantity"},
	{Name: "application_count", Category: CategoryProduct, DataType: TypeNumber, Label: "Number of Applications"},

	{Name: "order_date", Category: CategoryOther, DataType: TypeDate, Label: "Order Date"},
	{Name: "service_date", Category: CategoryOther, DataType: TypeDate, Label: "Date of Service"},
	{Name: "signature_date", Category: CategorySignature, DataType: TypeDate, Label: "Signature Date"},
	{Name: "physician_signature", Category: CategorySignature, DataType: TypeString, Label: "Physician Signature"},
}
