package mapping

import "github.com/JonMunkholm/jobetl/internal/core"

// defaultTables is the schema.org JobPosting mapping used when no mapping
// file is configured.
var defaultTables = []Table{
	{
		Name: core.TableJob,
		Columns: []Column{
			{Name: "title", Path: "title"},
			{Name: "industry", Path: "industry"},
			{Name: "description", Path: "description"},
			{Name: "employment_type", Path: "employmentType"},
			{Name: "date_posted", Path: "datePosted", Type: FieldDate},
		},
	},
	{
		Name: core.TableCompany,
		Columns: []Column{
			{Name: "name", Path: "hiringOrganization.name"},
			{Name: "link", Path: "hiringOrganization.sameAs"},
		},
	},
	{
		Name: core.TableEducation,
		Columns: []Column{
			{Name: "required_credential", Path: "educationRequirements.credentialCategory"},
		},
	},
	{
		Name: core.TableExperience,
		Columns: []Column{
			{Name: "months_of_experience", Path: "experienceRequirements.monthsOfExperience", Type: FieldInt},
			// No source field carries seniority.
			{Name: "seniority_level", Path: ""},
		},
	},
	{
		Name: core.TableSalary,
		Columns: []Column{
			{Name: "currency", Path: "estimatedSalary.currency"},
			{Name: "min_value", Path: "estimatedSalary.value.minValue", Type: FieldNumeric},
			{Name: "max_value", Path: "estimatedSalary.value.maxValue", Type: FieldNumeric},
			{Name: "unit", Path: "estimatedSalary.value.unitText"},
		},
	},
	{
		Name: core.TableLocation,
		Columns: []Column{
			{Name: "country", Path: "jobLocation.address.addressCountry"},
			{Name: "locality", Path: "jobLocation.address.addressLocality"},
			{Name: "region", Path: "jobLocation.address.addressRegion"},
			{Name: "postal_code", Path: "jobLocation.address.postalCode"},
			{Name: "street_address", Path: "jobLocation.address.streetAddress"},
			{Name: "latitude", Path: "jobLocation.latitude", Type: FieldNumeric},
			{Name: "longitude", Path: "jobLocation.longitude", Type: FieldNumeric},
		},
	},
}

// Default returns the built-in JobPosting mapping.
func Default() *FieldMapping {
	m, err := New(defaultTables)
	if err != nil {
		panic("mapping: built-in mapping invalid: " + err.Error())
	}
	return m
}
