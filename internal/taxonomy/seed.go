package taxonomy

// DefaultTerms is the built-in fallback vocabulary used when no workbook
// or database source is configured. Ids follow the reference scheme
// (D/S/SS prefixes).
func DefaultTerms() map[Vocabulary][]Term {
	return map[Vocabulary][]Term{
		VocabDiscipline: {
			{ID: "D01", Name: "Blast Protection", Category: "structural"},
			{ID: "D02", Name: "CBRN Protection", Category: "environmental"},
			{ID: "D03", Name: "Cybersecurity", Category: "electronic"},
			{ID: "D04", Name: "Electronic Security Systems", Category: "electronic"},
			{ID: "D05", Name: "Entry Control", Category: "operational"},
			{ID: "D06", Name: "Perimeter Security", Category: "physical"},
			{ID: "D07", Name: "Physical Security", Category: "physical"},
			{ID: "D08", Name: "Structural Hardening", Category: "structural"},
			{ID: "D09", Name: "Surveillance", Category: "electronic"},
		},
		VocabSector: {
			{ID: "S01", Name: "Commercial Facilities"},
			{ID: "S02", Name: "Energy"},
			{ID: "S03", Name: "Government Facilities"},
			{ID: "S04", Name: "Healthcare and Public Health"},
			{ID: "S05", Name: "Transportation Systems"},
			{ID: "S06", Name: "Water and Wastewater Systems"},
		},
		VocabSubsector: {
			{ID: "SS01", Name: "Education Facilities"},
			{ID: "SS02", Name: "Electricity"},
			{ID: "SS03", Name: "Mass Transit"},
			{ID: "SS04", Name: "National Monuments and Icons"},
			{ID: "SS05", Name: "Public Assembly"},
		},
	}
}
