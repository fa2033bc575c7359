package schema

var signalRecord = &RecordSpec{
	TitleKey:     "title",
	QualifierKey: "priority",
	BodyKey:      "description",
	Clauses:      []Clause{{Label: "Detection", Key: "detection_method"}},
}

// DefaultSteps returns the built-in GTM pipeline: overview, account,
// persona and email, in that order.
func DefaultSteps() []*Step {
	return []*Step{
		{
			Name:        "overview",
			Title:       "Company Overview",
			Description: "What the company sells, to whom, and why it wins.",
			Fields: []FieldSpec{
				{Name: "company_name", Title: "Company Name", Shape: PlainText, Optional: true},
				{Name: "description", Title: "Company Description", Shape: PlainText},
				{Name: "capabilities", Title: "Key Capabilities", Shape: StringList},
				{Name: "business_model", Title: "Business Model", Shape: StringList, Optional: true},
				{Name: "differentiated_value", Title: "Differentiated Value", Shape: StringList, Optional: true},
				{Name: "customer_benefits", Title: "Customer Benefits", Shape: StringList, Optional: true},
				{Name: "alternatives", Title: "Alternatives", Shape: StringList, Optional: true},
				{Name: "testimonials", Title: "Testimonials", Shape: StringList, Optional: true},
			},
		},
		{
			Name:        "account",
			Title:       "Target Account Profile",
			Description: "The ideal customer account and the signals that reveal it.",
			Fields: []FieldSpec{
				{Name: "target_account_name", Title: "Account Segment", Shape: PlainText},
				{Name: "target_account_description", Title: "Account Description", Shape: PlainText},
				{Name: "firmographics", Title: "Firmographics", Shape: StringList, Optional: true},
				{Name: "buying_signals", Title: "Buying Signals", Shape: Records, Record: signalRecord},
				{Name: "target_account_rationale", Title: "Rationale", Shape: StringList, Optional: true},
			},
		},
		{
			Name:        "persona",
			Title:       "Buyer Persona",
			Description: "The person inside the target account who buys.",
			Fields: []FieldSpec{
				{Name: "target_persona_name", Title: "Persona", Shape: PlainText},
				{Name: "target_persona_description", Title: "Persona Description", Shape: PlainText},
				{Name: "role_titles", Title: "Role Titles", Shape: StringList, Optional: true},
				{Name: "responsibilities", Title: "Key Responsibilities", Shape: StringList, Optional: true},
				{Name: "pain_points", Title: "Pain Points", Shape: StringList},
				{Name: "buying_signals", Title: "Persona Buying Signals", Shape: Records, Record: signalRecord, Optional: true},
				{Name: "decision_criteria", Title: "Decision Criteria", Shape: StringList, Optional: true},
			},
		},
		{
			Name:        "email",
			Title:       "Outreach Email",
			Description: "A first-touch email for the persona.",
			Fields: []FieldSpec{
				{Name: "subject_line", Title: "Subject Line", Shape: PlainText},
				{Name: "alternative_subject_lines", Title: "Alternative Subject Lines", Shape: StringList, Optional: true},
				{Name: "greeting", Title: "Greeting", Shape: PlainText, Optional: true},
				{Name: "opening_paragraph", Title: "Opening", Shape: PlainText},
				{Name: "value_proposition", Title: "Value Proposition", Shape: PlainText, Optional: true},
				{Name: "call_to_action", Title: "Call to Action", Shape: PlainText},
				{Name: "signature", Title: "Signature", Shape: PlainText, Optional: true},
			},
		},
	}
}

// Default returns the built-in schema.
func Default() *Schema {
	s, err := New(DefaultSteps()...)
	if err != nil {
		panic(err)
	}
	return s
}
