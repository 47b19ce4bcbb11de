package core

// DefaultSchema returns the clinical assessment report schema used when a
// run has no template.
func DefaultSchema() *Schema {
	return &Schema{
		Title: "Psychological assessment report",
		Sections: []Field{
			text("Clinician", "The clinician who wrote the report."),
			text("Client", "The client the report is about."),
			text("Date", "The date the report was written."),
			text("Reason", "Why the client came for consultation: who referred them, presenting symptoms and what they hope to achieve."),
			text("BehavioralObservations", "Observations of the client's presentation and behavior during the session, such as grooming, eye contact, speech and signs of anxiety."),
			text("MentalStatusExamination", "Assessment of the client's mental state: orientation, thought process, mood and affect, risk, perceptual disturbances."),
			namedItems("History", "Background history learned from the conversation.",
				"History category, such as family, medical, developmental, educational, occupational, psychiatric, social or relationship history.",
				"What was learned about this part of the client's history."),
			namedItems("AssessmentProcess", "Assessment procedures carried out in this consultation.",
				"Assessment procedure, such as clinical interview, mental status examination or behavioral observation.",
				"What the procedure involved and what it covered."),
			text("PsychologicalAssessment", "Clinical assessment of the client based on the information gathered."),
			text("SummaryAndInterpretationOfFindings", "Summary and interpretation of the findings, including strengths and coping mechanisms."),
			text("SummaryAndFormulation", "Formulation tying the presenting problems, stressors and protective factors together."),
			namedItems("Recommendations", "Recommendations for the client.",
				"Recommendation, such as individual therapy, sleep hygiene education or stress management.",
				"What the recommendation entails and why it helps."),
			text("ActivitiesDescription", "Overview of the positive psychology approach recommended for the client."),
			{
				Name:        "ActivitiesList",
				Kind:        KindObject,
				Description: "Positive psychology activities for the client, such as gratitude practice or strength identification.",
				Required:    true,
				Fields: []Field{{
					Name:     "items",
					Kind:     KindArray,
					Required: true,
					Items: &Field{
						Kind:        KindObject,
						Description: "One activity.",
						Fields: []Field{
							{Name: "Name", Kind: KindString, Description: "Activity name.", Required: true},
							{Name: "Activity", Kind: KindString, Description: "What the client should do.", Required: true},
							{Name: "Goal", Kind: KindString, Description: "What the activity is meant to achieve.", Required: true},
						},
					},
				}},
			},
		},
	}
}

func text(name, description string) Field {
	return Field{Name: name, Kind: KindString, Description: description, Required: true}
}

func namedItems(name, description, itemName, itemDescription string) Field {
	return Field{
		Name:        name,
		Kind:        KindObject,
		Description: description,
		Required:    true,
		Fields: []Field{{
			Name:     "items",
			Kind:     KindArray,
			Required: true,
			Items: &Field{
				Kind:        KindObject,
				Description: description,
				Fields: []Field{
					{Name: "name", Kind: KindString, Description: itemName, Required: true},
					{Name: "description", Kind: KindString, Description: itemDescription, Required: true},
				},
			},
		}},
	}
}
