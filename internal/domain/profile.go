package domain

// PatientContext is the read-only slice of a patient profile used to enrich
// classification. It is owned by the profile service.
type PatientContext struct {
	UserID             int64    `json:"userId"`
	Age                *int     `json:"age,omitempty"`
	ChronicConditions  []string `json:"chronicConditions"`
	Allergies          []string `json:"allergies"`
	CurrentMedications []string `json:"currentMedications"`
	IsPregnant         bool     `json:"isPregnant"`
	ConsentForAI       bool     `json:"consentForAIProcessing"`
}
