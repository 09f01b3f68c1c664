// Package triage maps a structured clinical summary to an urgency level.
//
// Classification is an ordered cascade of rules evaluated first-match-wins:
// every EMERGENCY rule precedes every HIGH rule, which precede MODERATE rules.
// When nothing matches the result is LOW. Each rule is a plain value so it can
// be tested on its own.
package triage

import "github.com/tbourn/clinical-intake/internal/domain"

// Input is the folded text a rule inspects.
type Input struct {
	// Emergency is red flags + chief complaint + history.
	Emergency string
	// Clinical is chief complaint + history.
	Clinical string
	// Patient is optional profile context.
	Patient *domain.PatientContext
}

// Rule pairs a predicate with the urgency it yields.
type Rule struct {
	Name    string
	Urgency domain.Urgency
	Match   func(in Input) bool
}

// Emergency phrase markers, Spanish first with English equivalents.
var emergencyMarkers = []string{
	"dificultad respiratoria severa", "dificultad para respirar", "severe respiratory distress", "difficulty breathing", "shortness of breath",
	"dolor torácico", "dolor en el pecho", "dolor de pecho", "chest pain",
	"pérdida de conciencia", "desmayo", "inconsciencia", "loss of consciousness", "fainting", "unconscious",
	"convulsiones", "convulsión", "seizure",
	"sangrado abundante", "hemorragia", "heavy bleeding", "hemorrhage",
	"visión borrosa", "pérdida de visión", "blurred vision", "vision loss", "loss of vision",
	"debilidad en un lado", "parálisis", "one-sided weakness", "paralysis",
	"confusión severa", "desorientación", "severe confusion", "disorientation",
	"sospecha de meningitis", "rigidez de nuca intensa", "suspected meningitis", "stiff neck",
}

var (
	highFeverMarkers  = []string{"fiebre alta", "high fever", "39", "40", "41"}
	chillsMarkers     = []string{"escalofríos", "escalofrio", "temblor", "chills", "shivering", "tremor"}
	severePainMarkers = []string{"dolor intenso", "dolor severo", "dolor persistente", "severe pain", "intense pain", "persistent pain"}
	neuroMarkers      = []string{"mareo intenso", "vértigo", "vertigo", "cefalea intensa", "dolor de cabeza intenso", "severe dizziness", "severe headache"}
	pregnancyMarkers  = []string{"sangrado", "dolor abdominal", "contracciones", "bleeding", "abdominal pain", "contractions"}

	moderatePainMarkers = []string{"dolor moderado", "molestia", "moderate pain", "discomfort"}
	mildFeverMarkers    = []string{"fiebre", "fever", "38", "38.5"}
	highFeverNumbers    = []string{"39", "40", "41"}
	digestiveMarkers    = []string{"vómito", "vomito", "diarrea", "náuseas persistentes", "vomiting", "diarrhea", "persistent nausea"}
)

// symptomCategories are counted independently by the multi-symptom rule.
var symptomCategories = [][]string{
	{"dolor", "pain"},
	{"fiebre", "fever"},
	{"náusea", "nausea", "vómito", "vomito", "vomit"},
	{"mareo", "dizz"},
}

// DefaultRules is the cascade in evaluation order.
var DefaultRules = []Rule{
	{Name: "emergency_marker", Urgency: domain.UrgencyEmergency, Match: func(in Input) bool {
		return containsAny(in.Emergency, emergencyMarkers...)
	}},
	{Name: "high_fever_with_chills", Urgency: domain.UrgencyHigh, Match: func(in Input) bool {
		return containsAny(in.Clinical, highFeverMarkers...) && containsAny(in.Clinical, chillsMarkers...)
	}},
	{Name: "severe_pain", Urgency: domain.UrgencyHigh, Match: func(in Input) bool {
		return containsAny(in.Clinical, severePainMarkers...)
	}},
	{Name: "severe_neurological", Urgency: domain.UrgencyHigh, Match: func(in Input) bool {
		return containsAny(in.Clinical, neuroMarkers...)
	}},
	{Name: "pregnancy_warning", Urgency: domain.UrgencyHigh, Match: func(in Input) bool {
		return in.Patient != nil && in.Patient.IsPregnant && containsAny(in.Clinical, pregnancyMarkers...)
	}},
	{Name: "moderate_pain", Urgency: domain.UrgencyModerate, Match: func(in Input) bool {
		return containsAny(in.Clinical, moderatePainMarkers...)
	}},
	{Name: "mild_fever", Urgency: domain.UrgencyModerate, Match: func(in Input) bool {
		return containsAny(in.Clinical, mildFeverMarkers...) && !containsAny(in.Clinical, highFeverNumbers...)
	}},
	{Name: "digestive", Urgency: domain.UrgencyModerate, Match: func(in Input) bool {
		return containsAny(in.Clinical, digestiveMarkers...)
	}},
	{Name: "multiple_symptoms", Urgency: domain.UrgencyModerate, Match: func(in Input) bool {
		return symptomCount(in.Clinical) >= 2
	}},
}

func symptomCount(text string) int {
	n := 0
	for _, cat := range symptomCategories {
		if containsAny(text, cat...) {
			n++
		}
	}
	return n
}
