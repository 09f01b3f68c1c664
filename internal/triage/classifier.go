package triage

import (
	"fmt"
	"strings"

	"github.com/tbourn/clinical-intake/internal/domain"
)

// RuleNone names the fallback when no rule matched.
const RuleNone = "none"

// Result is the outcome of classifying one summary.
type Result struct {
	Urgency         domain.Urgency
	MatchedRule     string
	RiskFactors     []string
	Recommendations string
}

// Classifier evaluates an ordered rule list. The zero value uses DefaultRules.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	Rules []Rule
}

// New returns a Classifier over DefaultRules.
func New() *Classifier { return &Classifier{Rules: DefaultRules} }

// Classify is deterministic: identical inputs yield identical results.
func (c *Classifier) Classify(s *domain.Summary, patient *domain.PatientContext) Result {
	if s == nil {
		s = &domain.Summary{}
	}
	in := Input{
		Emergency: join(strings.Join(s.RedFlags, " "), s.ChiefComplaint, s.HistoryOfPresentIllness),
		Clinical:  join(s.ChiefComplaint, s.HistoryOfPresentIllness),
		Patient:   patient,
	}

	urgency, matched := domain.UrgencyLow, RuleNone
	rules := c.Rules
	if rules == nil {
		rules = DefaultRules
	}
	for _, r := range rules {
		if r.Match(in) {
			urgency, matched = r.Urgency, r.Name
			break
		}
	}

	return Result{
		Urgency:         urgency,
		MatchedRule:     matched,
		RiskFactors:     RiskFactors(s, patient),
		Recommendations: Recommendations(urgency, s, patient),
	}
}

// RiskFactors lists the risks independent of the urgency. Medications and
// allergies come from the summary, merged with any the profile adds; chronic
// conditions and age come from the profile alone.
func RiskFactors(s *domain.Summary, p *domain.PatientContext) []string {
	out := []string{}
	if p != nil {
		for _, c := range p.ChronicConditions {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, "Condición crónica: "+c)
			}
		}
	}
	if n := len(medications(s, p)); n > 0 {
		out = append(out, fmt.Sprintf("Paciente toma %d medicamento(s)", n))
	}
	for _, a := range allergies(s, p) {
		out = append(out, "Alergia: "+a)
	}
	if p != nil && p.Age != nil {
		switch {
		case *p.Age < 5:
			out = append(out, "Paciente pediátrico menor de 5 años")
		case *p.Age > 65:
			out = append(out, "Paciente adulto mayor (>65 años)")
		}
	}
	return out
}

var templates = map[domain.Urgency]string{
	domain.UrgencyEmergency: "⚠️ ATENCIÓN MÉDICA INMEDIATA REQUERIDA:\n" +
		"- Acudir a emergencias inmediatamente o llamar al 911/105\n" +
		"- No conducir, solicitar ambulancia o transporte asistido\n" +
		"- No ingerir alimentos ni medicamentos hasta evaluación médica\n",
	domain.UrgencyHigh: "🔴 ATENCIÓN MÉDICA URGENTE (dentro de las próximas horas):\n" +
		"- Acudir a centro de salud u hospital en las próximas 2-4 horas\n" +
		"- Monitorear síntomas de cerca\n" +
		"- Preparar lista de medicamentos actuales y alergias\n",
	domain.UrgencyModerate: "🟡 ATENCIÓN MÉDICA NECESARIA (24-48 horas):\n" +
		"- Agendar cita médica en las próximas 24-48 horas\n" +
		"- Mantener reposo relativo\n" +
		"- Hidratación adecuada\n",
	domain.UrgencyLow: "🟢 CUIDADOS GENERALES:\n" +
		"- Descanso adecuado\n" +
		"- Hidratación\n" +
		"- Consultar si los síntomas empeoran\n",
}

// Recommendations renders the template for the level followed by the allergy
// block when the summary or profile lists any, and the chronic-condition block
// when the profile has any.
func Recommendations(u domain.Urgency, s *domain.Summary, p *domain.PatientContext) string {
	var b strings.Builder
	b.WriteString(templates[u])
	if list := allergies(s, p); len(list) > 0 {
		b.WriteString("\n⚠️ ALERGIAS CONOCIDAS: ")
		b.WriteString(strings.Join(list, ", "))
		b.WriteString("\n- Informar al personal médico sobre alergias")
	}
	if p == nil {
		return b.String()
	}
	if chronic := nonBlank(p.ChronicConditions); len(chronic) > 0 {
		b.WriteString("\n📋 CONDICIONES CRÓNICAS: ")
		b.WriteString(strings.Join(chronic, ", "))
	}
	return b.String()
}

func medications(s *domain.Summary, p *domain.PatientContext) []string {
	var fromSummary, fromProfile []string
	if s != nil {
		fromSummary = s.Medications
	}
	if p != nil {
		fromProfile = p.CurrentMedications
	}
	return merge(fromSummary, fromProfile)
}

func allergies(s *domain.Summary, p *domain.PatientContext) []string {
	var fromSummary, fromProfile []string
	if s != nil {
		fromSummary = s.Allergies
	}
	if p != nil {
		fromProfile = p.Allergies
	}
	return merge(fromSummary, fromProfile)
}

// merge returns the non-blank entries of both lists in order, dropping
// case-insensitive repeats.
func merge(first, second []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range [][]string{first, second} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			k := fold(v)
			if v == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
