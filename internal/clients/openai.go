package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/clinical-intake/internal/config"
	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/knowledge"
)

// ErrAssistantUnavailable is returned by Reply when no API key is configured.
var ErrAssistantUnavailable = errors.New("assistant unavailable")

// Fallback summary texts used when no model output is usable.
const (
	FallbackComplaint = "No especificado"
	FallbackHistory   = "Información recopilada durante la conversación (resumen automático generado por falta de servicio LLM)"
	FallbackPast      = "Sin antecedentes relevantes"
	FallbackNotes     = "Resumen generado automáticamente. Requiere revisión médica."
)

// ChatCompleter is the subset of *openai.Client the assistant needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Assistant generates the interviewer's replies and the closing clinical
// summary. Prompts are grounded on the top knowledge entries for the
// patient's own words.
type Assistant struct {
	Client     ChatCompleter // nil when OPENAI_API_KEY is unset
	Model      string
	Knowledge  knowledge.Index
	TopK       int
	MaxHistory int
	Log        zerolog.Logger
}

// NewAssistant builds an assistant from cfg. kb may be nil.
func NewAssistant(cfg config.AssistantConfig, kb knowledge.Index, log zerolog.Logger) *Assistant {
	a := &Assistant{
		Model:      cfg.Model,
		Knowledge:  kb,
		TopK:       3,
		MaxHistory: cfg.MaxHistory,
		Log:        log.With().Str("component", "assistant").Logger(),
	}
	if strings.TrimSpace(cfg.OpenAIKey) != "" {
		a.Client = openai.NewClient(cfg.OpenAIKey)
	}
	return a
}

// Available reports whether a model client is configured.
func (a *Assistant) Available() bool { return a != nil && a.Client != nil }

// Reply asks the model for the next interview question.
func (a *Assistant) Reply(ctx context.Context, s *domain.Session, p *domain.PatientContext) (string, error) {
	if !a.Available() {
		return "", ErrAssistantUnavailable
	}
	ctx, span := otel.Tracer("clients/Assistant").Start(ctx, "Reply")
	defer span.End()
	span.SetAttributes(attribute.Int64("session.id", s.ID))

	out, err := a.complete(ctx, a.systemPrompt(p, false, a.lookup(s)), a.conversation(s), 0.7)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return out, nil
}

// Summarize derives the structured summary of s. It never fails: model errors
// and unparsable output degrade to FallbackSummary.
func (a *Assistant) Summarize(ctx context.Context, s *domain.Session, p *domain.PatientContext) (*domain.Summary, error) {
	if !a.Available() {
		return FallbackSummary(s, p), nil
	}
	ctx, span := otel.Tracer("clients/Assistant").Start(ctx, "Summarize")
	defer span.End()
	span.SetAttributes(attribute.Int64("session.id", s.ID))

	user := a.conversation(s) + "\n" + summaryFormat
	out, err := a.complete(ctx, a.systemPrompt(p, true, a.lookup(s)), user, 0.2)
	if err != nil {
		span.RecordError(err)
		a.Log.Error().Err(err).Int64("session_id", s.ID).Msg("summary generation failed; using fallback")
		return FallbackSummary(s, p), nil
	}
	sum, err := ParseSummary(out, s, p)
	if err != nil {
		a.Log.Warn().Err(err).Int64("session_id", s.ID).Msg("unparsable summary; using fallback")
		return FallbackSummary(s, p), nil
	}
	return sum, nil
}

func (a *Assistant) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := a.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("assistant: empty completion")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("assistant: empty completion")
	}
	return out, nil
}

// lookup queries the knowledge base with the initial reason and the patient
// messages among the last three turns.
func (a *Assistant) lookup(s *domain.Session) []knowledge.Result {
	if a.Knowledge == nil || a.Knowledge.Len() == 0 {
		return nil
	}
	parts := []string{s.InitialReason}
	start := len(s.Messages) - 3
	if start < 0 {
		start = 0
	}
	for _, m := range s.Messages[start:] {
		if m.Sender == domain.SenderPatient {
			parts = append(parts, m.Text)
		}
	}
	res := a.Knowledge.TopK(strings.Join(parts, " "), a.TopK)
	a.Log.Debug().Int("entries", len(res)).Int64("session_id", s.ID).Msg("knowledge lookup")
	return res
}

func (a *Assistant) systemPrompt(p *domain.PatientContext, forSummary bool, kb []knowledge.Result) string {
	var b strings.Builder
	b.WriteString("Eres un asistente médico virtual especializado en realizar anamnesis médicas. ")
	b.WriteString("Tu objetivo es recopilar información médica relevante de manera empática, clara y profesional. ")
	if !forSummary {
		b.WriteString("Haz preguntas abiertas y específicas sobre síntomas, duración, intensidad y factores relacionados. ")
		b.WriteString("Sé empático y usa un lenguaje sencillo. ")
	}
	b.WriteString("Identifica posibles señales de alarma (red flags) que requieran atención urgente.\n\n")

	if len(kb) > 0 {
		b.WriteString("===== CONOCIMIENTO MÉDICO DE REFERENCIA =====\n")
		for _, k := range kb {
			fmt.Fprintf(&b, "► %s:\n  Descripción: %s\n", k.Topic, k.Description)
			if len(k.Symptoms) > 0 {
				fmt.Fprintf(&b, "  Síntomas comunes: %s\n", strings.Join(k.Symptoms, ", "))
			}
			if len(k.Recommendations) > 0 {
				fmt.Fprintf(&b, "  Recomendaciones: %s\n", strings.Join(k.Recommendations, "; "))
			}
			if len(k.RedFlags) > 0 {
				fmt.Fprintf(&b, "  ⚠️ SEÑALES DE ALARMA: %s\n", strings.Join(k.RedFlags, ", "))
			}
			b.WriteByte('\n')
		}
		b.WriteString("===== FIN DEL CONOCIMIENTO =====\n\n")
		b.WriteString("Presta especial atención a las señales de alarma mencionadas.\n\n")
	}

	if p != nil && p.ConsentForAI {
		b.WriteString("INFORMACIÓN DEL PACIENTE:\n")
		if p.Age != nil {
			fmt.Fprintf(&b, "- Edad: %d años\n", *p.Age)
		}
		if len(p.Allergies) > 0 {
			fmt.Fprintf(&b, "- Alergias conocidas: %s\n", strings.Join(p.Allergies, ", "))
		}
		if len(p.ChronicConditions) > 0 {
			fmt.Fprintf(&b, "- Condiciones crónicas: %s\n", strings.Join(p.ChronicConditions, ", "))
		}
		if len(p.CurrentMedications) > 0 {
			fmt.Fprintf(&b, "- Medicamentos actuales: %s\n", strings.Join(p.CurrentMedications, ", "))
		}
		if p.IsPregnant {
			b.WriteString("- Embarazo en curso\n")
		}
		b.WriteByte('\n')
	}

	if forSummary {
		b.WriteString("Tu tarea es analizar toda la conversación y generar un resumen médico estructurado. ")
		b.WriteString("Identifica motivo de consulta, historia de enfermedad actual, antecedentes relevantes, ")
		b.WriteString("medicamentos, alergias y ESPECIALMENTE señales de alarma que indiquen urgencia.\n")
	} else {
		b.WriteString("Responde en español de manera concisa (máximo 2-3 líneas). ")
		b.WriteString("NO des diagnósticos ni recomendaciones de tratamiento. Solo recopila información.\n")
	}
	return b.String()
}

// conversation renders the last MaxHistory non-system messages.
func (a *Assistant) conversation(s *domain.Session) string {
	var b strings.Builder
	b.WriteString("CONVERSACIÓN:\n\n")
	if r := strings.TrimSpace(s.InitialReason); r != "" {
		fmt.Fprintf(&b, "Motivo inicial: %s\n\n", r)
	}
	var turns []domain.SessionMessage
	for _, m := range s.Messages {
		if m.Sender != domain.SenderSystem {
			turns = append(turns, m)
		}
	}
	if a.MaxHistory > 0 && len(turns) > a.MaxHistory {
		turns = turns[len(turns)-a.MaxHistory:]
	}
	for _, m := range turns {
		who := "Asistente"
		if m.Sender == domain.SenderPatient {
			who = "Paciente"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Text)
	}
	return b.String()
}

const summaryFormat = `Genera SOLO un JSON válido con el siguiente formato:
{
  "chiefComplaint": "motivo principal",
  "historyOfPresentIllness": "descripción detallada",
  "pastMedicalHistory": "antecedentes",
  "medications": ["medicamento1"],
  "allergies": ["alergia1"],
  "redFlags": ["señal de alarma"],
  "additionalNotes": "notas adicionales"
}
Responde SOLO con el JSON, sin texto adicional.`

type summaryJSON struct {
	ChiefComplaint          *string  `json:"chiefComplaint"`
	HistoryOfPresentIllness string   `json:"historyOfPresentIllness"`
	PastMedicalHistory      string   `json:"pastMedicalHistory"`
	Medications             []string `json:"medications"`
	Allergies               []string `json:"allergies"`
	RedFlags                []string `json:"redFlags"`
	AdditionalNotes         string   `json:"additionalNotes"`
}

// ParseSummary reads model output, tolerating Markdown code fences. Profile
// allergies and medications are merged into the extracted lists.
func ParseSummary(text string, s *domain.Session, p *domain.PatientContext) (*domain.Summary, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.TrimSpace(strings.ReplaceAll(text, "```", ""))

	var w summaryJSON
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, fmt.Errorf("assistant: summary json: %w", err)
	}
	complaint := ""
	if w.ChiefComplaint != nil {
		complaint = strings.TrimSpace(*w.ChiefComplaint)
	}
	if complaint == "" {
		complaint = initialReasonOr(s, FallbackComplaint)
	}
	sum := &domain.Summary{
		ChiefComplaint:          complaint,
		HistoryOfPresentIllness: w.HistoryOfPresentIllness,
		PastMedicalHistory:      w.PastMedicalHistory,
		Medications:             nonBlank(w.Medications),
		Allergies:               nonBlank(w.Allergies),
		RedFlags:                nonBlank(w.RedFlags),
		AdditionalNotes:         w.AdditionalNotes,
	}
	if p != nil {
		sum.Allergies = mergeUnique(sum.Allergies, p.Allergies)
		sum.Medications = mergeUnique(sum.Medications, p.CurrentMedications)
	}
	return sum, nil
}

// FallbackSummary builds a summary from the session and profile alone.
func FallbackSummary(s *domain.Session, p *domain.PatientContext) *domain.Summary {
	sum := &domain.Summary{
		ChiefComplaint:          initialReasonOr(s, FallbackComplaint),
		HistoryOfPresentIllness: FallbackHistory,
		PastMedicalHistory:      FallbackPast,
		Medications:             []string{},
		Allergies:               []string{},
		RedFlags:                []string{},
		AdditionalNotes:         FallbackNotes,
	}
	if p != nil {
		sum.Allergies = mergeUnique(sum.Allergies, p.Allergies)
		sum.Medications = mergeUnique(sum.Medications, p.CurrentMedications)
		if len(p.ChronicConditions) > 0 {
			sum.PastMedicalHistory = strings.Join(p.ChronicConditions, ", ")
		}
	}
	return sum
}

func initialReasonOr(s *domain.Session, def string) string {
	if s != nil {
		if r := strings.TrimSpace(s.InitialReason); r != "" {
			return r
		}
	}
	return def
}

func nonBlank(in []string) []string {
	out := []string{}
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func mergeUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
