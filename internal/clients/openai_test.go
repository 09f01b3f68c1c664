package clients

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/tbourn/clinical-intake/internal/config"
	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/knowledge"
)

type fakeCompleter struct {
	out  string
	err  error
	reqs []openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.out}}},
	}, nil
}

func testSession(t *testing.T) *domain.Session {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := domain.NewSession(1, "fiebre", now)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = s.AddPatientMessage("tengo fiebre y tos", now)
	_, _ = s.AddAssistantMessage("¿Desde cuándo?", now)
	_, _ = s.AddPatientMessage("desde ayer", now)
	return s
}

func testAssistant(f *fakeCompleter) *Assistant {
	kb := knowledge.NewFromEntries([]knowledge.Entry{{
		Topic:       "Gripe",
		Description: "infección con fiebre",
		Symptoms:    []string{"fiebre", "tos"},
		RedFlags:    []string{"dificultad para respirar"},
	}})
	a := NewAssistant(config.AssistantConfig{Model: "test-model", MaxHistory: 20}, kb, zerolog.Nop())
	if f != nil {
		a.Client = f
	}
	return a
}

func TestNewAssistant_ClientOnlyWithKey(t *testing.T) {
	if a := NewAssistant(config.AssistantConfig{}, nil, zerolog.Nop()); a.Available() {
		t.Fatal("no key must leave the assistant unavailable")
	}
	if a := NewAssistant(config.AssistantConfig{OpenAIKey: "sk-test"}, nil, zerolog.Nop()); !a.Available() {
		t.Fatal("key must configure a client")
	}
	var nilA *Assistant
	if nilA.Available() {
		t.Fatal("nil assistant is unavailable")
	}
}

func TestAssistant_Reply(t *testing.T) {
	f := &fakeCompleter{out: "  ¿Tiene escalofríos?  "}
	a := testAssistant(f)
	p := &domain.PatientContext{UserID: 1, Allergies: []string{"penicilina"}, ConsentForAI: true}

	got, err := a.Reply(context.Background(), testSession(t), p)
	if err != nil || got != "¿Tiene escalofríos?" {
		t.Fatalf("Reply = %q, %v", got, err)
	}
	req := f.reqs[0]
	if req.Model != "test-model" || len(req.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", req)
	}
	sys, user := req.Messages[0].Content, req.Messages[1].Content
	for _, want := range []string{"Gripe", "SEÑALES DE ALARMA: dificultad para respirar", "Alergias conocidas: penicilina", "máximo 2-3 líneas"} {
		if !strings.Contains(sys, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, sys)
		}
	}
	for _, want := range []string{"CONVERSACIÓN:", "Motivo inicial: fiebre", "Paciente: tengo fiebre y tos", "Asistente: ¿Desde cuándo?"} {
		if !strings.Contains(user, want) {
			t.Fatalf("conversation missing %q:\n%s", want, user)
		}
	}
	if strings.Contains(user, domain.MsgSessionStarted) {
		t.Fatal("system messages must not reach the model")
	}
}

func TestAssistant_Reply_Failures(t *testing.T) {
	if _, err := testAssistant(nil).Reply(context.Background(), testSession(t), nil); !errors.Is(err, ErrAssistantUnavailable) {
		t.Fatalf("expected ErrAssistantUnavailable, got %v", err)
	}
	boom := errors.New("rate limited")
	if _, err := testAssistant(&fakeCompleter{err: boom}).Reply(context.Background(), testSession(t), nil); !errors.Is(err, boom) {
		t.Fatalf("expected API error, got %v", err)
	}
	if _, err := testAssistant(&fakeCompleter{out: "   "}).Reply(context.Background(), testSession(t), nil); err == nil {
		t.Fatal("blank completion must fail")
	}
}

func TestAssistant_ProfileWithoutConsentStaysOutOfPrompt(t *testing.T) {
	f := &fakeCompleter{out: "ok"}
	p := &domain.PatientContext{UserID: 1, Allergies: []string{"penicilina"}}
	if _, err := testAssistant(f).Reply(context.Background(), testSession(t), p); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(f.reqs[0].Messages[0].Content, "penicilina") {
		t.Fatal("profile data requires consent")
	}
}

func TestAssistant_ConversationHonoursMaxHistory(t *testing.T) {
	a := testAssistant(nil)
	a.MaxHistory = 1
	conv := a.conversation(testSession(t))
	if strings.Contains(conv, "tengo fiebre") || !strings.Contains(conv, "Paciente: desde ayer") {
		t.Fatalf("unexpected window:\n%s", conv)
	}
}

func TestAssistant_Summarize(t *testing.T) {
	f := &fakeCompleter{out: "```json\n{\"chiefComplaint\":\"Fiebre\",\"historyOfPresentIllness\":\"desde ayer\",\"allergies\":[\"polen\",\" \"],\"redFlags\":[\"fiebre alta\"]}\n```"}
	p := &domain.PatientContext{Allergies: []string{"polen", "penicilina"}, CurrentMedications: []string{"paracetamol"}}

	sum, err := testAssistant(f).Summarize(context.Background(), testSession(t), p)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.ChiefComplaint != "Fiebre" || sum.HistoryOfPresentIllness != "desde ayer" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Allergies) != 2 || sum.Allergies[1] != "penicilina" || len(sum.Medications) != 1 || len(sum.RedFlags) != 1 {
		t.Fatalf("profile merge: %+v", sum)
	}
	if !strings.Contains(f.reqs[0].Messages[1].Content, "Responde SOLO con el JSON") {
		t.Fatal("summary request must ask for JSON")
	}
}

func TestAssistant_Summarize_Fallbacks(t *testing.T) {
	p := &domain.PatientContext{ChronicConditions: []string{"asma"}, Allergies: []string{"polen"}}
	for name, a := range map[string]*Assistant{
		"unavailable": testAssistant(nil),
		"api error":   testAssistant(&fakeCompleter{err: errors.New("down")}),
		"bad json":    testAssistant(&fakeCompleter{out: "no puedo"}),
	} {
		sum, err := a.Summarize(context.Background(), testSession(t), p)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if sum.ChiefComplaint != "fiebre" || sum.HistoryOfPresentIllness != FallbackHistory ||
			sum.PastMedicalHistory != "asma" || sum.AdditionalNotes != FallbackNotes || len(sum.Allergies) != 1 {
			t.Fatalf("%s: unexpected fallback: %+v", name, sum)
		}
	}
}

func TestParseSummary_MissingComplaint(t *testing.T) {
	s := testSession(t)
	sum, err := ParseSummary(`{"historyOfPresentIllness":"x"}`, s, nil)
	if err != nil || sum.ChiefComplaint != "fiebre" {
		t.Fatalf("falls back to initial reason: %+v %v", sum, err)
	}
	s.InitialReason = ""
	sum, _ = ParseSummary(`{"chiefComplaint":"  "}`, s, nil)
	if sum.ChiefComplaint != FallbackComplaint {
		t.Fatalf("falls back to %q, got %q", FallbackComplaint, sum.ChiefComplaint)
	}
	if err := sum.Validate(); err != nil {
		t.Fatalf("parsed summary must validate: %v", err)
	}
}

func TestFallbackSummary_NoProfile(t *testing.T) {
	sum := FallbackSummary(&domain.Session{}, nil)
	if sum.ChiefComplaint != FallbackComplaint || sum.PastMedicalHistory != FallbackPast || sum.Allergies == nil {
		t.Fatalf("unexpected: %+v", sum)
	}
}
