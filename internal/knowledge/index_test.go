package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `{
  "knowledgeBase": [
    {
      "topic": "Gripe",
      "description": "Infección viral respiratoria con fiebre",
      "symptoms": ["fiebre", "tos", "dolor muscular"],
      "recommendations": ["reposo", "hidratación"],
      "redFlags": ["dificultad para respirar"]
    },
    {
      "topic": "Migraña",
      "description": "Dolor de cabeza pulsátil recurrente",
      "symptoms": ["dolor de cabeza", "náuseas"],
      "recommendations": ["descanso en lugar oscuro"],
      "redFlags": ["visión borrosa"]
    },
    {
      "topic": "  ",
      "description": "sin tema; se descarta"
    }
  ]
}`

func mustIndex(t *testing.T) Index {
	t.Helper()
	idx, err := NewFromReader(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("NewFromReader: %v", err)
	}
	return idx
}

func TestNewFromReader_SkipsEntriesWithoutTopic(t *testing.T) {
	if n := mustIndex(t).Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
}

func TestNewFromReader_Errors(t *testing.T) {
	for name, in := range map[string]string{
		"invalid json":  `{`,
		"missing array": `{"entries":[]}`,
	} {
		idx, err := NewFromReader(strings.NewReader(in))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if idx == nil || idx.Len() != 0 || idx.TopK("fiebre", 3) != nil {
			t.Fatalf("%s: expected empty usable index", name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	idx, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || idx == nil || idx.Len() != 0 {
		t.Fatalf("missing file: idx=%v err=%v", idx, err)
	}

	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	idx, err = LoadFile(path)
	if err != nil || idx.Len() != 2 {
		t.Fatalf("LoadFile: len=%d err=%v", idx.Len(), err)
	}
}

func TestTopK_WeightedScoring(t *testing.T) {
	idx := mustIndex(t)

	// "fiebre": Gripe description (2.0) + symptom (1.5).
	res := idx.TopK("FIEBRE", 3)
	if len(res) != 1 || res[0].Topic != "Gripe" || res[0].Score != 3.5 {
		t.Fatalf("unexpected results: %+v", res)
	}

	// "gripe" hits the topic; accents and case are ignored.
	res = idx.TopK("gripe", 3)
	if len(res) != 1 || res[0].Score != WeightTopic {
		t.Fatalf("topic weight: %+v", res)
	}
	res = idx.TopK("migrana", 3)
	if len(res) != 1 || res[0].Topic != "Migraña" {
		t.Fatalf("accent folding: %+v", res)
	}
}

func TestTopK_OrderingAndLimits(t *testing.T) {
	idx := mustIndex(t)

	// "dolor" matches both; Migraña scores description + symptom,
	// Gripe only a symptom.
	res := idx.TopK("dolor", 5)
	if len(res) != 2 || res[0].Topic != "Migraña" || res[1].Topic != "Gripe" {
		t.Fatalf("unexpected order: %+v", res)
	}
	if res := idx.TopK("dolor", 1); len(res) != 1 {
		t.Fatalf("k=1 returned %d", len(res))
	}
	if res := idx.TopK("dolor", 0); len(res) != 2 {
		t.Fatalf("k<=0 defaults to 3, got %d", len(res))
	}
	if res := idx.TopK("   ", 3); res != nil {
		t.Fatalf("blank query: %+v", res)
	}
	if res := idx.TopK("de la", 3); res != nil {
		t.Fatalf("short terms only: %+v", res)
	}
	if res := idx.TopK("fractura", 3); res != nil {
		t.Fatalf("no match: %+v", res)
	}
}

func TestTerms(t *testing.T) {
	got := Terms("Dolor de CABEZA, dolor!")
	want := []string{"dolor", "cabeza"}
	if len(got) != len(want) {
		t.Fatalf("Terms = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Terms = %v, want %v", got, want)
		}
	}
}

func TestFold(t *testing.T) {
	if got := Fold("Náuseas y VÉRTIGO"); got != "nauseas y vertigo" {
		t.Fatalf("Fold = %q", got)
	}
}
