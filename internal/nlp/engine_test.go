package nlp

import (
	"testing"

	"github.com/sparesparrow/mia-sub000/pkg/models"
)

func TestClassifyIsDeterministic(t *testing.T) {
	e := New()
	r1 := e.Classify("play some jazz music by Miles Davis", nil)
	r2 := e.Classify("play some jazz music by Miles Davis", nil)
	if r1.Intent != r2.Intent || r1.Confidence != r2.Confidence {
		t.Fatalf("classification not deterministic: %+v vs %+v", r1, r2)
	}
}

func TestClassifyUnknownForUnrelatedText(t *testing.T) {
	e := New()
	r := e.Classify("banana helicopter", nil)
	if r.Intent != models.UnknownIntent {
		t.Fatalf("intent = %q, want %q", r.Intent, models.UnknownIntent)
	}
	if r.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", r.Confidence)
	}
}

func TestClassifyVolumeBoostedByMusicContext(t *testing.T) {
	e := New()
	session := &models.SessionContext{
		LastIntent:     "play_music",
		LastParameters: map[string]string{"genre": "jazz"},
	}
	r := e.Classify("make it louder", session)
	if r.Intent != "control_volume" {
		t.Fatalf("intent = %q, want control_volume", r.Intent)
	}
	if !r.ContextUsed {
		t.Error("expected context_used = true")
	}
	if r.Parameters["action"] != "up" {
		t.Errorf("action = %q, want up", r.Parameters["action"])
	}
}

func TestClassifyHardwareControl(t *testing.T) {
	e := New()
	r := e.Classify("turn on GPIO pin 18", nil)
	if r.Intent != "hardware_control" {
		t.Fatalf("intent = %q, want hardware_control", r.Intent)
	}
	if r.Parameters["pin"] != "18" {
		t.Errorf("pin = %q, want 18", r.Parameters["pin"])
	}
	if r.Parameters["action"] != "on" {
		t.Errorf("action = %q, want on", r.Parameters["action"])
	}
}

func TestClassifyAlternativesBoundedToThree(t *testing.T) {
	e := New()
	r := e.Classify("open launch run start stop execute play music volume lights navigate route", nil)
	if len(r.Alternatives) > 3 {
		t.Fatalf("alternatives = %d, want at most 3", len(r.Alternatives))
	}
}

func TestClassifyEmptyTextIsUnknown(t *testing.T) {
	e := New()
	r := e.Classify("   ", nil)
	if r.Intent != models.UnknownIntent {
		t.Fatalf("intent = %q, want %q", r.Intent, models.UnknownIntent)
	}
}
