package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"rtsim.ai/internal/sim/rtsim/data"
)

func TestLoad_SpeechCatalog(t *testing.T) {
	cats, err := Load("../../../configs", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cats.Speech.Lang != "en" || len(cats.Speech.Entries) == 0 {
		t.Fatalf("speech=%+v", cats.Speech)
	}
	if len(cats.Speech.Digest) != 64 {
		t.Fatalf("digest=%q", cats.Speech.Digest)
	}

	keys := []string{
		"npc-speech-villager",
		"npc-speech-tell_site",
		"npc-speech-dir_north_east",
		"npc-speech-body_airship",
		"npc-info-role_merchant",
		"npc-response-accept_hire",
		"dialogue-question-hire",
	}
	if missing := cats.Speech.Missing(keys); len(missing) != 0 {
		t.Fatalf("missing keys: %v", missing)
	}
}

func TestSpeechCatalog_Render(t *testing.T) {
	s := SpeechCatalog{Entries: map[string]string{
		"tell":  "{site} is {dist} to the {dir}.",
		"north": "north",
		"far":   "far away",
	}}

	got := s.Render(data.LocalizedWith("tell", map[string]string{"site": "Oakdale", "dist": "far", "dir": "north"}))
	if got != "Oakdale is far away to the north." {
		t.Fatalf("got %q", got)
	}
	if got := s.Render(data.Plain("hello {site}")); got != "hello {site}" {
		t.Fatalf("plain text rewritten: %q", got)
	}
	if got := s.Render(data.Localized("nope")); got != "nope" {
		t.Fatalf("unknown key rendered as %q", got)
	}
}

func TestLoad_DigestIgnoresFormatting(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	write := func(dir, body string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Join(dir, "speech"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "speech", "en.json"), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(a, `{"a":"1","b":"2"}`)
	write(b, "{\n  \"b\": \"2\",\n  \"a\": \"1\"\n}\n")

	ca, err := Load(a, "en")
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	cb, err := Load(b, "en")
	if err != nil {
		t.Fatalf("load b: %v", err)
	}
	if ca.Speech.Digest != cb.Speech.Digest {
		t.Fatalf("digest differs: %s vs %s", ca.Speech.Digest, cb.Speech.Digest)
	}

	write(b, `{"a":"1","b":"3"}`)
	cb, _ = Load(b, "en")
	if ca.Speech.Digest == cb.Speech.Digest {
		t.Fatalf("digest did not change with content")
	}
}

func TestLoad_RejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, "en"); err == nil {
		t.Fatalf("expected error for missing file")
	}
	_ = os.MkdirAll(filepath.Join(dir, "speech"), 0o755)
	_ = os.WriteFile(filepath.Join(dir, "speech", "en.json"), []byte(`{" ":"x"}`), 0o644)
	if _, err := Load(dir, "en"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
