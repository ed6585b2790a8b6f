package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rtsim.ai/internal/sim/rtsim/data"
)

type Catalogs struct {
	Speech SpeechCatalog
}

// SpeechCatalog maps localisation keys to text for one language. Text may
// reference arguments as {name}.
type SpeechCatalog struct {
	Lang    string
	Entries map[string]string
	Digest  string
}

// Load reads <configDir>/speech/<lang>.json.
func Load(configDir, lang string) (*Catalogs, error) {
	var c Catalogs
	if lang == "" {
		lang = "en"
	}
	if err := loadSpeech(filepath.Join(configDir, "speech", lang+".json"), lang, &c.Speech); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadSpeech(path, lang string, out *SpeechCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var entries map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	for k := range entries {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%s: empty key", filepath.Base(path))
		}
	}
	out.Lang = lang
	out.Entries = entries
	out.Digest = digestEntries(entries)
	return nil
}

// digestEntries hashes the entries in key order so formatting changes in the
// file do not change the digest.
func digestEntries(entries map[string]string) string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte(0)
		buf.WriteString(entries[k])
		buf.WriteByte('\n')
	}
	return sha256Hex(buf.Bytes())
}

func (s *SpeechCatalog) Has(key string) bool {
	_, ok := s.Entries[key]
	return ok
}

// Render turns content into display text. Unknown keys render as the key
// itself; argument values that are keys are rendered in turn.
func (s *SpeechCatalog) Render(c data.Content) string {
	if c.Kind != data.ContentLocalized {
		return c.Text
	}
	text, ok := s.Entries[c.Text]
	if !ok {
		return c.Text
	}
	if len(c.Args) == 0 {
		return text
	}
	names := make([]string, 0, len(c.Args))
	for k := range c.Args {
		names = append(names, k)
	}
	sort.Strings(names)
	pairs := make([]string, 0, 2*len(names))
	for _, k := range names {
		v := c.Args[k]
		if inner, ok := s.Entries[v]; ok {
			v = inner
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Missing lists keys that are not in the catalog, sorted.
func (s *SpeechCatalog) Missing(keys []string) []string {
	var out []string
	for _, k := range keys {
		if !s.Has(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
