package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultLexicon(t *testing.T) {
	lex := DefaultLexicon()

	terms := make([]string, 0, len(lex.AmbiguousEntities))
	for _, ts := range lex.AmbiguousEntities {
		terms = append(terms, ts.Term)
	}
	assert.Equal(t, []string{"pan", "rada", "instytut", "komisja", "program", "organizacja"}, terms)
	assert.Len(t, lex.AbstractConcepts, 8)
	assert.Contains(t, lex.ContextPhrases, "w kontekście")
	assert.Contains(t, lex.HowToPhrases, "jak zarządzać")
}

func TestLexiconStoreMissingFile(t *testing.T) {
	s := NewLexiconStore(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	lex := s.Current()
	require.NotNil(t, lex)
	assert.Equal(t, "pan", lex.AmbiguousEntities[0].Term)
}

func TestLexiconStoreLoadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	content := `ambiguous_entities:
  - term: bank
    sense: "bank (instytucja) vs bank (brzeg rzeki)"
qualifier_words: ["który"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := NewLexiconStore(path, zap.NewNop())
	lex := s.Current()
	require.Len(t, lex.AmbiguousEntities, 1)
	assert.Equal(t, "bank", lex.AmbiguousEntities[0].Term)
	assert.Equal(t, []string{"który"}, lex.QualifierWords)
	// Unset sections fall back to the built-in table.
	assert.Len(t, lex.AbstractConcepts, 8)
	assert.Contains(t, lex.ScopeMarkers, "w firmie")
}

func TestLexiconStoreReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qualifier_words: [\"jaki\"]\n"), 0o644))

	s := NewLexiconStore(path, zap.NewNop())
	require.NoError(t, s.Watch())
	defer s.Close()

	require.Equal(t, []string{"jaki"}, s.Current().QualifierWords)

	require.NoError(t, os.WriteFile(path, []byte("qualifier_words: [\"która\"]\n"), 0o644))

	deadline := time.After(3 * time.Second)
	for {
		if len(s.Current().QualifierWords) == 1 && s.Current().QualifierWords[0] == "która" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("lexicon not reloaded, qualifier words: %v", s.Current().QualifierWords)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestLexiconStoreBadFileKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qualifier_words: [\"jaki\"]\n"), 0o644))

	s := NewLexiconStore(path, zap.NewNop())
	require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml"), 0o644))
	s.reload()

	assert.Equal(t, []string{"jaki"}, s.Current().QualifierWords)
}
