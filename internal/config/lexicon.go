package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// TermSense pairs an ambiguous term with a short description of its
// competing readings. Order matters: earlier entries win when a query
// triggers several signals.
type TermSense struct {
	Term  string `yaml:"term"`
	Sense string `yaml:"sense"`
}

// Lexicon is the Polish ambiguity table used by the clarifier. It is
// data, not code, so localization stays additive.
type Lexicon struct {
	AmbiguousEntities []TermSense `yaml:"ambiguous_entities"`
	AbstractConcepts  []TermSense `yaml:"abstract_concepts"`
	QualifierWords    []string    `yaml:"qualifier_words"`
	ContextPhrases    []string    `yaml:"context_phrases"`
	HowToPhrases      []string    `yaml:"howto_phrases"`
	ScopeMarkers      []string    `yaml:"scope_markers"`
}

// DefaultLexicon returns the built-in Polish table.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		AmbiguousEntities: []TermSense{
			{Term: "pan", Sense: "PAN (instytucja) vs pan (osoba/grzecznościowe)"},
			{Term: "rada", Sense: "która rada? (ministrów, nadzorcza, etc.)"},
			{Term: "instytut", Sense: "który instytut?"},
			{Term: "komisja", Sense: "która komisja?"},
			{Term: "program", Sense: "jaki program? (komputerowy, polityczny, edukacyjny)"},
			{Term: "organizacja", Sense: "która organizacja?"},
		},
		AbstractConcepts: []TermSense{
			{Term: "sens", Sense: "sens moralny/praktyczny/egzystencjalny?"},
			{Term: "znaczenie", Sense: "znaczenie słowa/wydarzenia/symboliczne?"},
			{Term: "odpowiedzialność", Sense: "moralna/prawna/społeczna/zawodowa?"},
			{Term: "sukces", Sense: "sukces finansowy/osobisty/zawodowy?"},
			{Term: "kryzys", Sense: "kryzys ekonomiczny/polityczny/osobisty/zdrowotny?"},
			{Term: "efektywność", Sense: "efektywność czego dokładnie?"},
			{Term: "rozwój", Sense: "rozwój osobisty/zawodowy/gospodarczy?"},
			{Term: "zarządzanie", Sense: "zarządzanie czym? (ludźmi/projektem/firmą/czasem)"},
		},
		QualifierWords: []string{"który", "jaki", "która", "jakie"},
		ContextPhrases: []string{
			"w kontekście", "w zakresie", "odnośnie", "dotycząc",
			"w przypadku", "dla", "przy",
		},
		HowToPhrases: []string{"jak zarządzać", "jak poprawić", "jak zwiększyć"},
		ScopeMarkers: []string{
			"w firmie", "w zespole", "w projekcie", "w organizacji",
			"w przypadku", "dla", "przy",
		},
	}
}

// LexiconStore serves the current lexicon and hot-reloads it when the
// backing file changes. Readers get an immutable snapshot.
type LexiconStore struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu      sync.RWMutex
	current *Lexicon
}

// NewLexiconStore loads the lexicon from path, falling back to the
// built-in table when the file does not exist.
func NewLexiconStore(path string, logger *zap.Logger) *LexiconStore {
	s := &LexiconStore{
		path:    path,
		logger:  logger,
		stopCh:  make(chan struct{}),
		current: DefaultLexicon(),
	}
	if path == "" {
		return s
	}
	lex, err := loadLexiconFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Info("Lexicon file absent, using built-in table",
			zap.String("path", path))
	case err != nil:
		logger.Warn("Lexicon file unreadable, using built-in table",
			zap.String("path", path), zap.Error(err))
	default:
		s.current = lex
		logger.Info("Lexicon loaded",
			zap.String("path", path),
			zap.Int("entities", len(lex.AmbiguousEntities)),
			zap.Int("concepts", len(lex.AbstractConcepts)))
	}
	return s
}

// Current returns the lexicon snapshot in effect. Callers must not
// mutate it.
func (s *LexiconStore) Current() *Lexicon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch starts reloading the lexicon whenever its file is rewritten.
// The watch covers the parent directory because editors and mounts
// replace files rather than writing in place.
func (s *LexiconStore) Watch() error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create lexicon watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch lexicon directory %s: %w", dir, err)
	}
	s.watcher = watcher

	go func() {
		base := filepath.Base(s.path)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("Lexicon watcher error", zap.Error(err))
			case <-s.stopCh:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher. The last loaded lexicon stays in effect.
func (s *LexiconStore) Close() error {
	close(s.stopCh)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *LexiconStore) reload() {
	lex, err := loadLexiconFile(s.path)
	if err != nil {
		s.logger.Error("Lexicon reload failed, keeping previous table",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.current = lex
	s.mu.Unlock()
	s.logger.Info("Lexicon reloaded",
		zap.String("path", s.path),
		zap.Int("entities", len(lex.AmbiguousEntities)),
		zap.Int("concepts", len(lex.AbstractConcepts)))
}

// loadLexiconFile reads and parses the YAML table. Fields left empty
// in the file keep their built-in values, so a localization file only
// needs to override what it changes.
func loadLexiconFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file Lexicon
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	lex := DefaultLexicon()
	if len(file.AmbiguousEntities) > 0 {
		lex.AmbiguousEntities = file.AmbiguousEntities
	}
	if len(file.AbstractConcepts) > 0 {
		lex.AbstractConcepts = file.AbstractConcepts
	}
	if len(file.QualifierWords) > 0 {
		lex.QualifierWords = file.QualifierWords
	}
	if len(file.ContextPhrases) > 0 {
		lex.ContextPhrases = file.ContextPhrases
	}
	if len(file.HowToPhrases) > 0 {
		lex.HowToPhrases = file.HowToPhrases
	}
	if len(file.ScopeMarkers) > 0 {
		lex.ScopeMarkers = file.ScopeMarkers
	}
	return lex, nil
}
