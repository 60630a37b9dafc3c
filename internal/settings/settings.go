// Package settings persists the user's mutable choices (push-to-talk binding,
// current model, enhancement state) in a YAML file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"dictakey/internal/domain"
)

const (
	DefaultAutoCopy          = true
	DefaultWordReplacement   = true
	DefaultPushToTalkEnabled = true
)

var ErrUnknownPrompt = errors.New("unknown prompt")
var ErrUnknownModel = errors.New("unknown model")

// EnhancementSettings holds AI enhancement state.
type EnhancementSettings struct {
	Enabled      bool   `yaml:"enabled"`
	ActivePrompt string `yaml:"active_prompt,omitempty"`
}

// File is the on-disk layout.
type File struct {
	PushToTalk      domain.PushToTalkBinding `yaml:"push_to_talk"`
	AutoCopy        *bool                    `yaml:"auto_copy,omitempty"`
	WordReplacement *bool                    `yaml:"word_replacement,omitempty"`
	CurrentModel    string                   `yaml:"current_model,omitempty"`
	Enhancement     EnhancementSettings      `yaml:"enhancement"`
}

// New returns a File with defaults populated.
func New() File {
	return File{
		PushToTalk: domain.PushToTalkBinding{
			Key:     domain.DefaultPushToTalkKey,
			Enabled: DefaultPushToTalkEnabled,
		},
		AutoCopy:        boolPtr(DefaultAutoCopy),
		WordReplacement: boolPtr(DefaultWordReplacement),
	}
}

// Store is the process-scoped settings object. Every setter persists immediately.
type Store struct {
	path    string
	models  []domain.ModelRef
	prompts []domain.Prompt

	mu   sync.RWMutex
	data File
}

// Open loads path, falling back to defaults when the file does not exist yet.
func Open(path string, models []domain.ModelRef, prompts []domain.Prompt) (*Store, error) {
	s := &Store{path: path, models: models, prompts: prompts, data: New()}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading settings: %w", err)
	default:
		var loaded File
		if err := yaml.Unmarshal(raw, &loaded); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		s.data = merge(loaded)
	}

	if s.data.CurrentModel == "" && len(models) > 0 {
		s.data.CurrentModel = models[0].Name
	}
	key, err := domain.ParsePushToTalkKey(string(s.data.PushToTalk.Key))
	if err != nil {
		key = domain.DefaultPushToTalkKey
	}
	s.data.PushToTalk.Key = key
	return s, nil
}

func merge(loaded File) File {
	out := New()
	if loaded.PushToTalk.Key != "" {
		out.PushToTalk = loaded.PushToTalk
	}
	if loaded.AutoCopy != nil {
		out.AutoCopy = loaded.AutoCopy
	}
	if loaded.WordReplacement != nil {
		out.WordReplacement = loaded.WordReplacement
	}
	out.CurrentModel = loaded.CurrentModel
	out.Enhancement = loaded.Enhancement
	return out
}

func (s *Store) Snapshot() File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

func (s *Store) CurrentModel() (domain.ModelRef, bool) {
	s.mu.RLock()
	name := s.data.CurrentModel
	s.mu.RUnlock()
	return s.model(name)
}

func (s *Store) SetCurrentModel(name string) error {
	if _, ok := s.model(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return s.update(func(f *File) { f.CurrentModel = name })
}

func (s *Store) Models() []domain.ModelRef {
	return append([]domain.ModelRef(nil), s.models...)
}

func (s *Store) model(name string) (domain.ModelRef, bool) {
	if name == "" {
		return domain.ModelRef{}, false
	}
	for _, m := range s.models {
		if m.Name == name {
			return m, true
		}
	}
	return domain.ModelRef{}, false
}

func (s *Store) AutoCopy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AutoCopy == nil || *s.data.AutoCopy
}

func (s *Store) SetAutoCopy(enabled bool) error {
	return s.update(func(f *File) { f.AutoCopy = boolPtr(enabled) })
}

func (s *Store) WordReplacement() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.WordReplacement == nil || *s.data.WordReplacement
}

func (s *Store) SetWordReplacement(enabled bool) error {
	return s.update(func(f *File) { f.WordReplacement = boolPtr(enabled) })
}

func (s *Store) EnhancementEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Enhancement.Enabled
}

func (s *Store) SetEnhancementEnabled(enabled bool) error {
	return s.update(func(f *File) { f.Enhancement.Enabled = enabled })
}

func (s *Store) ActivePrompt() (domain.Prompt, bool) {
	s.mu.RLock()
	id := s.data.Enhancement.ActivePrompt
	s.mu.RUnlock()

	if id == "" && len(s.prompts) > 0 {
		return s.prompts[0], true
	}
	return s.prompt(id)
}

// SetActivePrompt selects a prompt by id. An empty id restores the default prompt.
func (s *Store) SetActivePrompt(id string) error {
	if id != "" {
		if _, ok := s.prompt(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPrompt, id)
		}
	}
	return s.update(func(f *File) { f.Enhancement.ActivePrompt = id })
}

func (s *Store) Prompts() []domain.Prompt {
	return append([]domain.Prompt(nil), s.prompts...)
}

func (s *Store) prompt(id string) (domain.Prompt, bool) {
	for _, p := range s.prompts {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Prompt{}, false
}

func (s *Store) Binding() domain.PushToTalkBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.PushToTalk
}

func (s *Store) SetBinding(binding domain.PushToTalkBinding) error {
	key, err := domain.ParsePushToTalkKey(string(binding.Key))
	if err != nil {
		return err
	}
	binding.Key = key
	return s.update(func(f *File) { f.PushToTalk = binding })
}

func (s *Store) update(mutate func(*File)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.data
	mutate(&next)
	if err := s.save(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// save writes through a temp file so a crash never leaves a truncated file.
func (s *Store) save(data File) error {
	if s.path == "" {
		return nil
	}
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing settings: %w", err)
	}
	return nil
}

func boolPtr(v bool) *bool {
	return &v
}
