// Package rules implements word replacement: deterministic substitutions read
// from a rules file and applied to every transcript.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

const DefaultLoopLimit = 30

// Engine applies substitutions loaded from a rules file. It is safe for
// concurrent use, and Reload swaps the rule set atomically.
type Engine struct {
	path      string
	loopLimit int
	parsers   []RuleParser

	mu    sync.RWMutex
	rules []compiledRule
}

// NewEngine loads and compiles rules from a file using built-in parsers.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	return NewEngineWithParsers(path, loopLimit, defaultRuleParsers())
}

// NewEngineWithParsers allows parser extension without engine changes.
func NewEngineWithParsers(path string, loopLimit int, parsers []RuleParser) (*Engine, error) {
	if loopLimit <= 0 {
		loopLimit = DefaultLoopLimit
	}
	if len(parsers) == 0 {
		parsers = defaultRuleParsers()
	}

	e := &Engine{path: strings.TrimSpace(path), loopLimit: loopLimit, parsers: parsers}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Path is the rules file this engine reads. Empty means no file.
func (e *Engine) Path() string {
	return e.path
}

// Reload re-reads the rules file. A missing file clears the rule set; a
// malformed one leaves the previous rules in place.
func (e *Engine) Reload() error {
	rules, err := e.load()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

func (e *Engine) load() ([]compiledRule, error) {
	if e.path == "" {
		return nil, nil
	}
	contents, err := os.ReadFile(e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", e.path, err)
	}
	rules, err := parseRules(string(contents), e.parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", e.path, err)
	}
	return rules, nil
}

// Len reports how many rules are active.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Apply runs every rule until the text stops changing or the loop limit is hit.
func (e *Engine) Apply(text string) (string, error) {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	if len(rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, rule := range rules {
			if next, ruleChanged := rule.Apply(result); ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}
