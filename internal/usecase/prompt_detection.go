package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"dictakey/internal/domain"
	"dictakey/internal/ports"
)

const triggerPunctuation = ",.!?;: "

// promptDetector enables enhancement for one run when the transcript starts or
// ends with a prompt's trigger word.
type promptDetector struct {
	prefs ports.Preferences
}

func newPromptDetector(prefs ports.Preferences) promptDetector {
	return promptDetector{prefs: prefs}
}

func (d promptDetector) Analyze(text string) domain.PromptDetectionResult {
	result := domain.PromptDetectionResult{ProcessedText: text}
	if d.prefs == nil {
		return result
	}
	result.PriorEnabled = d.prefs.EnhancementEnabled()
	if active, ok := d.prefs.ActivePrompt(); ok {
		result.PriorPromptID = active.ID
	}

	for _, prompt := range d.prefs.Prompts() {
		for _, word := range prompt.TriggerWords {
			stripped, ok := stripTrigger(text, word)
			if !ok {
				continue
			}
			result.ProcessedText = stripped
			result.ShouldEnableAI = true
			result.PromptID = prompt.ID
			return result
		}
	}
	return result
}

// apply switches enhancement and the active prompt for a detected trigger.
func (d promptDetector) apply(result domain.PromptDetectionResult) error {
	if !result.ShouldEnableAI || d.prefs == nil {
		return nil
	}
	if !result.PriorEnabled {
		if err := d.prefs.SetEnhancementEnabled(true); err != nil {
			return err
		}
	}
	if result.PromptID != result.PriorPromptID {
		return d.prefs.SetActivePrompt(result.PromptID)
	}
	return nil
}

// revert restores what apply changed.
func (d promptDetector) revert(result domain.PromptDetectionResult) error {
	if !result.ShouldEnableAI || d.prefs == nil {
		return nil
	}
	if result.PromptID != result.PriorPromptID {
		if err := d.prefs.SetActivePrompt(result.PriorPromptID); err != nil {
			return err
		}
	}
	if !result.PriorEnabled {
		return d.prefs.SetEnhancementEnabled(false)
	}
	return nil
}

func stripTrigger(text, trigger string) (string, bool) {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" || len(text) < len(trigger) {
		return "", false
	}

	if strings.EqualFold(text[:len(trigger)], trigger) && wordBoundary(text[len(trigger):], true) {
		rest := strings.TrimLeft(text[len(trigger):], triggerPunctuation)
		return capitalizeFirst(rest), true
	}

	trimmed := strings.TrimRight(text, triggerPunctuation)
	if len(trimmed) < len(trigger) {
		return "", false
	}
	start := len(trimmed) - len(trigger)
	if strings.EqualFold(trimmed[start:], trigger) && wordBoundary(trimmed[:start], false) {
		return strings.TrimRight(trimmed[:start], triggerPunctuation), true
	}
	return "", false
}

// wordBoundary reports whether the trigger is a whole word next to rest.
func wordBoundary(rest string, after bool) bool {
	if rest == "" {
		return true
	}
	var r rune
	if after {
		r, _ = utf8.DecodeRuneInString(rest)
	} else {
		r, _ = utf8.DecodeLastRuneInString(rest)
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}
