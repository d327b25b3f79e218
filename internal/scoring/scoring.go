// Package scoring decides whether a chat message looks like a vacancy.
//
// Text is normalised (lowercased, punctuation replaced by spaces, whitespace
// collapsed) and matched against weighted rules. Each rule holds one or more
// variants separated by ", " and adds its weight once when any variant is a
// substring of the normalised text.
//
// Exception tokens such as "c++" or ".net" survive normalisation: they are
// swapped for placeholders before punctuation is stripped and restored after.
package scoring

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/spigell/tg-responder/internal/model"
)

// VariantSeparator splits a rule text into variants.
const VariantSeparator = ", "

// DefaultExceptions are tokens whose punctuation is meaningful.
var DefaultExceptions = []string{
	"c++", "c#", "f#", ".net", "asp.net", "node.js", "vue.js", "next.js", "ci/cd",
}

var punctuation = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]`)

// Engine scores texts against rules.
type Engine struct {
	threshold int
	protect   *strings.Replacer
	restore   *strings.Replacer
}

// New returns an engine that qualifies scores at or above threshold.
func New(threshold int, exceptions []string) *Engine {
	tokens := make([]string, 0, len(exceptions))
	seen := make(map[string]bool, len(exceptions))
	for _, token := range exceptions {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}

	// Longer tokens first so "asp.net" wins over ".net".
	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i]) > len(tokens[j])
	})

	// Placeholders consist of word characters only and none is a prefix of another.
	prefix := "x" + strings.ReplaceAll(uuid.NewString(), "-", "")
	protect := make([]string, 0, len(tokens)*2)
	restore := make([]string, 0, len(tokens)*2)
	for i, token := range tokens {
		placeholder := fmt.Sprintf("%sq%03dq", prefix, i)
		protect = append(protect, token, placeholder)
		restore = append(restore, placeholder, token)
	}

	return &Engine{
		threshold: threshold,
		protect:   strings.NewReplacer(protect...),
		restore:   strings.NewReplacer(restore...),
	}
}

// Threshold returns the minimal qualifying score.
func (e *Engine) Threshold() int {
	return e.threshold
}

// Qualifies reports whether score passes the threshold.
func (e *Engine) Qualifies(score int) bool {
	return score >= e.threshold
}

// Normalize prepares text for matching.
func (e *Engine) Normalize(text string) string {
	text = e.protect.Replace(strings.ToLower(text))
	text = punctuation.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")
	return e.restore.Replace(text)
}

// Score sums the weights of the active rules matching text.
func (e *Engine) Score(text string, rules []model.Rule) int {
	normalized := e.Normalize(text)
	if normalized == "" {
		return 0
	}

	total := 0
	counted := make(map[int64]bool, len(rules))
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if rule.ID != 0 && counted[rule.ID] {
			continue
		}
		if e.matches(normalized, rule.Text) {
			counted[rule.ID] = true
			total += rule.Weight
		}
	}

	return total
}

func (e *Engine) matches(normalized, ruleText string) bool {
	for _, variant := range strings.Split(ruleText, VariantSeparator) {
		variant = e.Normalize(variant)
		if variant == "" {
			continue
		}
		if strings.Contains(normalized, variant) {
			return true
		}
	}
	return false
}
