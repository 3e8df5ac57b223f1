// Package correct applies fixed dictionary substitutions to cleaned
// transcripts: literal find/replace for names and terms the speech model
// keeps mishearing. It runs after the cleaning pipeline and performs no
// fuzzy matching of any kind.
package correct

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Rule is one literal substitution.
type Rule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Applied reports how often a rule fired during one Apply call.
type Applied struct {
	Rule  Rule
	Count int
}

// Corrector holds an ordered rule set. Longer patterns run first so that a
// short rule can never eat the middle of a longer one.
type Corrector struct {
	rules []Rule
	log   *zap.Logger
}

// New builds a Corrector from rules. Rules with an empty pattern are
// dropped. The input slice is not retained.
func New(rules []Rule, log *zap.Logger) *Corrector {
	if log == nil {
		log = zap.NewNop()
	}

	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.From == "" {
			continue
		}
		kept = append(kept, r)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i].From) > len(kept[j].From)
	})

	return &Corrector{rules: kept, log: log}
}

// Apply runs every rule over text in order and returns the corrected text
// together with the rules that fired.
func (c *Corrector) Apply(text string) (string, []Applied) {
	var applied []Applied
	for _, rule := range c.rules {
		count := strings.Count(text, rule.From)
		if count == 0 {
			continue
		}
		text = strings.ReplaceAll(text, rule.From, rule.To)
		applied = append(applied, Applied{Rule: rule, Count: count})
		c.log.Debug("dictionary rule applied",
			zap.String("from", rule.From),
			zap.String("to", rule.To),
			zap.Int("count", count))
	}
	return text, applied
}

// Len returns the number of active rules.
func (c *Corrector) Len() int {
	return len(c.rules)
}
