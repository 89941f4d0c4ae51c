// Package persona implements the keyword rule engine, persona content
// parsing, permission checks, and the switch orchestrator.
package persona

import (
	"log/slog"
	"strings"
)

// KeywordRule maps a trigger keyword to a persona id. Rules keep their
// declaration order; the first matching rule wins.
type KeywordRule struct {
	Keyword       string
	PersonaID     string
	CaseSensitive bool
	// ReplyTemplate overrides the global announce message for this rule.
	// It takes the {persona_id} placeholder. Empty means no override.
	ReplyTemplate string
}

// ConfigLine renders the rule back into its keyword_mappings line form.
func (r KeywordRule) ConfigLine() string {
	return r.Keyword + ":" + r.PersonaID
}

// FormatTemplate substitutes the {persona_id} placeholder in an announce
// or nickname template.
func FormatTemplate(template, personaID string) string {
	return strings.ReplaceAll(template, "{persona_id}", personaID)
}

// ParseMappingRules parses the keyword_mappings config value, one
// keyword:persona_id entry per line. Blank lines and lines starting with
// '#' are skipped. Entries split on the first colon; malformed entries are
// logged and dropped without failing the rest. The result replaces any
// previously parsed rule set wholesale.
func ParseMappingRules(raw string, caseSensitive bool, logger *slog.Logger) []KeywordRule {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "rule_parser")

	var rules []KeywordRule
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		keyword, personaID, found := strings.Cut(line, ":")
		if !found {
			log.Warn("Mapping entry has no colon separator, dropping", "line", i+1, "entry", line)
			continue
		}

		keyword = strings.TrimSpace(keyword)
		if mode, rest, legacy := strings.Cut(keyword, "|"); legacy {
			// Earlier releases allowed a mode| prefix selecting the match
			// strategy. Matching is always substring containment now.
			log.Warn("Dropping deprecated mode prefix in mapping entry", "line", i+1, "mode", mode, "entry", line)
			keyword = strings.TrimSpace(rest)
		}

		personaID = strings.TrimSpace(personaID)
		if keyword == "" || personaID == "" {
			log.Warn("Mapping entry has empty keyword or persona id, dropping", "line", i+1, "entry", line)
			continue
		}

		rules = append(rules, KeywordRule{
			Keyword:       keyword,
			PersonaID:     personaID,
			CaseSensitive: caseSensitive,
		})
	}

	if len(rules) > 0 {
		log.Info("Keyword mapping rules loaded", "count", len(rules))
	}
	return rules
}
