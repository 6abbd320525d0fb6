package criteria

import (
	"regexp"
	"strconv"
	"strings"
)

// RuleScope restricts where a rule's terms may match.
type RuleScope string

// ScopeKeywords restricts matching to the record's keyword list.
const ScopeKeywords RuleScope = "keywords"

// Rule is one compiled screening criterion: an id derived from the source
// line and the set of matchable terms. Immutable once built.
type Rule struct {
	ID    string    `json:"id"`
	Terms []string  `json:"terms"`
	Scope RuleScope `json:"scope,omitempty"`
}

// Criteria holds the compiled inclusion and exclusion rule sets.
type Criteria struct {
	Inclusion []Rule `json:"inclusion"`
	Exclusion []Rule `json:"exclusion"`
}

// TextInput is the raw criteria text pair as edited by the user.
type TextInput struct {
	Inclusion string `json:"inclusion"`
	Exclusion string `json:"exclusion"`
}

// MaxTermsPerRule caps how many terms a single rule may carry.
const MaxTermsPerRule = 20

var (
	lineSplitRe = regexp.MustCompile(`\r?\n+`)
	bulletRe    = regexp.MustCompile(`^[-*•\s]+`)
	ruleIDRe    = regexp.MustCompile(`[^a-zA-Z0-9-_]`)
	termRe      = regexp.MustCompile(`[a-z0-9][a-z0-9-]{1,}`)
	digitRe     = regexp.MustCompile(`\d`)
)

// stopWords are generic tokens discarded during term extraction unless they
// carry a digit or appear in alwaysKeep.
var stopWords = map[string]struct{}{
	"with": {}, "without": {}, "where": {}, "which": {}, "from": {},
	"that": {}, "this": {}, "these": {}, "those": {}, "their": {},
	"there": {}, "about": {}, "using": {}, "among": {}, "after": {},
	"before": {}, "study": {}, "studies": {}, "report": {}, "reports": {},
	"paper": {}, "papers": {}, "analysis": {}, "include": {}, "includes": {},
	"including": {}, "exclusion": {}, "criteria": {}, "only": {}, "not": {},
	"and": {}, "both": {}, "such": {}, "present": {}, "neutrality": {},
	"design": {}, "provides": {}, "evidence": {}, "scope": {}, "technology": {},
}

// alwaysKeep are domain abbreviations kept regardless of length.
var alwaysKeep = map[string]struct{}{
	"l2": {}, "esl": {}, "efl": {}, "ell": {}, "tesol": {}, "toefl": {},
	"ielts": {}, "ai": {}, "caf": {}, "cefr": {}, "actfl": {}, "opic": {},
}

// BuildFromText compiles a criteria text pair into matchable rule sets.
// Pure: identical text always yields an identical rule list.
func BuildFromText(input TextInput) Criteria {
	return Criteria{
		Inclusion: TextToRules(input.Inclusion, "inc"),
		Exclusion: TextToRules(input.Exclusion, "exc"),
	}
}

// TextToRules splits text into non-empty lines and compiles one rule per
// line. Rules that yield no terms are dropped.
func TextToRules(text, prefix string) []Rule {
	var rules []Rule
	index := 0
	for _, line := range lineSplitRe.Split(text, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		index++
		rule := Rule{
			ID:    deriveRuleID(line, prefix, index),
			Terms: extractTerms(line),
		}
		if len(rule.Terms) == 0 {
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

func deriveRuleID(line, prefix string, index int) string {
	stripped := bulletRe.ReplaceAllString(line, "")
	firstToken := stripped
	if i := strings.IndexFunc(stripped, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		firstToken = stripped[:i]
	}
	cleaned := strings.ToLower(ruleIDRe.ReplaceAllString(firstToken, ""))
	if len(cleaned) >= 2 {
		return prefix + "_" + cleaned
	}
	return prefix + "_" + strconv.Itoa(index)
}

func extractTerms(line string) []string {
	words := termRe.FindAllString(strings.ToLower(line), -1)
	if len(words) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var terms []string
	add := func(term string) {
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	for _, word := range words {
		_, kept := alwaysKeep[word]
		_, stop := stopWords[word]
		hasDigit := digitRe.MatchString(word)
		if !kept && !hasDigit && (len(word) < 4 || stop) {
			continue
		}

		add(word)

		if len(word) > 4 && strings.HasSuffix(word, "s") {
			add(strings.TrimSuffix(word, "s"))
		}
		if strings.Contains(word, "-") {
			add(strings.ReplaceAll(word, "-", ""))
		}
	}

	if len(terms) > MaxTermsPerRule {
		terms = terms[:MaxTermsPerRule]
	}
	return terms
}
