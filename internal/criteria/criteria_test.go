package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextToRules_OneRulePerLine(t *testing.T) {
	text := "Adult learners of English\n\n\nSpeaking proficiency outcomes\n"
	rules := TextToRules(text, "inc")
	require.Len(t, rules, 2)
	assert.Equal(t, "inc_adult", rules[0].ID)
	assert.Equal(t, "inc_speaking", rules[1].ID)
}

func TestTextToRules_NumericBulletFallsBackToIndex(t *testing.T) {
	// "1." cleans to a single character, so the rule id is positional.
	rules := TextToRules("1. Adults only\n2. Speaking practice", "inc")
	require.Len(t, rules, 2)
	assert.Equal(t, "inc_1", rules[0].ID)
	assert.Equal(t, "inc_2", rules[1].ID)
}

func TestTextToRules_DomainAbbreviationsSurvive(t *testing.T) {
	rules := TextToRules("1. Adults only; include L2, ESL learners", "inc")
	require.Len(t, rules, 1)
	for _, term := range []string{"adults", "learners", "esl", "l2"} {
		assert.Contains(t, rules[0].Terms, term)
	}
}

func TestTextToRules_LabeledBulletKeepsLabel(t *testing.T) {
	rules := TextToRules("E01. Not adult population (children, K-12)", "exc")
	require.Len(t, rules, 1)
	assert.Equal(t, "exc_e01", rules[0].ID)
}

func TestTextToRules_DashBulletStripped(t *testing.T) {
	rules := TextToRules("- Conversational speaking tasks", "inc")
	require.Len(t, rules, 1)
	assert.Equal(t, "inc_conversational", rules[0].ID)
}

func TestExtractTerms_StopWordsAndShortWordsDropped(t *testing.T) {
	terms := extractTerms("Studies with only the use of oral exams")
	assert.NotContains(t, terms, "studies")
	assert.NotContains(t, terms, "with")
	assert.NotContains(t, terms, "only")
	assert.NotContains(t, terms, "use")
	assert.NotContains(t, terms, "oral")
	assert.Contains(t, terms, "exams")
}

func TestExtractTerms_DomainAbbreviationsKept(t *testing.T) {
	terms := extractTerms("L2 and ESL learners using AI tutors")
	assert.Contains(t, terms, "l2")
	assert.Contains(t, terms, "esl")
	assert.Contains(t, terms, "ai")
	assert.Contains(t, terms, "learners")
	assert.Contains(t, terms, "tutors")
}

func TestExtractTerms_PluralVariantAdded(t *testing.T) {
	terms := extractTerms("adult learners")
	assert.Contains(t, terms, "learners")
	assert.Contains(t, terms, "learner")
	// "adult" is not plural; no variant is added for it.
	assert.Contains(t, terms, "adult")
}

func TestExtractTerms_HyphenVariantAdded(t *testing.T) {
	terms := extractTerms("K-12 classrooms")
	assert.Contains(t, terms, "k-12")
	assert.Contains(t, terms, "k12")
}

func TestExtractTerms_DigitsAlwaysKept(t *testing.T) {
	terms := extractTerms("gpt-4o in 12 sessions")
	assert.Contains(t, terms, "gpt-4o")
	assert.Contains(t, terms, "gpt4o")
	assert.Contains(t, terms, "12")
}

func TestExtractTerms_Deduplicated(t *testing.T) {
	terms := extractTerms("speaking speaking speaking")
	count := 0
	for _, term := range terms {
		if term == "speaking" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractTerms_CappedAtMaxTermsPerRule(t *testing.T) {
	line := "alpha1 bravo2 charlie3 delta4 echo5 foxtrot6 golf7 hotel8 india9 " +
		"juliet10 kilo11 lima12 mike13 november14 oscar15 papa16 quebec17 " +
		"romeo18 sierra19 tango20 uniform21 victor22"
	terms := extractTerms(line)
	assert.Len(t, terms, MaxTermsPerRule)
}

func TestTextToRules_RuleWithNoTermsDropped(t *testing.T) {
	rules := TextToRules("the and not\nadult learners", "inc")
	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Terms, "adult")
}

func TestBuildFromText_Deterministic(t *testing.T) {
	input := TextInput{
		Inclusion: "Adult learners of English (L2, ESL)\nSpeaking proficiency outcomes",
		Exclusion: "E01. Not adult population (children, K-12)",
	}
	first := BuildFromText(input)
	second := BuildFromText(input)
	assert.Equal(t, first, second)
}

func TestDefault_CompilesAllRules(t *testing.T) {
	crit := Default()
	assert.Len(t, crit.Inclusion, 7)
	assert.Len(t, crit.Exclusion, 12)
	assert.Equal(t, "exc_e01", crit.Exclusion[0].ID)
	assert.Equal(t, "exc_e12", crit.Exclusion[11].ID)
	for _, rule := range append(crit.Inclusion, crit.Exclusion...) {
		assert.NotEmpty(t, rule.Terms, "rule %s", rule.ID)
		assert.LessOrEqual(t, len(rule.Terms), MaxTermsPerRule)
	}
}
