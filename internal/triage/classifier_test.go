package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubeiqiao/Literature-screening/internal/criteria"
	"github.com/hubeiqiao/Literature-screening/internal/model"
)

func testCriteria() criteria.Criteria {
	return criteria.Criteria{
		Inclusion: []criteria.Rule{
			{ID: "inc_adult", Terms: []string{"adult", "speaking"}},
			{ID: "inc_retrieval", Terms: []string{"retrieval", "spaced"}},
		},
		Exclusion: []criteria.Rule{
			{ID: "exc_children", Terms: []string{"children", "k-12"}},
			{ID: "exc_attitudes", Terms: []string{"attitudes", "survey"}},
		},
	}
}

func record(title, abstract string) model.BibRecord {
	return model.BibRecord{
		Type: "article",
		Key:  "smith2024",
		Fields: map[string]string{
			"title":    title,
			"abstract": abstract,
			"year":     "2024",
		},
	}
}

func TestClassify_IncludeWhenInclusionDominates(t *testing.T) {
	rec := record("Spaced retrieval practice for adult speaking fluency", "")
	result := Classify(rec, testCriteria())

	require.Equal(t, model.StatusInclude, result.Status)
	require.Len(t, result.InclusionMatches, 2)
	// Both rules match both terms: inclusion score 4.
	assert.InDelta(t, 0.87, result.Confidence, 1e-9)
}

func TestClassify_ExcludeOnExclusionOnlyMatch(t *testing.T) {
	rec := record("Children in K-12 classrooms", "")
	result := Classify(rec, testCriteria())

	require.Len(t, result.ExclusionMatches, 1)
	assert.Equal(t, "exc_children", result.ExclusionMatches[0].RuleID)
	assert.ElementsMatch(t, []string{"children", "k-12"}, result.ExclusionMatches[0].MatchedTerms)
	assert.Equal(t, model.StatusExclude, result.Status)
	// exclusionScore 2, inclusionScore 0.
	assert.InDelta(t, 0.68, result.Confidence, 1e-9)
}

func TestClassify_NeverExcludeWithoutExclusionHits(t *testing.T) {
	rec := record("Crystal growth in microgravity", "No overlap with any rule")
	result := Classify(rec, testCriteria())

	assert.Empty(t, result.ExclusionMatches)
	assert.NotEqual(t, model.StatusExclude, result.Status)
	assert.Equal(t, model.StatusMaybe, result.Status)
	assert.InDelta(t, 0.35, result.Confidence, 1e-9)
}

func TestClassify_IncludeConfidence(t *testing.T) {
	rec := record("Adult speaking practice", "")
	result := Classify(rec, testCriteria())

	require.Equal(t, model.StatusInclude, result.Status)
	// inclusionScore 2, no exclusion hits.
	assert.InDelta(t, 0.71, result.Confidence, 1e-9)
}

func TestClassify_MaybeWhenScoresCompete(t *testing.T) {
	// One inclusion term and one weak exclusion rule that misses its
	// two-term minimum leaves the record in the review pile.
	rec := record("Adult participants completed a survey", "")
	crit := criteria.Criteria{
		Inclusion: []criteria.Rule{{ID: "inc_adult", Terms: []string{"adult"}}},
		Exclusion: []criteria.Rule{{ID: "exc_attitudes", Terms: []string{"attitudes", "poll"}}},
	}
	result := Classify(rec, crit)

	assert.Equal(t, model.StatusMaybe, result.Status)
	assert.Empty(t, result.ExclusionMatches)
}

func TestClassify_SingleStrongTermSatisfiesExclusionMinimum(t *testing.T) {
	// "children" is six letters, so a lone hit still registers the rule.
	rec := record("Language play among children", "")
	result := Classify(rec, testCriteria())

	require.Len(t, result.ExclusionMatches, 1)
	assert.Equal(t, []string{"children"}, result.ExclusionMatches[0].MatchedTerms)
}

func TestClassify_SingleWeakTermMissesExclusionMinimum(t *testing.T) {
	crit := criteria.Criteria{
		Exclusion: []criteria.Rule{{ID: "exc_kids", Terms: []string{"kids", "youth"}}},
	}
	result := Classify(record("Games for kids", ""), crit)
	assert.Empty(t, result.ExclusionMatches)
	assert.Equal(t, model.StatusMaybe, result.Status)
}

func TestClassify_KeywordScopedRuleMatchesKeywordListOnly(t *testing.T) {
	crit := criteria.Criteria{
		Inclusion: []criteria.Rule{
			{ID: "inc_kw", Terms: []string{"fluency"}, Scope: criteria.ScopeKeywords},
		},
	}

	withKeyword := model.BibRecord{
		Key:    "a",
		Fields: map[string]string{"title": "Untitled", "keywords": "Fluency, pronunciation"},
	}
	result := Classify(withKeyword, crit)
	require.Len(t, result.InclusionMatches, 1)

	inTitleOnly := model.BibRecord{
		Key:    "b",
		Fields: map[string]string{"title": "Fluency outcomes"},
	}
	result = Classify(inTitleOnly, crit)
	assert.Empty(t, result.InclusionMatches)
}

func TestClassify_Deterministic(t *testing.T) {
	rec := record("Spaced retrieval for adult speaking", "Practice schedules and fluency")
	crit := testCriteria()
	first := Classify(rec, crit)
	second := Classify(rec, crit)
	assert.Equal(t, first, second)
}

func TestResult_DecisionCarriesRecordIdentity(t *testing.T) {
	rec := record("Adult speaking practice", "")
	decision := Classify(rec, testCriteria()).Decision(rec)

	assert.Equal(t, "smith2024", decision.Key)
	assert.Equal(t, "article", decision.Type)
	assert.Equal(t, "Adult speaking practice", decision.Title)
	assert.Equal(t, "2024", decision.Year)
	assert.Equal(t, model.SourceDeterministic, decision.Source)
}

func TestSummarize_TalliesByStatus(t *testing.T) {
	decisions := []model.TriageDecision{
		{Status: model.StatusInclude},
		{Status: model.StatusInclude},
		{Status: model.StatusExclude},
		{Status: model.StatusMaybe},
	}
	summary := Summarize(decisions)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.ByStatus[string(model.StatusInclude)])
	assert.Equal(t, 1, summary.ByStatus[string(model.StatusExclude)])
	assert.Equal(t, 1, summary.ByStatus[string(model.StatusMaybe)])
}

func defaultRecord(abstract string) model.BibRecord {
	return model.BibRecord{
		Type: "article",
		Key:  "sample",
		Fields: map[string]string{
			"title":    "Adult learners improving speaking skills through behavioral coaching",
			"abstract": abstract,
			"keywords": "Adult, ESL",
			"year":     "2024",
		},
	}
}

func TestClassify_DefaultCriteriaExcludesPopulationMismatch(t *testing.T) {
	rec := defaultRecord("A commentary on K-12 secondary school teachers.")
	result := Classify(rec, criteria.Default())

	require.NotEmpty(t, result.ExclusionMatches)
	assert.Equal(t, model.StatusExclude, result.Status)
	assert.Greater(t, result.Confidence, 0.5)
}

func TestClassify_DefaultCriteriaKeepsRelevantStudy(t *testing.T) {
	rec := defaultRecord("An experiment with adult ESL students focusing on oral proficiency and motivation.")
	result := Classify(rec, criteria.Default())

	require.NotEmpty(t, result.InclusionMatches)
	assert.NotEqual(t, model.StatusExclude, result.Status)
	assert.Greater(t, result.Confidence, 0.5)
}
