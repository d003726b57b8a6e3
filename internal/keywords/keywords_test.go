package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDropsStopwordsAndShortTokens(t *testing.T) {
	terms := Extract("What is the launch date for Project X?")
	assert.Equal(t, []string{"launch", "date", "project"}, terms)
}

func TestExtractLowercasesAndDeduplicates(t *testing.T) {
	terms := Extract("Kubernetes kubernetes KUBERNETES cluster")
	assert.Equal(t, []string{"kubernetes", "cluster"}, terms)
}

func TestExtractSplitsOnNonAlphanumerics(t *testing.T) {
	terms := Extract("vector-database_v2, embedding/index")
	assert.Equal(t, []string{"vector", "database", "embedding", "index"}, terms)
}

func TestExtractEmptyInput(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.Empty(t, Extract("a an of"))
}

func TestScoreFractionOfMatches(t *testing.T) {
	kws := []string{"launch", "date", "project"}
	doc := "Project X launch is scheduled for next quarter"
	assert.InDelta(t, 2.0/3.0, Score(kws, doc), 1e-9)
}

func TestScoreCaseInsensitive(t *testing.T) {
	assert.InDelta(t, 1.0, Score([]string{"project"}, "PROJECT summary"), 1e-9)
}

func TestScoreEmptyKeywords(t *testing.T) {
	assert.Zero(t, Score(nil, "anything"))
	assert.Zero(t, Score([]string{}, "anything"))
}

func TestScoreNoMatches(t *testing.T) {
	assert.Zero(t, Score([]string{"quantum"}, "classical mechanics"))
}
