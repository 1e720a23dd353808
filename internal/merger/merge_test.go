package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeOutputXML = `<robot generator="Robot"><suite></suite></robot>`

func TestMergeCollapsesReExecutionsToLatestAttempt(t *testing.T) {
	results := []*SuiteResult{
		{Source: "tests/login.robot", Attempt: 0, RawXML: []byte(fakeOutputXML)},
		{Source: "tests/login.robot", Attempt: 1, RawXML: []byte(fakeOutputXML)},
	}

	merged, errs := Merge(results)
	require.Empty(t, errs)
	require.Len(t, merged, 1, "a re-executed suite must appear exactly once")
	assert.Equal(t, 1, merged[0].Attempt, "the latest attempt wins")
}

func TestMergeKeepsArgumentFileVariantsAsSiblings(t *testing.T) {
	results := []*SuiteResult{
		{Source: "tests/login.robot", Variant: "staging", Attempt: 0, RawXML: []byte(fakeOutputXML)},
		{Source: "tests/login.robot", Variant: "production", Attempt: 0, RawXML: []byte(fakeOutputXML)},
	}

	merged, errs := Merge(results)
	require.Empty(t, errs)
	require.Len(t, merged, 2, "distinct argument-file variants of one source are not re-executions and must not collapse")
	assert.Equal(t, "production", merged[0].Variant)
	assert.Equal(t, "staging", merged[1].Variant)
}

func TestMergeSurfacesRecoverableErrors(t *testing.T) {
	results := []*SuiteResult{
		{Source: "tests/broken.robot", RawXML: nil},
		{Source: "tests/login.robot", RawXML: []byte(fakeOutputXML)},
	}

	merged, errs := Merge(results)
	require.Len(t, errs, 1)
	require.Len(t, merged, 1)
	var merr *MergeError
	require.ErrorAs(t, errs[0], &merr)
}

func TestMergeIsIdempotent(t *testing.T) {
	results := []*SuiteResult{
		{Source: "tests/login.robot", Attempt: 0, RawXML: []byte(fakeOutputXML)},
		{Source: "tests/logout.robot", Attempt: 0, RawXML: []byte(fakeOutputXML)},
	}
	assert.True(t, IsIdempotent(results))
}

func TestRewriteArtifactPaths(t *testing.T) {
	raw := []byte(`<msg><a href="screenshot1.png">shot</a></msg>`)
	mappings := []PathMapping{{From: "screenshot1.png", To: "artifacts/0-screenshot1.png"}}

	out := RewriteArtifactPaths(raw, mappings)
	assert.Contains(t, string(out), `href="artifacts/0-screenshot1.png"`)
}

func TestBuildMappingNamespacesByQueueIndex(t *testing.T) {
	mappings := BuildMapping(3, []string{"shot.png"}, "artifacts")
	require.Len(t, mappings, 1)
	assert.Equal(t, "artifacts/3-shot.png", mappings[0].To)
}
