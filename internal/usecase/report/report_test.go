package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntletci/gauntlet/internal/domain"
)

func strPtr(s string) *string       { return &s }
func floatPtr(f float64) *float64   { return &f }
func byName(rs []domain.CheckResult, name string) (domain.CheckResult, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r, true
		}
	}
	return domain.CheckResult{}, false
}

func TestEvaluate_EqAndGt(t *testing.T) {
	body := []byte(`{"summary":{"failed":0,"total":120},"coverage":{"percent":93.4}}`)

	checks := map[string]domain.CheckSpec{
		"$.summary.failed":   {Eq: strPtr("0")},
		"$.coverage.percent": {Gt: floatPtr(90)},
	}

	out := Evaluate(body, checks)
	require.Len(t, out, 2)

	eq, ok := byName(out, "jsonpath.eq")
	require.True(t, ok)
	assert.True(t, eq.Passed, eq.Message)

	gt, ok := byName(out, "jsonpath.gt")
	require.True(t, ok)
	assert.True(t, gt.Passed, gt.Message)
}

func TestEvaluate_FailingCheck(t *testing.T) {
	body := []byte(`{"summary":{"failed":3}}`)

	out := Evaluate(body, map[string]domain.CheckSpec{
		"$.summary.failed": {Eq: strPtr("0")},
	})
	require.Len(t, out, 1)
	assert.False(t, out[0].Passed)
	assert.Contains(t, out[0].Message, `expected "0", got "3"`)
}

func TestEvaluate_ExistsContainsMatchesLt(t *testing.T) {
	body := []byte(`{"run":{"id":"abc-123","status":"all green","duration_ms":1500}}`)

	out := Evaluate(body, map[string]domain.CheckSpec{
		"$.run.id":          {Exists: true, Matches: strPtr(`^[a-z]+-\d+$`)},
		"$.run.status":      {Contains: strPtr("green")},
		"$.run.duration_ms": {Lt: floatPtr(2000)},
	})
	require.Len(t, out, 4)
	for _, r := range out {
		assert.True(t, r.Passed, "%s: %s", r.Name, r.Message)
	}
}

func TestEvaluate_InvalidJSONFailsAll(t *testing.T) {
	out := Evaluate([]byte("not json"), map[string]domain.CheckSpec{
		"$.a": {Exists: true},
		"$.b": {Eq: strPtr("1")},
	})
	require.Len(t, out, 2)
	for _, r := range out {
		assert.False(t, r.Passed)
	}
}

func TestEvaluate_NoChecks(t *testing.T) {
	out := Evaluate([]byte(`{}`), nil)
	assert.Empty(t, out)
}

func TestExtract_Values(t *testing.T) {
	body := []byte(`{"coverage":{"percent":93.4},"summary":{"total":120}}`)

	vars, results := Extract(body, map[string]string{
		"coverage": "$.coverage.percent",
		"tests":    "$.summary.total",
	})

	require.Len(t, results, 2)
	assert.Equal(t, "93.4", vars["coverage"])
	assert.Equal(t, "120", vars["tests"])
	for _, r := range results {
		assert.True(t, r.Success, r.Message)
	}
}

func TestExtract_PartialFailure(t *testing.T) {
	body := []byte(`{"coverage":{"percent":93.4}}`)

	vars, results := Extract(body, map[string]string{
		"coverage": "$.coverage.percent",
		"missing":  "$.nope.nothing",
	})

	require.Len(t, results, 2)
	assert.Equal(t, "93.4", vars["coverage"])
	_, hasMissing := vars["missing"]
	assert.False(t, hasMissing)

	// Results are sorted by name.
	assert.Equal(t, "coverage", results[0].Name)
	assert.True(t, results[0].Success)
	assert.Equal(t, "missing", results[1].Name)
	assert.False(t, results[1].Success)
}

func TestExtract_InvalidJSON(t *testing.T) {
	vars, results := Extract([]byte("<html>"), map[string]string{"x": "$.x"})
	assert.Empty(t, vars)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}
