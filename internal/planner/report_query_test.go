package planner

import (
	"fmt"
	"testing"
	"time"

	"tin-report/internal/filter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFilterSet(tins []string, npi string) filter.FilterSet {
	return filter.FilterSet{
		TINs:      tins,
		EndDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		StartDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		NPI:       npi,
	}
}

func manyTINs(n int) []string {
	tins := make([]string, n)
	for i := range tins {
		tins[i] = fmt.Sprintf("10000000%d", i)
	}
	return tins
}

func TestBuildReportQuery_PlaceholderCountMatchesArgs(t *testing.T) {
	// The single most important property of the pipeline: one placeholder
	// per parameter for every TIN arity, with and without NPI.
	for _, tinCount := range []int{1, 2, 5} {
		for _, npi := range []string{"", "NPI0000001"} {
			name := fmt.Sprintf("tins=%d npi=%v", tinCount, npi != "")
			t.Run(name, func(t *testing.T) {
				q, err := BuildReportQuery("records", testFilterSet(manyTINs(tinCount), npi))
				require.NoError(t, err)

				wantParams := 2 + tinCount
				if npi != "" {
					wantParams++
				}
				assert.Equal(t, wantParams, len(q.Args))
				assert.Equal(t, wantParams, q.PlaceholderCount())
			})
		}
	}
}

func TestBuildReportQuery_ParameterOrder(t *testing.T) {
	// Distinguishable sentinels verify positional binding:
	// [endDate, startDate, tin..., npi].
	fs := filter.FilterSet{
		TINs:      []string{"111111111", "222222222", "333333333"},
		EndDate:   time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC),
		StartDate: time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
		NPI:       "NPI0000001",
	}

	q, err := BuildReportQuery("records", fs)
	require.NoError(t, err)
	assert.Equal(t, []any{"2099-12-31", "1970-01-02", "111111111", "222222222", "333333333", "NPI0000001"}, q.Args)
}

func TestBuildReportQuery_SQLShape(t *testing.T) {
	q, err := BuildReportQuery("records", testFilterSet([]string{"111111111", "222222222"}, ""))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?,?)",
		q.SQL,
	)

	q, err = BuildReportQuery("records", testFilterSet([]string{"111111111"}, "NPI0000001"))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?) AND `npi` = ?",
		q.SQL,
	)
}

func TestBuildReportQuery_NoDanglingOperatorWithoutNPI(t *testing.T) {
	q, err := BuildReportQuery("records", testFilterSet([]string{"123456789"}, ""))
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "npi")
	assert.NotRegexp(t, `AND\s*$`, q.SQL)
}

func TestBuildReportQuery_Deterministic(t *testing.T) {
	fs := testFilterSet(manyTINs(3), "NPI0000001")
	a, err := BuildReportQuery("records", fs)
	require.NoError(t, err)
	b, err := BuildReportQuery("records", fs)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildReportQuery_Errors(t *testing.T) {
	_, err := BuildReportQuery("records", filter.FilterSet{})
	assert.Error(t, err)

	_, err = BuildReportQuery("", testFilterSet([]string{"123456789"}, ""))
	assert.Error(t, err)
}

func TestRenderForLog(t *testing.T) {
	q, err := BuildReportQuery("records", testFilterSet([]string{"123456789"}, ""))
	require.NoError(t, err)

	rendered := RenderForLog(q)
	assert.Equal(t,
		"SELECT * FROM `records` WHERE `end_date` >= '2024-06-01' AND `start_date` <= '2024-05-01' AND `tin` IN ('123456789')",
		rendered,
	)
	// The executable text is untouched.
	assert.Equal(t, 3, q.PlaceholderCount())
}

func TestRenderForLog_QuotesHostileValues(t *testing.T) {
	q := PreparedQuery{SQL: "SELECT * FROM `records` WHERE `tin` IN (?)", Args: []any{"x' OR '1'='1"}}
	rendered := RenderForLog(q)
	assert.Equal(t, "SELECT * FROM `records` WHERE `tin` IN ('x'' OR ''1''=''1')", rendered)
}

func TestRenderForLog_QuestionMarkInValue(t *testing.T) {
	// A "?" inside an earlier value must not claim a later placeholder.
	q := PreparedQuery{
		SQL:  "SELECT * FROM `records` WHERE `tin` IN (?, ?)",
		Args: []any{"12345678?", "987654321"},
	}
	rendered := RenderForLog(q)
	assert.Equal(t, "SELECT * FROM `records` WHERE `tin` IN ('12345678?', '987654321')", rendered)
}
