package export

import (
	"bytes"
	"testing"
	"time"

	"tin-report/internal/dbexec"
	"tin-report/internal/filter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleResult() *dbexec.TabularResult {
	return &dbexec.TabularResult{
		Columns: []string{"tin", "npi", "amount"},
		Rows: [][]any{
			{"123456789", "NPI0000001", "10.50"},
			{"123456789", nil, "99.00"},
			{"987654321", "NPI0000002", "0.00"},
		},
	}
}

func TestExport_HeaderAndRows(t *testing.T) {
	e := &Exporter{}
	content, err := e.Export(sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, content)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DefaultSheetName}, f.GetSheetList())

	rows, err := f.GetRows(DefaultSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4) // header + 3 data rows
	assert.Equal(t, []string{"tin", "npi", "amount"}, rows[0])
	assert.Equal(t, []string{"123456789", "NPI0000001", "10.50"}, rows[1])
	assert.Equal(t, []string{"987654321", "NPI0000002", "0.00"}, rows[3])
}

func TestExport_CustomSheetName(t *testing.T) {
	e := &Exporter{SheetName: "Claims"}
	content, err := e.Export(sampleResult())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Claims"}, f.GetSheetList())
}

func TestExport_NoRows(t *testing.T) {
	e := &Exporter{}

	content, err := e.Export(&dbexec.TabularResult{Columns: []string{"tin"}})
	assert.ErrorIs(t, err, ErrNoRows)
	assert.Nil(t, content)

	content, err = e.Export(nil)
	assert.ErrorIs(t, err, ErrNoRows)
	assert.Nil(t, content)
}

func TestExport_Idempotent(t *testing.T) {
	e := &Exporter{}
	result := sampleResult()

	first, err := e.Export(result)
	require.NoError(t, err)
	second, err := e.Export(result)
	require.NoError(t, err)

	assert.Equal(t, first, second, "repeated exports must be byte-identical")
}

func TestFilename(t *testing.T) {
	fs := filter.FilterSet{
		TINs:    []string{"123456789"},
		EndDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "123456789_2024-06-01.xlsx", Filename(fs))

	fs.TINs = []string{"111111111", "222222222"}
	assert.Equal(t, "111111111-222222222_2024-06-01.xlsx", Filename(fs))
}
