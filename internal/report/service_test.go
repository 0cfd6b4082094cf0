package report

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"tin-report/internal/dbexec"
	"tin-report/internal/export"
	"tin-report/internal/filter"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	policy := filter.DefaultPolicy()
	policy.Now = func() time.Time {
		return time.Date(2024, 7, 15, 10, 30, 0, 0, time.UTC)
	}

	return &Service{
		Executor: dbexec.NewStandardExecutor(db),
		Table:    "records",
		Policy:   policy,
		Exporter: &export.Exporter{},
	}, mock
}

func TestGenerate_SingleTIN(t *testing.T) {
	svc, mock := newTestService(t)

	rows := sqlmock.NewRows([]string{"tin", "npi", "amount"}).
		AddRow("123456789", "NPI0000001", "10.50").
		AddRow("123456789", nil, "99.00").
		AddRow("123456789", "NPI0000002", "0.00")
	mock.ExpectQuery("SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?)").
		WithArgs("2024-06-01", "2024-01-01", "123456789").
		WillReturnRows(rows)

	artifact, err := svc.Generate(context.Background(), filter.RawFilter{
		TIN:       "123456789",
		EndDate:   "2024-06-01",
		StartDate: "2024-01-01",
	})
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.Equal(t, "123456789_2024-06-01.xlsx", artifact.Filename)
	assert.Equal(t, 3, artifact.Rows)

	f, err := excelize.OpenReader(bytes.NewReader(artifact.Content))
	require.NoError(t, err)
	defer f.Close()

	sheetRows, err := f.GetRows(export.DefaultSheetName)
	require.NoError(t, err)
	require.Len(t, sheetRows, 4) // header + 3 data rows
	assert.Equal(t, []string{"tin", "npi", "amount"}, sheetRows[0])
	assert.Equal(t, []string{"123456789", "NPI0000001", "10.50"}, sheetRows[1])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_NoMatchingRows(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?)").
		WithArgs("2024-06-01", "2024-01-01", "123456789").
		WillReturnRows(sqlmock.NewRows([]string{"tin", "npi", "amount"}))

	artifact, err := svc.Generate(context.Background(), filter.RawFilter{
		TIN:       "123456789",
		EndDate:   "2024-06-01",
		StartDate: "2024-01-01",
	})
	assert.ErrorIs(t, err, export.ErrNoRows)
	assert.Nil(t, artifact)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_MultipleTINsWithNPI(t *testing.T) {
	svc, mock := newTestService(t)

	rows := sqlmock.NewRows([]string{"tin", "npi"}).
		AddRow("111111111", "NPI0000001").
		AddRow("222222222", "NPI0000001")
	mock.ExpectQuery("SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?,?) AND `npi` = ?").
		WithArgs("2024-06-01", "2024-01-01", "111111111", "222222222", "NPI0000001").
		WillReturnRows(rows)

	artifact, err := svc.Generate(context.Background(), filter.RawFilter{
		TIN:       "111111111, 222222222",
		EndDate:   "2024-06-01",
		StartDate: "2024-01-01",
		NPI:       "NPI0000001",
	})
	require.NoError(t, err)

	assert.Equal(t, "111111111-222222222_2024-06-01.xlsx", artifact.Filename)
	assert.Equal(t, 2, artifact.Rows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_DefaultStartDate(t *testing.T) {
	svc, mock := newTestService(t)

	// The pinned clock supplies the start date when the field is absent.
	mock.ExpectQuery("SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?)").
		WithArgs("2024-06-01", "2024-07-15", "123456789").
		WillReturnRows(sqlmock.NewRows([]string{"tin"}).AddRow("123456789"))

	_, err := svc.Generate(context.Background(), filter.RawFilter{
		TIN:     "123456789",
		EndDate: "2024-06-01",
	})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_ValidationFailureSkipsWarehouse(t *testing.T) {
	svc, mock := newTestService(t)

	_, err := svc.Generate(context.Background(), filter.RawFilter{
		TIN:     "12345", // wrong length
		EndDate: "2024-06-01",
	})

	var verr *filter.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, filter.CodeBadTIN, verr.Code)

	// No query expectations were registered; any execution would fail here.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_QueryFailure(t *testing.T) {
	svc, mock := newTestService(t)

	cause := errors.New("connection reset")
	mock.ExpectQuery("SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?)").
		WithArgs("2024-06-01", "2024-01-01", "123456789").
		WillReturnError(cause)

	_, err := svc.Generate(context.Background(), filter.RawFilter{
		TIN:       "123456789",
		EndDate:   "2024-06-01",
		StartDate: "2024-01-01",
	})

	var execErr *dbexec.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "query", execErr.Stage)
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_RowIterationFailure(t *testing.T) {
	svc, mock := newTestService(t)

	rows := sqlmock.NewRows([]string{"tin"}).
		AddRow("123456789").
		AddRow("123456789").
		RowError(1, errors.New("read timeout"))
	mock.ExpectQuery("SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?)").
		WithArgs("2024-06-01", "2024-01-01", "123456789").
		WillReturnRows(rows)

	_, err := svc.Generate(context.Background(), filter.RawFilter{
		TIN:       "123456789",
		EndDate:   "2024-06-01",
		StartDate: "2024-01-01",
	})

	var execErr *dbexec.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "rows", execErr.Stage)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Repeated identical requests with explicit dates produce identical artifacts.
func TestGenerate_Deterministic(t *testing.T) {
	svc, mock := newTestService(t)

	raw := filter.RawFilter{
		TIN:       "123456789",
		EndDate:   "2024-06-01",
		StartDate: "2024-01-01",
	}
	data := [][]driver.Value{
		{"123456789", "NPI0000001", "10.50"},
		{"123456789", "NPI0000002", "99.00"},
	}
	for i := 0; i < 2; i++ {
		rows := sqlmock.NewRows([]string{"tin", "npi", "amount"})
		for _, row := range data {
			rows.AddRow(row...)
		}
		mock.ExpectQuery("SELECT * FROM `records` WHERE `end_date` >= ? AND `start_date` <= ? AND `tin` IN (?)").
			WithArgs("2024-06-01", "2024-01-01", "123456789").
			WillReturnRows(rows)
	}

	first, err := svc.Generate(context.Background(), raw)
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, first.Filename, second.Filename)
	assert.Equal(t, first.Content, second.Content)

	assert.NoError(t, mock.ExpectationsWereMet())
}
