package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getHealth(t *testing.T, hc *HealthChecker) (int, healthReport) {
	t.Helper()
	rec := httptest.NewRecorder()
	hc.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var rep healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	return rec.Code, rep
}

func TestHealthAllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mock.ExpectPing()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM campaigns`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	code, rep := getHealth(t, NewHealthChecker(db, rdb))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", rep.Status)
	assert.Equal(t, "2 sending", rep.Checks["sends"])
	assert.Equal(t, "ok", rep.Checks["redis"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	code, rep := getHealth(t, NewHealthChecker(db, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "down", rep.Status)
	assert.Contains(t, rep.Checks["database"], "connection refused")
	assert.Equal(t, "not configured", rep.Checks["redis"])
}

func TestHealthDegraded(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM campaigns`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(75))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	code, rep := getHealth(t, NewHealthChecker(db, rdb))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", rep.Status)
	assert.Equal(t, "75 campaigns stuck in sending", rep.Checks["sends"])
	assert.Equal(t, "unreachable", rep.Checks["redis"])
}
