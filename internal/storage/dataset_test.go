package storage

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/todmy/embedscope/internal/dataset"
)

const sample = `{
	"b": {"text": "second", "embedding": [0.5, 1], "hue_var": "x"},
	"a": {"text": "first", "embedding": [1, 0]}
}`

func TestPostgresDatasetRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDatasetRepository(db)

	data, err := dataset.Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("failed to decode dataset: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO datasets").
		WithArgs(sqlmock.AnyArg(), "words", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep := mock.ExpectPrepare("INSERT INTO dataset_points")
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), 0, "b", "second", []byte(`"x"`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), 1, "a", "first", []byte(`null`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ds, err := repo.Create(context.Background(), "words", data)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if ds.ID == uuid.Nil {
		t.Error("expected dataset ID to be generated")
	}
	if ds.Points != 2 || ds.Dimension != 2 {
		t.Errorf("expected 2 points of dimension 2, got %d of %d", ds.Points, ds.Dimension)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresDatasetRepository_Create_RollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDatasetRepository(db)
	data, err := dataset.Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("failed to decode dataset: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO datasets").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	if _, err := repo.Create(context.Background(), "words", data); err == nil {
		t.Error("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresDatasetRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDatasetRepository(db)

	id := uuid.New()
	createdAt := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "dimension", "created_at", "count"}).
		AddRow(id.String(), "words", 3, createdAt, 12)

	mock.ExpectQuery("SELECT (.+) FROM datasets d").
		WithArgs(id).
		WillReturnRows(rows)

	ds, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ds.ID != id {
		t.Errorf("expected ID %s, got %s", id, ds.ID)
	}
	if ds.Points != 12 {
		t.Errorf("expected 12 points, got %d", ds.Points)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresDatasetRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDatasetRepository(db)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM datasets d").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	ds, err := repo.GetByID(context.Background(), id)
	if err != ErrDatasetNotFound {
		t.Errorf("expected ErrDatasetNotFound, got %v", err)
	}
	if ds != nil {
		t.Error("expected nil dataset")
	}
}

func TestPostgresDatasetRepository_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDatasetRepository(db)
	id := uuid.New()

	rows := sqlmock.NewRows([]string{"point_id", "text", "hue", "embedding"}).
		AddRow("b", "second", []byte(`"x"`), []byte("[0.5,1]")).
		AddRow("a", "first", nil, []byte("[1,0]"))

	mock.ExpectQuery("SELECT (.+) FROM dataset_points").
		WithArgs(id).
		WillReturnRows(rows)

	data, err := repo.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if data.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", data.Len())
	}
	if data.At(0).ID != "b" || data.At(1).ID != "a" {
		t.Errorf("expected stored order, got %s, %s", data.At(0).ID, data.At(1).ID)
	}
	if data.At(0).Hue != "x" {
		t.Errorf("expected hue x, got %v", data.At(0).Hue)
	}
	if data.At(1).Hue != nil {
		t.Errorf("expected nil hue, got %v", data.At(1).Hue)
	}
	if data.At(0).Embedding[0] != 0.5 {
		t.Errorf("expected embedding 0.5, got %v", data.At(0).Embedding[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresDatasetRepository_Load_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDatasetRepository(db)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM dataset_points").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"point_id", "text", "hue", "embedding"}))

	if _, err := repo.Load(context.Background(), id); err != ErrDatasetNotFound {
		t.Errorf("expected ErrDatasetNotFound, got %v", err)
	}
}

func TestPostgresDatasetRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDatasetRepository(db)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM datasets").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Delete(context.Background(), id); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	mock.ExpectExec("DELETE FROM datasets").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.Delete(context.Background(), id); err != ErrDatasetNotFound {
		t.Errorf("expected ErrDatasetNotFound, got %v", err)
	}
}
