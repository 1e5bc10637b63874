package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/account"
	"github.com/darasahq/darasa/core/classroom"
)

const (
	classJoinCodeKey = "class_join_code_key"
	enrollmentPKey   = "enrollment_pkey"
)

type classRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Subject   string    `db:"subject"`
	JoinCode  string    `db:"join_code"`
	TeacherID string    `db:"teacher_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func newClassRow(cls classroom.Class) classRow {
	return classRow{
		ID:        cls.ID,
		Name:      cls.Name,
		Subject:   cls.Subject,
		JoinCode:  cls.JoinCode,
		TeacherID: cls.TeacherID,
		CreatedAt: cls.CreatedAt,
		UpdatedAt: cls.UpdatedAt,
	}
}

func (row classRow) class() classroom.Class {
	return classroom.Class{
		ID:        row.ID,
		Name:      row.Name,
		Subject:   row.Subject,
		JoinCode:  row.JoinCode,
		TeacherID: row.TeacherID,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type classRepo struct {
	db *sqlx.DB
}

var _ classroom.Repository = (*classRepo)(nil)

func NewClassRepository(db *sqlx.DB) classroom.Repository {
	return &classRepo{db: db}
}

func (r *classRepo) CreateClass(ctx context.Context, cls classroom.Class) (classroom.Class, error) {
	row := newClassRow(cls)
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	const q = `
	INSERT INTO class (id, name, subject, join_code, teacher_id, created_at, updated_at)
	VALUES (:id, :name, :subject, :join_code, :teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		if uniqueViolation(err) == classJoinCodeKey {
			return classroom.Class{}, classroom.ErrCodeExists
		}
		return classroom.Class{}, errors.Wrap(err, "inserting class")
	}
	return row.class(), nil
}

func (r *classRepo) GetClass(ctx context.Context, filter classroom.GetFilter) (classroom.Class, error) {
	var cond string
	var arg interface{}
	switch {
	case filter.ID != "":
		// the id may be caller-supplied and not a well-formed uuid; comparing
		// as text keeps that a not-found instead of a cast error
		cond, arg = "id::text = $1", filter.ID
	case filter.JoinCode != "":
		cond, arg = "join_code = $1", filter.JoinCode
	default:
		return classroom.Class{}, errors.New("empty class filter")
	}

	var row classRow
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM class WHERE "+cond, arg); err != nil {
		if err == sql.ErrNoRows {
			return classroom.Class{}, classroom.ErrNotFound
		}
		return classroom.Class{}, errors.Wrap(err, "getting class")
	}
	return row.class(), nil
}

func (r *classRepo) QueryClassesByTeacher(ctx context.Context, teacherID string) ([]classroom.Class, error) {
	const q = `SELECT * FROM class WHERE teacher_id = $1 ORDER BY created_at`
	return r.queryClasses(ctx, q, teacherID)
}

func (r *classRepo) QueryClassesByStudent(ctx context.Context, studentID string) ([]classroom.Class, error) {
	const q = `
	SELECT c.* FROM class c
	INNER JOIN enrollment e ON e.class_id = c.id
	WHERE e.student_id = $1
	ORDER BY c.created_at`
	return r.queryClasses(ctx, q, studentID)
}

func (r *classRepo) queryClasses(ctx context.Context, q string, arg interface{}) ([]classroom.Class, error) {
	var rows []classRow
	if err := r.db.SelectContext(ctx, &rows, q, arg); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}

	classes := make([]classroom.Class, len(rows))
	for i, row := range rows {
		classes[i] = row.class()
	}
	return classes, nil
}

func (r *classRepo) EnrollStudent(ctx context.Context, classID, studentID string) error {
	const q = `INSERT INTO enrollment (class_id, student_id, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, q, classID, studentID, time.Now().UTC()); err != nil {
		if uniqueViolation(err) == enrollmentPKey {
			return classroom.ErrAlreadyEnrolled
		}
		return errors.Wrap(err, "enrolling student")
	}
	return nil
}

func (r *classRepo) QueryEnrolledStudents(ctx context.Context, classID string) ([]account.Account, error) {
	const q = `
	SELECT a.* FROM account a
	INNER JOIN enrollment e ON e.student_id = a.id
	WHERE e.class_id = $1
	ORDER BY a.name`
	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, q, classID); err != nil {
		return nil, errors.Wrap(err, "querying enrolled students")
	}

	accts := make([]account.Account, len(rows))
	for i, row := range rows {
		accts[i] = row.account()
	}
	return accts, nil
}

func (r *classRepo) DeleteClass(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM class WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, errors.Wrap(err, "deleting class")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "deleting class")
}
