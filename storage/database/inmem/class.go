package inmem

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/account"
	"github.com/darasahq/darasa/core/classroom"
)

type classRepo struct {
	db *DB
}

var _ classroom.Repository = (*classRepo)(nil)

func NewClassRepository(db *DB) classroom.Repository {
	return &classRepo{db: db}
}

func (r *classRepo) CreateClass(_ context.Context, cls classroom.Class) (classroom.Class, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.classes {
		if existing.JoinCode == cls.JoinCode {
			return classroom.Class{}, classroom.ErrCodeExists
		}
	}

	if cls.ID == "" {
		cls.ID = uuid.New().String()
	}
	r.db.classes[cls.ID] = cls
	return cls, nil
}

func (r *classRepo) GetClass(_ context.Context, filter classroom.GetFilter) (classroom.Class, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, cls := range r.db.classes {
		switch {
		case filter.ID != "" && cls.ID == filter.ID,
			filter.JoinCode != "" && cls.JoinCode == filter.JoinCode:
			return cls, nil
		}
	}
	return classroom.Class{}, classroom.ErrNotFound
}

func (r *classRepo) QueryClassesByTeacher(_ context.Context, teacherID string) ([]classroom.Class, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var classes []classroom.Class
	for _, cls := range r.db.classes {
		if cls.TeacherID == teacherID {
			classes = append(classes, cls)
		}
	}
	sortClasses(classes)
	return classes, nil
}

func (r *classRepo) QueryClassesByStudent(_ context.Context, studentID string) ([]classroom.Class, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var classes []classroom.Class
	for classID, students := range r.db.enrollments {
		if !students[studentID] {
			continue
		}
		if cls, ok := r.db.classes[classID]; ok {
			classes = append(classes, cls)
		}
	}
	sortClasses(classes)
	return classes, nil
}

func (r *classRepo) EnrollStudent(_ context.Context, classID, studentID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.enrollments[classID] == nil {
		r.db.enrollments[classID] = make(map[string]bool)
	}
	if r.db.enrollments[classID][studentID] {
		return classroom.ErrAlreadyEnrolled
	}
	r.db.enrollments[classID][studentID] = true
	return nil
}

func (r *classRepo) QueryEnrolledStudents(_ context.Context, classID string) ([]account.Account, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	students := make([]account.Account, 0, len(r.db.enrollments[classID]))
	for studentID := range r.db.enrollments[classID] {
		if acct, ok := r.db.accounts[studentID]; ok {
			students = append(students, acct)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (r *classRepo) DeleteClass(_ context.Context, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.classes[id]; !ok {
		return false, nil
	}
	delete(r.db.classes, id)
	delete(r.db.enrollments, id)
	return true, nil
}

func sortClasses(classes []classroom.Class) {
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].CreatedAt.Equal(classes[j].CreatedAt) {
			return classes[i].ID < classes[j].ID
		}
		return classes[i].CreatedAt.Before(classes[j].CreatedAt)
	})
}
