package classroom

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/account"
)

var (
	// errors
	ErrNotFound        = errors.New("class not found")
	ErrCodeExists      = errors.New("this join code is already taken")
	ErrAlreadyEnrolled = errors.New("student is already enrolled in this class")
	ErrNotEnrolled     = errors.New("student is not enrolled in this class")

	nowFunc = time.Now // mockable

	codeInsertRetries = 3
)

type (
	// GetFilter selects a single Class by exactly one of its unique fields.
	GetFilter struct {
		ID       string
		JoinCode string
	}

	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, filter GetFilter) (Class, error)
		QueryClassesByTeacher(ctx context.Context, teacherID string) ([]Class, error)
		QueryClassesByStudent(ctx context.Context, studentID string) ([]Class, error)
		EnrollStudent(ctx context.Context, classID, studentID string) error
		QueryEnrolledStudents(ctx context.Context, classID string) ([]account.Account, error)
		DeleteClass(ctx context.Context, id string) (bool, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewClass, teacherID string) (Class, error)
		GetByID(ctx context.Context, id string) (Class, error)
		GetByCode(ctx context.Context, code string) (Class, error)
		Join(ctx context.Context, code, studentID string) (Class, error)
		ByTeacher(ctx context.Context, teacherID string) ([]Class, error)
		ByStudent(ctx context.Context, studentID string) ([]Class, error)
		Students(ctx context.Context, classID string) ([]account.Account, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, nc NewClass, teacherID string) (Class, error) {
	now := nowFunc().UTC()
	cls := Class{
		Name:      nc.Name,
		Subject:   nc.Subject,
		TeacherID: teacherID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// the pre-insert check can race a concurrent creation of the same code;
	// an insert-time collision gets a fresh code.
	var created Class
	var err error
	for attempt := 0; attempt < codeInsertRetries; attempt++ {
		cls.JoinCode, err = account.GenerateCode(svc.joinCodeExists(ctx), account.DefaultCodeLength)
		if err != nil {
			return Class{}, errors.Wrap(err, "generating join code")
		}
		created, err = svc.repo.CreateClass(ctx, cls)
		if errors.Cause(err) == ErrCodeExists {
			continue
		}
		return created, err
	}
	return Class{}, errors.Wrap(err, "creating class")
}

func (svc *service) joinCodeExists(ctx context.Context) func(code string) (bool, error) {
	return func(code string) (bool, error) {
		_, err := svc.repo.GetClass(ctx, GetFilter{JoinCode: code})
		if err == nil {
			return true, nil
		}
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
}

func (svc *service) GetByID(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, GetFilter{ID: id})
}

func (svc *service) GetByCode(ctx context.Context, code string) (Class, error) {
	return svc.repo.GetClass(ctx, GetFilter{JoinCode: code})
}

func (svc *service) Join(ctx context.Context, code, studentID string) (Class, error) {
	cls, err := svc.GetByCode(ctx, code)
	if err != nil {
		return Class{}, err
	}
	if err = svc.repo.EnrollStudent(ctx, cls.ID, studentID); err != nil {
		return Class{}, err
	}
	return cls, nil
}

func (svc *service) ByTeacher(ctx context.Context, teacherID string) ([]Class, error) {
	return svc.repo.QueryClassesByTeacher(ctx, teacherID)
}

func (svc *service) ByStudent(ctx context.Context, studentID string) ([]Class, error) {
	return svc.repo.QueryClassesByStudent(ctx, studentID)
}

func (svc *service) Students(ctx context.Context, classID string) ([]account.Account, error) {
	return svc.repo.QueryEnrolledStudents(ctx, classID)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	existed, err := svc.repo.DeleteClass(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return ErrNotFound
	}
	return nil
}
