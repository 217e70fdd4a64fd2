package instructor

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/markbook/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound          = errors.New("instructor not found")
	ErrEmailExists       = errors.New("an instructor with this email already exists")
	ErrUsernameExists    = errors.New("an instructor with this username already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreateInstructor(ctx context.Context, ins Instructor) (Instructor, error)
		QueryAllInstructors(ctx context.Context) ([]Instructor, error)
		GetInstructorByID(ctx context.Context, id string) (Instructor, error)
		GetInstructorByUsernameOrEmail(ctx context.Context, username string) (Instructor, error)
		UpdateInstructor(ctx context.Context, ins Instructor) (Instructor, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) checkUniqueness(uname, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, excludedIDs...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ni NewInstructor) (Instructor, error) {
	if err := ni.Validate(svc); err != nil {
		return Instructor{}, err
	}

	now := NowFunc().UTC()
	ins := Instructor{
		ID:        uuid.NewString(),
		Name:      ni.Name,
		Username:  ni.Username,
		Email:     ni.Email,
		IsActive:  true,
		IsAdmin:   ni.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ins.SetPassword(ni.Password); err != nil {
		return Instructor{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateInstructor(ctx, ins)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Instructor, error) {
	return svc.repo.QueryAllInstructors(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Instructor, error) {
	return svc.repo.GetInstructorByID(ctx, id)
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (Instructor, error) {
	return svc.repo.GetInstructorByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

// Authenticate returns the active instructor matching the credentials.
func (svc *Service) Authenticate(ctx context.Context, creds LoginCredentials) (Instructor, error) {
	if err := svc.validate.Struct(creds); err != nil {
		return Instructor{}, err
	}
	ins, err := svc.GetByUsernameOrEmail(ctx, creds.Username)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Instructor{}, ErrInvalidCredential
		}
		return Instructor{}, err
	}
	if !ins.IsActive || ins.CheckPassword(creds.Password) != nil {
		return Instructor{}, ErrInvalidCredential
	}
	return ins, nil
}

func (svc *Service) SetLastLogin(ctx context.Context, ins Instructor) (Instructor, error) {
	ins.LastLogin = NowFunc().UTC()
	return svc.repo.UpdateInstructor(ctx, ins)
}

func (svc *Service) ResetPassword(ctx context.Context, id string, rp ResetPassword) (Instructor, error) {
	ins, err := svc.repo.GetInstructorByID(ctx, id)
	if err != nil {
		return Instructor{}, err
	}
	if err = rp.Validate(ins, svc.validate); err != nil {
		return Instructor{}, err
	}
	if err = ins.SetPassword(rp.Password); err != nil {
		return Instructor{}, errors.Wrap(err, "hashing password")
	}
	ins.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateInstructor(ctx, ins)
}
