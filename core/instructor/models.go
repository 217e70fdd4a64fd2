package instructor

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/markbook/core"
)

type Instructor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (ins *Instructor) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	ins.PasswordHash = hash
	return nil
}

func (ins *Instructor) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(ins.PasswordHash, []byte(pwd))
}

// NewInstructor contains information needed to create a new Instructor.
type NewInstructor struct {
	Name            string `json:"name" validate:"required,notblank"`
	Username        string `json:"username" validate:"required,min=4,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	IsAdmin         bool   `json:"is_admin"`
}

func (ni *NewInstructor) Validate(svc *Service) error {
	ni.Name = core.CleanString(ni.Name)
	ni.Username = core.CleanString(ni.Username, true /* lower */)
	ni.Email = core.CleanString(ni.Email, true /* lower */)

	if err := svc.validate.Struct(ni); err != nil {
		return err
	}
	return svc.checkUniqueness(ni.Username, ni.Email)
}

type ResetPassword struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	// instructor attributes the password must not resemble
	name, username, email string
}

func (rp *ResetPassword) Validate(ins Instructor, validate *validator.Validate) error {
	rp.name = ins.Name
	rp.username = ins.Username
	rp.email = ins.Email
	return validate.Struct(rp)
}

type LoginCredentials struct {
	Username string `json:"username" validate:"required"` // username or email
	Password string `json:"password" validate:"required"`
}
