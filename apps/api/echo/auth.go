package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/markbook/core"
	"github.com/trezcool/markbook/core/instructor"
)

var (
	contextTokenKey      = "instructorToken"
	contextInstructorKey = "instructor"

	nowFunc = time.Now // mockable
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"`
}

type authenticator struct {
	conf      *core.Config
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		conf: conf,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

// NewClaims returns the claims of a token issued to the instructor.
// origIat is the issue time of the first token of a refresh chain.
func NewClaims(conf *core.Config, ins instructor.Instructor, origIat ...int64) *Claims {
	now := nowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   ins.ID,
			Audience:  "Instructors",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     ins.Username,
		Email:        ins.Email,
		IsAdmin:      ins.IsAdmin,
	}
}

// GenerateToken generates a signed JWT token string representing the instructor's Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) login(ctx context.Context, creds instructor.LoginCredentials, svc *instructor.Service) (string, error) {
	ins, err := svc.Authenticate(ctx, creds)
	if err != nil {
		if errors.Cause(err) == instructor.ErrInvalidCredential {
			return "", errAuthenticationFailed
		}
		return "", errors.Wrap(err, "authenticating")
	}
	if ins, err = svc.SetLastLogin(ctx, ins); err != nil {
		return "", errors.Wrap(err, "setting lastLogin")
	}
	return GenerateToken(a.conf, NewClaims(a.conf, ins))
}

func (a *authenticator) refresh(ctx echo.Context, svc *instructor.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	ins, err := getContextInstructor(ctx, svc, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context instructor")
	}

	if !ins.IsActive {
		return "", errAccountDeactivated
	}

	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if nowFunc().After(expTime) {
		return "", errRefreshExpired
	}
	return GenerateToken(a.conf, NewClaims(a.conf, ins, claims.OrigIssuedAt))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextInstructor(ctx echo.Context, svc *instructor.Service, clms ...Claims) (instructor.Instructor, error) {
	if ins, ok := ctx.Get(contextInstructorKey).(instructor.Instructor); ok {
		return ins, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else if claims, err = getContextClaims(ctx); err != nil {
		return instructor.Instructor{}, errors.Wrap(err, "getting context claims")
	}

	ins, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == instructor.ErrNotFound {
			return instructor.Instructor{}, errUnauthorized
		}
		return instructor.Instructor{}, errors.Wrap(err, "finding instructor by ID")
	}
	ctx.Set(contextInstructorKey, ins)
	return ins, nil
}
