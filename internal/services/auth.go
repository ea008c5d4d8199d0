package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/grodonkey/crowdcoach-backend/internal/apierr"
	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/repos"
	"github.com/grodonkey/crowdcoach-backend/internal/requestdata"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

type AuthService interface {
	RegisterUser(ctx context.Context, email, password, fullName string) (*types.User, error)
	LoginUser(ctx context.Context, email, password string) (string, *types.User, error)
	// SetContextFromToken validates the access token and attaches the
	// resolved identity to the context.
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	userRepo     repos.UserRepo
	jwtSecretKey string
	accessTTL    time.Duration
}

func NewAuthService(db *gorm.DB, baseLog *logger.Logger, userRepo repos.UserRepo, jwtSecretKey string, accessTTL time.Duration) AuthService {
	serviceLog := baseLog.With("service", "AuthService")
	return &authService{
		db:           db,
		log:          serviceLog,
		userRepo:     userRepo,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
	}
}

func (as *authService) RegisterUser(ctx context.Context, email, password, fullName string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)
	if email == "" {
		return nil, apierr.BadRequest("missing_email", "an email is required to register")
	}
	if password == "" {
		return nil, apierr.BadRequest("missing_password", "a password is required to register")
	}
	if fullName == "" {
		return nil, apierr.BadRequest("missing_name", "a full name is required to register")
	}

	exists, err := as.userRepo.EmailExists(ctx, nil, email)
	if err != nil {
		return nil, apierr.From(err)
	}
	if exists {
		return nil, apierr.Conflict("email_in_use", "email is already in use")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Password: string(hashed),
		FullName: fullName,
		IsActive: true,
	}

	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := as.uniqueProfileSlug(ctx, tx, fullName)
		if err != nil {
			return err
		}
		user.ProfileSlug = slug
		_, err = as.userRepo.Create(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, apierr.From(err)
	}
	return user, nil
}

func (as *authService) uniqueProfileSlug(ctx context.Context, tx *gorm.DB, fullName string) (string, error) {
	base := slugifyTitle(fullName)
	if base == "" {
		base = fmt.Sprintf("user-%s", uuid.New().String()[:8])
	}
	slug := base
	for counter := 1; ; counter++ {
		exists, err := as.userRepo.ProfileSlugExists(ctx, tx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (string, *types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, apierr.BadRequest("missing_credentials", "email and password are required to login")
	}

	user, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return "", nil, apierr.Forbidden("invalid_credentials", "invalid email or password")
	}
	if !user.IsActive {
		return "", nil, apierr.Forbidden("inactive_account", "account is deactivated")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, apierr.Forbidden("invalid_credentials", "invalid email or password")
	}

	token, err := as.generateAccessToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("generate access token: %w", err)
	}
	return token, user, nil
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.ID.String(),
		"adm": user.IsAdmin,
		"iat": now.Unix(),
		"exp": now.Add(as.accessTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil || !token.Valid {
		return ctx, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ctx, fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return ctx, fmt.Errorf("invalid token subject")
	}

	user, err := as.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return ctx, fmt.Errorf("unknown user")
	}
	if !user.IsActive {
		return ctx, fmt.Errorf("account is deactivated")
	}

	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		rd = &requestdata.RequestData{}
	}
	rd.TokenString = tokenString
	rd.UserID = user.ID
	rd.IsAdmin = user.IsAdmin
	return requestdata.WithRequestData(ctx, rd), nil
}
