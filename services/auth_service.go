package services

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"dandi-api/config"
	"dandi-api/logger"
	"dandi-api/models"
	"dandi-api/repositories"
)

type AuthService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
}

type authService struct {
	userRepo repositories.UserRepository
	jwt      config.JWTConfig
	now      func() time.Time
	log      *logger.Logger
}

func NewAuthService(userRepo repositories.UserRepository, jwtCfg config.JWTConfig, baseLog *logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwt:      jwtCfg,
		now:      time.Now,
		log:      baseLog.With("service", "AuthService"),
	}
}

func (s *authService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	exists, err := s.userRepo.Exists(ctx, nil, req.Username, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &models.ErrorConflict{Message: "user already exists"}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPassword),
		Role:     role,
	}
	if err := s.userRepo.Create(ctx, nil, user); err != nil {
		if isUniqueViolation(err) {
			return nil, &models.ErrorConflict{Message: "user already exists"}
		}
		return nil, err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", user.ID, "role", user.Role)

	return &models.AuthResponse{Token: token, User: *user}, nil
}

func (s *authService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	invalid := &models.ErrorUnauthorized{Message: "invalid credentials"}

	user, err := s.userRepo.GetByEmail(ctx, nil, req.Email)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, invalid
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{Token: token, User: *user}, nil
}

func (s *authService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	return user, nil
}

func (s *authService) generateToken(user *models.User) (string, error) {
	now := s.now()

	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      now.Add(s.jwt.Expiration).Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwt.Secret)
}
