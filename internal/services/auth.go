package services

import (
  "context"
  "fmt"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/normalization"
  "github.com/yungbote/disputedesk-backend/internal/repos"
  "github.com/yungbote/disputedesk-backend/internal/requestdata"
  "github.com/yungbote/disputedesk-backend/internal/types"
  "github.com/yungbote/disputedesk-backend/internal/utils"
)

type AuthService interface {
  RegisterUser(ctx context.Context, user *types.User) error
  LoginUser(ctx context.Context, email, password string) (string, string, error)
  RefreshUser(ctx context.Context) (string, string, error)
  LogoutUser(ctx context.Context) error
  SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
  GetAccessTTL() time.Duration
}

type authService struct {
  db              *gorm.DB
  log             *logger.Logger
  userRepo        repos.UserRepo
  userTokenRepo   repos.UserTokenRepo
  jwtSecretKey    string
  accessTTL       time.Duration
  refreshTTL      time.Duration
}

func NewAuthService(
  db *gorm.DB,
  log *logger.Logger,
  userRepo repos.UserRepo,
  userTokenRepo repos.UserTokenRepo,
  jwtSecretKey string,
  accessTTL time.Duration,
  refreshTTL time.Duration,
) AuthService {
  serviceLog := log.With("service", "AuthService")
  return &authService{
    db:            db,
    log:           serviceLog,
    userRepo:      userRepo,
    userTokenRepo: userTokenRepo,
    jwtSecretKey:  jwtSecretKey,
    accessTTL:     accessTTL,
    refreshTTL:    refreshTTL,
  }
}

func (as *authService) RegisterUser(ctx context.Context, user *types.User) error {
  user.Email = normalization.NormalizeEmail(user.Email)
  user.FirstName = normalization.ParseInputString(user.FirstName)
  user.LastName = normalization.ParseInputString(user.LastName)
  if user.Email == "" || user.Password == "" {
    return fmt.Errorf("Email and password are required")
  }
  exists, eErr := as.userRepo.EmailExists(ctx, nil, user.Email)
  if eErr != nil {
    return fmt.Errorf("Failed to check email: %w", eErr)
  }
  if exists {
    return fmt.Errorf("Email already registered")
  }
  hashed, hErr := utils.HashPassword(user.Password)
  if hErr != nil {
    return hErr
  }
  user.Password = hashed
  return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    user.ID = uuid.New()
    if _, ucErr := as.userRepo.Create(ctx, tx, []*types.User{user}); ucErr != nil {
      return fmt.Errorf("Failed to create user: %w", ucErr)
    }
    return nil
  })
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (string, string, error) {
  email = normalization.NormalizeEmail(email)
  users, usErr := as.userRepo.GetByEmails(ctx, nil, []string{email})
  if usErr != nil {
    return "", "", fmt.Errorf("Error retrieving user by email: %w", usErr)
  }
  if len(users) == 0 {
    return "", "", fmt.Errorf("Invalid email or password")
  }
  user := users[0]
  if cErr := utils.CheckPassword(user.Password, password); cErr != nil {
    return "", "", fmt.Errorf("Invalid email or password")
  }

  var accessToken, refreshToken string
  err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if dtErr := as.userTokenRepo.FullDeleteByUserIDs(ctx, tx, []uuid.UUID{user.ID}); dtErr != nil {
      return fmt.Errorf("Failed to clear prior tokens: %w", dtErr)
    }
    var tErr error
    accessToken, refreshToken, tErr = as.issueTokens(ctx, tx, user.ID)
    return tErr
  })
  if err != nil {
    return "", "", err
  }
  as.log.Info("User logged in", "userID", user.ID)
  return accessToken, refreshToken, nil
}

func (as *authService) RefreshUser(ctx context.Context) (string, string, error) {
  data := requestdata.GetRequestData(ctx)
  if data == nil || data.UserID == uuid.Nil {
    return "", "", fmt.Errorf("No authenticated user on request")
  }
  var accessToken, refreshToken string
  err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if dtErr := as.userTokenRepo.FullDeleteByUserIDs(ctx, tx, []uuid.UUID{data.UserID}); dtErr != nil {
      return fmt.Errorf("Failed to rotate tokens: %w", dtErr)
    }
    var tErr error
    accessToken, refreshToken, tErr = as.issueTokens(ctx, tx, data.UserID)
    return tErr
  })
  if err != nil {
    return "", "", err
  }
  return accessToken, refreshToken, nil
}

func (as *authService) LogoutUser(ctx context.Context) error {
  data := requestdata.GetRequestData(ctx)
  if data == nil || data.UserID == uuid.Nil {
    return fmt.Errorf("No authenticated user on request")
  }
  if dtErr := as.userTokenRepo.FullDeleteByUserIDs(ctx, nil, []uuid.UUID{data.UserID}); dtErr != nil {
    return fmt.Errorf("Failed to delete user tokens: %w", dtErr)
  }
  as.log.Info("User logged out", "userID", data.UserID)
  return nil
}

// SetContextFromToken validates the bearer token against both the signature
// and the stored token row, then attaches the request identity to the context.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
  userID, pErr := utils.ParseAccessToken(tokenString, as.jwtSecretKey)
  if pErr != nil {
    return ctx, pErr
  }
  stored, stErr := as.userTokenRepo.GetByAccessToken(ctx, nil, tokenString)
  if stErr != nil {
    return ctx, fmt.Errorf("Failed to look up token: %w", stErr)
  }
  if stored == nil || stored.UserID != userID {
    return ctx, fmt.Errorf("Token not recognized")
  }
  if stored.ExpiresAt.Before(time.Now()) {
    return ctx, fmt.Errorf("Token expired")
  }
  users, uErr := as.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
  if uErr != nil {
    return ctx, fmt.Errorf("Failed to load user: %w", uErr)
  }
  if len(users) == 0 {
    return ctx, fmt.Errorf("User not found")
  }
  return requestdata.WithRequestData(ctx, &requestdata.RequestData{
    TokenString: tokenString,
    UserID:      userID,
    UserEmail:   users[0].Email,
  }), nil
}

func (as *authService) GetAccessTTL() time.Duration {
  return as.accessTTL
}

func (as *authService) issueTokens(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (string, string, error) {
  accessToken, aErr := utils.GenerateAccessToken(userID, as.jwtSecretKey, as.accessTTL)
  if aErr != nil {
    return "", "", aErr
  }
  refreshToken, rErr := utils.GenerateAccessToken(userID, as.jwtSecretKey, as.refreshTTL)
  if rErr != nil {
    return "", "", rErr
  }
  token := &types.UserToken{
    ID:           uuid.New(),
    UserID:       userID,
    AccessToken:  accessToken,
    RefreshToken: refreshToken,
    ExpiresAt:    time.Now().Add(as.accessTTL),
  }
  if _, tcErr := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{token}); tcErr != nil {
    return "", "", fmt.Errorf("Failed to persist tokens: %w", tcErr)
  }
  return accessToken, refreshToken, nil
}
