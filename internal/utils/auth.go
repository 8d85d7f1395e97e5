package utils

import (
  "fmt"
  "time"
  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
  hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
  if err != nil {
    return "", fmt.Errorf("failed to hash password: %w", err)
  }
  return string(hashed), nil
}

func CheckPassword(hashed, password string) error {
  return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}

func GenerateAccessToken(userID uuid.UUID, secretKey string, ttl time.Duration) (string, error) {
  now := time.Now()
  claims := jwt.MapClaims{
    "sub": userID.String(),
    "iat": now.Unix(),
    "exp": now.Add(ttl).Unix(),
  }
  token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
  signed, err := token.SignedString([]byte(secretKey))
  if err != nil {
    return "", fmt.Errorf("failed to sign access token: %w", err)
  }
  return signed, nil
}

func ParseAccessToken(tokenString, secretKey string) (uuid.UUID, error) {
  token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
    if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
      return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
    }
    return []byte(secretKey), nil
  })
  if err != nil {
    return uuid.Nil, fmt.Errorf("invalid token: %w", err)
  }
  claims, ok := token.Claims.(jwt.MapClaims)
  if !ok || !token.Valid {
    return uuid.Nil, fmt.Errorf("invalid token claims")
  }
  sub, ok := claims["sub"].(string)
  if !ok {
    return uuid.Nil, fmt.Errorf("missing sub claim")
  }
  userID, err := uuid.Parse(sub)
  if err != nil {
    return uuid.Nil, fmt.Errorf("invalid sub claim: %w", err)
  }
  return userID, nil
}
