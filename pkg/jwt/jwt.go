package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims JWT 声明
// 登录成功后签发，携带药店老板和药店的标识
type Claims struct {
	OwnerID    string `json:"owner_id"`
	PharmacyID string `json:"pharmacy_id"`
	jwt.RegisteredClaims
}

// Service JWT 服务
type Service struct {
	secretKey []byte
	expire    time.Duration
}

// NewService 创建 JWT 服务
func NewService(secretKey string, expire time.Duration) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		expire:    expire,
	}
}

// GenerateToken 生成 Access Token
func (s *Service) GenerateToken(ownerID, pharmacyID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expire)

	claims := &Claims{
		OwnerID:    ownerID,
		PharmacyID: pharmacyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "pharmacy-owners",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// GetExpire 获取 Token 过期时长
func (s *Service) GetExpire() time.Duration {
	return s.expire
}

// ValidateToken 验证 Token
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
