package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

// AuthClient 外部认证服务客户端
// 账号和药店归属由独立的认证服务管理，本服务只做凭证转发和登录态维护
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAuthClient 创建认证服务客户端
func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	return &AuthClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type verifyRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyResponse struct {
	Owner    model.Owner    `json:"owner"`
	Pharmacy model.Pharmacy `json:"pharmacy"`
}

type authErrorResponse struct {
	Message string `json:"message"`
}

// Verify 校验邮箱密码，返回药店老板及其药店
func (c *AuthClient) Verify(ctx context.Context, email, password string) (*model.Owner, *model.Pharmacy, error) {
	body, err := json.Marshal(verifyRequest{Email: email, Password: password})
	if err != nil {
		return nil, nil, apperrors.ErrServerError.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/pharmacy-owner/verify", bytes.NewReader(body))
	if err != nil {
		return nil, nil, apperrors.ErrServerError.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, apperrors.ErrServerError.Wrap(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result verifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, nil, apperrors.ErrServerError.Wrap(err)
		}
		return &result.Owner, &result.Pharmacy, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil, apperrors.ErrInvalidCredentials
	default:
		var errResp authErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, nil, apperrors.ErrServerError.Wrap(
			fmt.Errorf("auth service returned %d: %s", resp.StatusCode, errResp.Message))
	}
}
