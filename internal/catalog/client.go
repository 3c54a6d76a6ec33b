package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

// Client 药品目录服务客户端
// 药品目录由独立服务管理，本服务只做带登录态的请求转发
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建目录服务客户端
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type catalogErrorResponse struct {
	Message string `json:"message"`
}

// ListAllMedicines 全量药品目录
func (c *Client) ListAllMedicines(ctx context.Context, token string) ([]model.Medicine, error) {
	var medicines []model.Medicine
	err := c.do(ctx, token, http.MethodGet, "/pharmacy-owner/medicines/all", nil, &medicines)
	return medicines, err
}

// ListPharmacyMedicines 某家药店在售的药品
func (c *Client) ListPharmacyMedicines(ctx context.Context, token, pharmacyID string) ([]model.Medicine, error) {
	var medicines []model.Medicine
	path := fmt.Sprintf("/pharmacy-owner/pharmacy/%s/medicines", pharmacyID)
	err := c.do(ctx, token, http.MethodGet, path, nil, &medicines)
	return medicines, err
}

// AddMedicine 把一个药品加入药店
func (c *Client) AddMedicine(ctx context.Context, token, pharmacyID string, med *model.Medicine) (*model.Medicine, error) {
	var created model.Medicine
	path := fmt.Sprintf("/pharmacy-owner/pharmacy/%s/medicines", pharmacyID)
	if err := c.do(ctx, token, http.MethodPost, path, med, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateMedicineStatus 更新药店内某个药品的状态（如上架/缺货）
func (c *Client) UpdateMedicineStatus(ctx context.Context, token, pharmacyID, medicineID, status string) error {
	path := fmt.Sprintf("/pharmacy-owner/pharmacy/%s/medicines/%s", pharmacyID, medicineID)
	payload := map[string]string{"status": status}
	return c.do(ctx, token, http.MethodPatch, path, payload, nil)
}

// RemoveMedicine 把一个药品从药店下架
func (c *Client) RemoveMedicine(ctx context.Context, token, pharmacyID, medicineID string) error {
	path := fmt.Sprintf("/pharmacy-owner/pharmacy/%s/medicines/%s", pharmacyID, medicineID)
	return c.do(ctx, token, http.MethodDelete, path, nil, nil)
}

// do 发起一次目录服务请求，成功时把响应体解码进 out（out 为 nil 时忽略响应体）
func (c *Client) do(ctx context.Context, token, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return apperrors.ErrServerError.Wrap(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.ErrServerError.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.ErrCatalogUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp catalogErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		reason := fmt.Errorf("catalog returned %d: %s", resp.StatusCode, errResp.Message)
		if resp.StatusCode >= http.StatusInternalServerError {
			return apperrors.ErrCatalogUnavailable.Wrap(reason)
		}
		return apperrors.ErrInvalidParams.Wrap(reason)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.ErrCatalogUnavailable.Wrap(err)
	}
	return nil
}
