package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Hadi-Haidar/pharmacy-owners/pkg/snowflake"
)

// LocalStorage 本地文件系统图片存储
// 文件名用雪花 ID 重写，避免用户上传名冲突或路径穿越
type LocalStorage struct {
	basePath string
	baseURL  string
	sf       *snowflake.Node
	logger   *slog.Logger
}

// NewLocalStorage 创建本地存储，目录不存在时自动创建
func NewLocalStorage(basePath, baseURL string, sf *snowflake.Node) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", basePath, err)
	}
	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		sf:       sf,
		logger:   slog.Default(),
	}, nil
}

// Store 写入一个文件并返回可访问的 URL
// 写入是先落盘再返回：返回的 URL 指向的文件一定已经完整存在
func (s *LocalStorage) Store(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileName := s.sf.Generate().String() + sanitizeExt(name)
	fullPath := filepath.Join(s.basePath, fileName)

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create file %s: %w", fullPath, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("write file %s: %w", fullPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("close file %s: %w", fullPath, err)
	}

	s.logger.Info("File stored", "name", fileName, "contentType", contentType)
	return s.baseURL + "/" + fileName, nil
}

// sanitizeExt 只保留原始文件名的扩展名部分
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 {
		return ""
	}
	return ext
}
