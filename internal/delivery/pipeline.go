package delivery

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

// MaxAttachmentSize 附件大小上限（5 MiB）
const MaxAttachmentSize = 5 << 20

// MessageCreator 消息创建接口（由 service.ChatService 实现）
// 创建消息和更新父会话摘要是存储侧的一次原子操作
type MessageCreator interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
}

// Uploader 图片上传接口（由 storage.LocalStorage 实现）
type Uploader interface {
	Store(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// Attachment 待发送的图片附件
// 内容在构造时全量读入内存（上限 5 MiB），发送失败重试时可以原样重传，
// 不会出现消耗过的流上传出空文件
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// NewAttachment 读入附件内容并构造附件，超过大小上限在这里就被拒绝
func NewAttachment(name, contentType string, r io.Reader) (*Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxAttachmentSize+1))
	if err != nil {
		return nil, apperrors.ErrDeliveryFailed.Wrap(err)
	}
	if len(data) > MaxAttachmentSize {
		return nil, apperrors.ErrPayloadTooLarge
	}
	return &Attachment{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// Sender 发送方
type Sender struct {
	ID   string
	Name string
	Type model.SenderType
}

// Pipeline 消息发送管线
// 一条消息的完整路径：校验 -> 上传附件（如有）-> 创建消息记录。
// 同一个输入框实例同一时刻只允许一条消息在途，第二次并发调用会被拒绝
type Pipeline struct {
	creator   MessageCreator
	uploader  Uploader
	sending   atomic.Bool
	uploading atomic.Bool
	logger    *slog.Logger
}

// NewPipeline 创建发送管线
func NewPipeline(creator MessageCreator, uploader Uploader) *Pipeline {
	return &Pipeline{
		creator:  creator,
		uploader: uploader,
		logger:   slog.Default(),
	}
}

// Sending 是否有消息在途
func (p *Pipeline) Sending() bool {
	return p.sending.Load()
}

// Uploading 是否正在上传附件
func (p *Pipeline) Uploading() bool {
	return p.uploading.Load()
}

// Send 发送一条消息
// 校验失败在任何网络调用之前返回；上传失败中止整次发送，不会留下带坏图片
// 引用的半截消息：要么完整记录存在，要么什么都没有
func (p *Pipeline) Send(ctx context.Context, conversationID string, sender Sender, text string, attachment *Attachment) error {
	if !p.sending.CompareAndSwap(false, true) {
		return apperrors.ErrSendInFlight
	}
	defer p.sending.Store(false)

	if conversationID == "" {
		return apperrors.ErrNoConversation
	}

	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return apperrors.ErrEmptyPayload
	}

	if attachment != nil {
		if !strings.HasPrefix(attachment.ContentType, "image/") {
			return apperrors.ErrUnsupportedMedia
		}
		if attachment.Size > MaxAttachmentSize {
			return apperrors.ErrPayloadTooLarge
		}
	}

	var imageURL string
	if attachment != nil {
		p.uploading.Store(true)
		url, err := p.uploader.Store(ctx, attachment.Name, attachment.ContentType, bytes.NewReader(attachment.Data))
		p.uploading.Store(false)
		if err != nil {
			p.logger.Error("Attachment upload failed",
				"conversationId", conversationID,
				"name", attachment.Name,
				"error", err,
			)
			return apperrors.ErrDeliveryFailed.Wrap(err)
		}
		imageURL = url
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.Name,
		SenderType:     sender.Type,
		Content:        text,
		ImageURL:       imageURL,
	}

	if err := p.creator.CreateMessage(ctx, msg); err != nil {
		p.logger.Error("Message create failed", "conversationId", conversationID, "error", err)
		if apperrors.Is(err, apperrors.ErrConversationNotFound) {
			return err
		}
		return apperrors.ErrDeliveryFailed.Wrap(err)
	}

	return nil
}
