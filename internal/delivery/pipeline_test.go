package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

// fakeCreator 记录消息创建调用
type fakeCreator struct {
	mu       sync.Mutex
	created  []*model.Message
	err      error
	started  chan struct{} // 第一次调用开始时关闭
	release  chan struct{} // 收到信号后才返回
	blocking bool
}

func (f *fakeCreator) CreateMessage(ctx context.Context, msg *model.Message) error {
	if f.blocking {
		f.mu.Lock()
		if f.started != nil {
			close(f.started)
			f.started = nil
		}
		f.mu.Unlock()
		<-f.release
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.created = append(f.created, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeCreator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakeUploader 记录每次上传实际收到的字节数
type fakeUploader struct {
	mu    sync.Mutex
	sizes []int
	url   string
	err   error
}

func (f *fakeUploader) Store(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	data, readErr := io.ReadAll(r)
	if readErr != nil {
		return "", readErr
	}
	f.mu.Lock()
	f.sizes = append(f.sizes, len(data))
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sizes)
}

func (f *fakeUploader) uploaded() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.sizes))
	copy(out, f.sizes)
	return out
}

var testSender = Sender{ID: "owner-1", Name: "Ali", Type: model.SenderTypePharmacyOwner}

func TestPipeline_Send_Text(t *testing.T) {
	creator := &fakeCreator{}
	uploader := &fakeUploader{url: "http://files/img.png"}
	p := NewPipeline(creator, uploader)

	err := p.Send(context.Background(), "conv-1", testSender, "Hello", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if creator.count() != 1 {
		t.Fatalf("Expected 1 message created, got %d", creator.count())
	}

	msg := creator.created[0]
	if msg.ConversationID != "conv-1" {
		t.Errorf("Expected conversationId conv-1, got %s", msg.ConversationID)
	}
	if msg.Content != "Hello" {
		t.Errorf("Expected content 'Hello', got '%s'", msg.Content)
	}
	if msg.SenderType != model.SenderTypePharmacyOwner {
		t.Errorf("Expected senderType pharmacy-owner, got %s", msg.SenderType)
	}
	if uploader.count() != 0 {
		t.Errorf("Expected no upload for text message, got %d", uploader.count())
	}
}

func TestPipeline_Send_TrimsContent(t *testing.T) {
	creator := &fakeCreator{}
	p := NewPipeline(creator, &fakeUploader{})

	if err := p.Send(context.Background(), "conv-1", testSender, "  Hello  ", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if creator.created[0].Content != "Hello" {
		t.Errorf("Expected trimmed content, got '%s'", creator.created[0].Content)
	}
}

func TestPipeline_Send_EmptyPayload(t *testing.T) {
	creator := &fakeCreator{}
	uploader := &fakeUploader{}
	p := NewPipeline(creator, uploader)

	err := p.Send(context.Background(), "conv-1", testSender, "   ", nil)
	if !apperrors.Is(err, apperrors.ErrEmptyPayload) {
		t.Fatalf("Expected ErrEmptyPayload, got %v", err)
	}

	// 校验失败时不能有任何存储调用
	if creator.count() != 0 {
		t.Errorf("Expected no message created, got %d", creator.count())
	}
	if uploader.count() != 0 {
		t.Errorf("Expected no upload, got %d", uploader.count())
	}
}

func TestPipeline_Send_NoConversation(t *testing.T) {
	creator := &fakeCreator{}
	p := NewPipeline(creator, &fakeUploader{})

	err := p.Send(context.Background(), "", testSender, "Hello", nil)
	if !apperrors.Is(err, apperrors.ErrNoConversation) {
		t.Fatalf("Expected ErrNoConversation, got %v", err)
	}
	if creator.count() != 0 {
		t.Errorf("Expected no message created, got %d", creator.count())
	}
}

func TestPipeline_Send_UnsupportedMedia(t *testing.T) {
	creator := &fakeCreator{}
	uploader := &fakeUploader{}
	p := NewPipeline(creator, uploader)

	att := &Attachment{Name: "doc.pdf", ContentType: "application/pdf", Size: 1024, Data: []byte("x")}
	err := p.Send(context.Background(), "conv-1", testSender, "", att)
	if !apperrors.Is(err, apperrors.ErrUnsupportedMedia) {
		t.Fatalf("Expected ErrUnsupportedMedia, got %v", err)
	}
	if uploader.count() != 0 {
		t.Errorf("Expected no upload attempted, got %d", uploader.count())
	}
}

func TestPipeline_Send_PayloadTooLarge(t *testing.T) {
	creator := &fakeCreator{}
	uploader := &fakeUploader{}
	p := NewPipeline(creator, uploader)

	att := &Attachment{Name: "big.png", ContentType: "image/png", Size: MaxAttachmentSize + 1, Data: []byte("x")}
	err := p.Send(context.Background(), "conv-1", testSender, "Hello", att)
	if !apperrors.Is(err, apperrors.ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}

	// 超限附件在上传之前就被拒绝
	if uploader.count() != 0 {
		t.Errorf("Expected no upload attempted, got %d", uploader.count())
	}
	if creator.count() != 0 {
		t.Errorf("Expected no message created, got %d", creator.count())
	}
}

func TestPipeline_Send_UploadFailureAbortsSend(t *testing.T) {
	creator := &fakeCreator{}
	uploader := &fakeUploader{err: errors.New("disk full")}
	p := NewPipeline(creator, uploader)

	att := &Attachment{Name: "img.png", ContentType: "image/png", Size: 1024, Data: []byte("x")}
	err := p.Send(context.Background(), "conv-1", testSender, "Hello", att)
	if !apperrors.Is(err, apperrors.ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed, got %v", err)
	}

	// 上传失败时消息存储必须零写入
	if creator.count() != 0 {
		t.Errorf("Expected no message created after upload failure, got %d", creator.count())
	}
}

func TestPipeline_Send_WithImage(t *testing.T) {
	creator := &fakeCreator{}
	uploader := &fakeUploader{url: "http://files/img.png"}
	p := NewPipeline(creator, uploader)

	att := &Attachment{Name: "img.png", ContentType: "image/png", Size: 1024, Data: []byte("x")}
	if err := p.Send(context.Background(), "conv-1", testSender, "", att); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if creator.created[0].ImageURL != "http://files/img.png" {
		t.Errorf("Expected imageUrl from uploader, got '%s'", creator.created[0].ImageURL)
	}
}

func TestNewAttachment_BuffersContent(t *testing.T) {
	payload := bytes.Repeat([]byte("p"), 1024)

	att, err := NewAttachment("img.png", "image/png", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("NewAttachment failed: %v", err)
	}
	if att.Size != 1024 || len(att.Data) != 1024 {
		t.Errorf("Expected 1024 buffered bytes, got size=%d len=%d", att.Size, len(att.Data))
	}
}

func TestNewAttachment_RejectsOversizedContent(t *testing.T) {
	oversized := bytes.NewReader(make([]byte, MaxAttachmentSize+1))

	_, err := NewAttachment("big.png", "image/png", oversized)
	if !apperrors.Is(err, apperrors.ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestPipeline_Send_RetryReuploadsFullAttachment(t *testing.T) {
	creator := &fakeCreator{err: errors.New("connection reset")}
	uploader := &fakeUploader{url: "http://files/img.png"}
	p := NewPipeline(creator, uploader)

	att, err := NewAttachment("img.png", "image/png", bytes.NewReader(bytes.Repeat([]byte("p"), 1024)))
	if err != nil {
		t.Fatalf("NewAttachment failed: %v", err)
	}

	if err := p.Send(context.Background(), "conv-1", testSender, "", att); !apperrors.Is(err, apperrors.ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed on first send, got %v", err)
	}

	// 创建失败后用同一个附件重试，第二次上传必须还是完整内容
	creator.err = nil
	if err := p.Send(context.Background(), "conv-1", testSender, "", att); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	sizes := uploader.uploaded()
	if len(sizes) != 2 || sizes[0] != 1024 || sizes[1] != 1024 {
		t.Fatalf("Expected both uploads to carry 1024 bytes, got %v", sizes)
	}
	if creator.count() != 1 || creator.created[0].ImageURL == "" {
		t.Fatalf("Expected 1 message with image url after retry, got %d", creator.count())
	}
}

func TestPipeline_Send_SecondCallRejectedWhileInFlight(t *testing.T) {
	creator := &fakeCreator{
		blocking: true,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	p := NewPipeline(creator, &fakeUploader{})

	started := creator.started
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- p.Send(context.Background(), "conv-1", testSender, "first", nil)
	}()

	// 等第一次发送进入创建阶段
	<-started

	err := p.Send(context.Background(), "conv-1", testSender, "second", nil)
	if !apperrors.Is(err, apperrors.ErrSendInFlight) {
		t.Fatalf("Expected ErrSendInFlight for concurrent send, got %v", err)
	}

	close(creator.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("First send failed: %v", err)
	}

	// 一次用户发送意图只产生一条消息
	if creator.count() != 1 {
		t.Errorf("Expected exactly 1 message, got %d", creator.count())
	}

	// 第一次发送完成后可以再次发送
	creator.blocking = false
	if err := p.Send(context.Background(), "conv-1", testSender, "third", nil); err != nil {
		t.Fatalf("Send after completion failed: %v", err)
	}
}

func TestPipeline_Send_CreateFailure(t *testing.T) {
	creator := &fakeCreator{err: errors.New("connection reset")}
	p := NewPipeline(creator, &fakeUploader{})

	err := p.Send(context.Background(), "conv-1", testSender, "Hello", nil)
	if !apperrors.Is(err, apperrors.ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed, got %v", err)
	}

	// 失败后管线必须可以重试
	creator.err = nil
	if err := p.Send(context.Background(), "conv-1", testSender, "Hello", nil); err != nil {
		t.Fatalf("Retry after failure should succeed: %v", err)
	}
}

func TestPipeline_BusyFlags(t *testing.T) {
	p := NewPipeline(&fakeCreator{}, &fakeUploader{})

	if p.Sending() {
		t.Error("Expected Sending false when idle")
	}
	if p.Uploading() {
		t.Error("Expected Uploading false when idle")
	}
}
