package domain

import (
	"strings"
	"time"

	"github.com/k3a/html2text"
)

// EmailResponse 表示一次查询返回给调用方的邮件内容。
type EmailResponse struct {
	Service         string     `json:"service"`
	Mailbox         string     `json:"mailbox"`
	Subject         string     `json:"subject"`
	From            string     `json:"from"`
	ReceivedAt      *time.Time `json:"receivedAt"`
	Body            string     `json:"body"`
	BodyContentType string     `json:"bodyContentType"`
}

// 常用正文类型
const (
	ContentTypePlain   = "text/plain"
	ContentTypeHTML    = "text/html"
	ContentTypeUnknown = "unknown"
)

// RenderedBody 邮件正文的渲染结果
type RenderedBody struct {
	Text        string
	ContentType string
}

// AsPlainText 将 HTML 正文转换为纯文本；非 HTML 正文原样返回
func (b RenderedBody) AsPlainText() RenderedBody {
	if b.ContentType != ContentTypeHTML {
		return b
	}
	return RenderedBody{
		Text:        strings.TrimSpace(html2text.HTML2Text(b.Text)),
		ContentType: ContentTypePlain,
	}
}
