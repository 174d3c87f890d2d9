package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"lastmail/backend/internal/domain"
	"lastmail/backend/internal/service"
)

// renderText render 参数取该值时把 HTML 正文转换为纯文本
const renderText = "text"

// EmailFinder 邮件查询能力，由 service.EmailService 实现
type EmailFinder interface {
	FindLastEmail(ctx context.Context, recipient string, rule *domain.ServiceMatchRule) (*domain.EmailResponse, error)
	FindLastEmailAny(ctx context.Context, recipient string) (*domain.EmailResponse, error)
}

// EmailHandler 邮件查询处理器
type EmailHandler struct {
	finder         EmailFinder
	catalog        *service.Catalog
	allowedDomains []string
}

// NewEmailHandler 创建邮件查询处理器
func NewEmailHandler(finder EmailFinder, catalog *service.Catalog, allowedDomains []string) *EmailHandler {
	return &EmailHandler{
		finder:         finder,
		catalog:        catalog,
		allowedDomains: allowedDomains,
	}
}

// GetLastEmail 查询收件人最近收到的某个服务的邮件
//
// GET /api/email/last?email=<收件人>&service=<服务>[&render=text]
//
// 先校验收件人再查服务目录，两者都通过后才连接邮箱。
func (h *EmailHandler) GetLastEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		BadRequest(c, MsgEmailRequired)
		return
	}
	serviceKey := strings.TrimSpace(c.Query("service"))
	if serviceKey == "" {
		BadRequest(c, MsgServiceRequired)
		return
	}
	asText, ok := parseRender(c)
	if !ok {
		return
	}

	recipient, err := domain.ValidateRecipient(email, h.allowedDomains)
	if err != nil {
		BadRequest(c, GetErrorMessage(err))
		return
	}

	rule, found := h.catalog.Get(serviceKey)
	if !found {
		BadRequestWithData(c, GetErrorMessage(service.ErrUnknownService)+": "+serviceKey, gin.H{
			"supported": h.catalog.Keys(),
		})
		return
	}

	resp, err := h.finder.FindLastEmail(c.Request.Context(), recipient, rule)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	Success(c, render(resp, asText))
}

// GetLastEmailAny 查询收件人最近收到的任意邮件
//
// GET /api/email/last-any?email=<收件人>[&render=text]
func (h *EmailHandler) GetLastEmailAny(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		BadRequest(c, MsgEmailRequired)
		return
	}
	asText, ok := parseRender(c)
	if !ok {
		return
	}

	recipient, err := domain.ValidateRecipient(email, h.allowedDomains)
	if err != nil {
		BadRequest(c, GetErrorMessage(err))
		return
	}

	resp, err := h.finder.FindLastEmailAny(c.Request.Context(), recipient)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	Success(c, render(resp, asText))
}

// ListServices 返回服务目录，保持目录顺序
//
// GET /api/services
func (h *EmailHandler) ListServices(c *gin.Context) {
	Success(c, orderedServices(h.catalog.All()))
}

func parseRender(c *gin.Context) (asText bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(c.Query("render"))) {
	case "":
		return false, true
	case renderText:
		return true, true
	default:
		BadRequest(c, MsgInvalidRender)
		return false, false
	}
}

func render(resp *domain.EmailResponse, asText bool) *domain.EmailResponse {
	if !asText {
		return resp
	}
	body := domain.RenderedBody{Text: resp.Body, ContentType: resp.BodyContentType}.AsPlainText()
	out := *resp
	out.Body = body.Text
	out.BodyContentType = body.ContentType
	return &out
}

// orderedServices 序列化为按目录顺序排列的 JSON 对象: {"key": {"key", "displayName"}}
type orderedServices []domain.ServiceSummary

func (s orderedServices) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, summary := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(summary.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(summary)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
