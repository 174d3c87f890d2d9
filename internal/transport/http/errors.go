package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lastmail/backend/internal/domain"
	"lastmail/backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 收件人校验
	domain.ErrInvalidEmail:      "邮箱格式无效",
	domain.ErrEmailTooLong:      "邮箱地址过长",
	domain.ErrLocalPartTooLong:  "邮箱前缀过长（最多64个字符）",
	domain.ErrDomainNotAllowed:  "邮箱域名不在允许列表中",
	service.ErrInvalidRecipient: "收件人邮箱无效",

	// 查询
	service.ErrUnknownService: "不支持的服务",
	service.ErrNotFound:       "没有找到匹配的邮件",
	service.ErrNotConfigured:  "IMAP 账户未配置",
}

// messagePrecedence 多个错误同时命中时的查找顺序，越具体越靠前
var messagePrecedence = []error{
	domain.ErrEmailTooLong,
	domain.ErrLocalPartTooLong,
	domain.ErrDomainNotAllowed,
	domain.ErrInvalidEmail,
	service.ErrInvalidRecipient,
	service.ErrUnknownService,
	service.ErrNotFound,
	service.ErrNotConfigured,
}

// GetErrorMessage 获取错误的中文消息，支持被包装的错误
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	for _, sentinel := range messagePrecedence {
		if errors.Is(err, sentinel) {
			return errorMessages[sentinel]
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	MsgEmailRequired   = "缺少 email 参数"
	MsgServiceRequired = "缺少 service 参数"
	MsgInvalidRender   = "render 参数只支持 text"
	MsgLookupFailed    = "查询 IMAP 邮箱失败"
)

// writeLookupError 将查询错误映射为 HTTP 响应
//
//   - 收件人无效: 400
//   - 没有匹配的邮件: 404
//   - IMAP 未配置: 500
//   - 其他连接或解析失败: 500，details 为 "阶段: 原因"
func writeLookupError(c *gin.Context, err error) {
	var lookupErr *service.LookupError
	switch {
	case errors.Is(err, service.ErrInvalidRecipient):
		BadRequest(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrUnknownService):
		BadRequest(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrNotConfigured):
		InternalError(c, GetErrorMessage(err))
	case errors.As(err, &lookupErr):
		ErrorWithData(c, http.StatusInternalServerError, MsgLookupFailed, gin.H{
			"details": lookupErr.Error(),
		})
	default:
		ErrorWithData(c, http.StatusInternalServerError, MsgLookupFailed, gin.H{
			"details": err.Error(),
		})
	}
}
