package domain

import (
	"errors"
	"net/mail"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainNotAllowed = errors.New("email domain not allowed")
)

// 验证常量
const (
	// RFC 5322 邮箱地址长度限制
	MaxEmailLength     = 254 // 整个邮箱地址最大长度
	MaxLocalPartLength = 64  // 本地部分最大长度(@前面)
)

// NormalizeAddress 规范化邮箱地址（去除首尾空白并转为小写）
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidateAddress 验证已规范化的邮箱地址
//
// 规则:
//   - 恰好包含一个 "@"
//   - 本地部分与域名均不能为空
//   - 必须能被 net/mail 解析为裸地址（不允许带显示名）
func ValidateAddress(address string) error {
	if address == "" {
		return ErrInvalidEmail
	}
	if len(address) > MaxEmailLength {
		return ErrEmailTooLong
	}

	if strings.Count(address, "@") != 1 {
		return ErrInvalidEmail
	}

	localPart, domainPart, _ := strings.Cut(address, "@")
	if localPart == "" || domainPart == "" {
		return ErrInvalidEmail
	}
	if len(localPart) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}

	parsed, err := mail.ParseAddress(address)
	if err != nil || !strings.EqualFold(parsed.Address, address) {
		return ErrInvalidEmail
	}

	return nil
}

// HasAllowedDomain 判断邮箱是否属于允许的域名之一
func HasAllowedDomain(address string, allowedDomains []string) bool {
	if strings.HasPrefix(address, "@") {
		return false
	}
	for _, d := range allowedDomains {
		d = strings.TrimPrefix(NormalizeAddress(d), "@")
		if d == "" {
			continue
		}
		if strings.HasSuffix(address, "@"+d) {
			return true
		}
	}
	return false
}

// ValidateRecipient 规范化并校验收件人邮箱，同时执行域名白名单策略
//
// 返回值:
//   - string: 规范化后的邮箱
//   - error: ErrInvalidEmail / ErrEmailTooLong / ErrDomainNotAllowed
func ValidateRecipient(address string, allowedDomains []string) (string, error) {
	normalized := NormalizeAddress(address)
	if err := ValidateAddress(normalized); err != nil {
		return "", err
	}
	if !HasAllowedDomain(normalized, allowedDomains) {
		return "", ErrDomainNotAllowed
	}
	return normalized, nil
}
