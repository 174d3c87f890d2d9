package mailstore

import "strings"

// RecipientHeaders 按检查顺序列出的收件人相关头部。
// Delivered-To / X-Original-To / Envelope-To 用于转发和 catch-all 场景。
var RecipientHeaders = []string{"To", "Cc", "Delivered-To", "X-Original-To", "Envelope-To"}

// MatchesRecipient 判断邮件是否发往目标地址（targetLower 需已小写）
//
// 检查顺序：结构化 To+Cc 列表，然后依次检查 RecipientHeaders 的原始值，
// 命中即返回。使用子串匹配，因为头部可能带显示名或路由注释。
// 某一项读取失败只视为该项未命中。
func MatchesRecipient(m *Message, targetLower string) bool {
	if m == nil || targetLower == "" {
		return false
	}

	for _, addr := range m.Recipients() {
		if strings.Contains(strings.ToLower(addr.String()), targetLower) {
			return true
		}
	}

	for _, key := range RecipientHeaders {
		if headerContains(m, key, targetLower) {
			return true
		}
	}

	return false
}

func headerContains(m *Message, key, targetLower string) bool {
	values, err := m.HeaderValues(key)
	if err != nil {
		return false
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), targetLower) {
			return true
		}
	}
	return false
}
