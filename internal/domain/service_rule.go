package domain

// ServiceMatchRule 描述如何识别某个第三方服务发出的邮件。
//
// FromContains / SubjectContains 均为"包含"匹配（不区分大小写），
// 列表为空表示该维度不做限制。
type ServiceMatchRule struct {
	Key             string   `json:"key"`
	DisplayName     string   `json:"displayName"`
	FromContains    []string `json:"-"`
	SubjectContains []string `json:"-"`
}

// ServiceSummary 服务目录对外展示的摘要信息
type ServiceSummary struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
}

// Summary 返回规则的摘要
func (r ServiceMatchRule) Summary() ServiceSummary {
	return ServiceSummary{Key: r.Key, DisplayName: r.DisplayName}
}
