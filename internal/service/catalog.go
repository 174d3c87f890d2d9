package service

import (
	"strings"

	"lastmail/backend/internal/domain"
)

// Catalog 是按固定顺序排列的服务规则目录，创建后只读。
type Catalog struct {
	rules []domain.ServiceMatchRule
	index map[string]int
}

// NewCatalog 创建包含内置服务规则的目录
func NewCatalog() *Catalog {
	return NewCatalogFrom(defaultRules())
}

// NewCatalogFrom 使用给定规则创建目录，key 重复时保留第一条
func NewCatalogFrom(rules []domain.ServiceMatchRule) *Catalog {
	c := &Catalog{index: make(map[string]int, len(rules))}
	for _, r := range rules {
		key := normalizeKey(r.Key)
		if key == "" {
			continue
		}
		if _, exists := c.index[key]; exists {
			continue
		}
		r.Key = key
		r.FromContains = append([]string(nil), r.FromContains...)
		r.SubjectContains = append([]string(nil), r.SubjectContains...)
		c.index[key] = len(c.rules)
		c.rules = append(c.rules, r)
	}
	return c
}

// Get 按 key 查找规则（忽略大小写与首尾空白）
func (c *Catalog) Get(key string) (*domain.ServiceMatchRule, bool) {
	i, ok := c.index[normalizeKey(key)]
	if !ok {
		return nil, false
	}
	r := c.rules[i]
	return &r, true
}

// All 按注册顺序返回所有服务的摘要
func (c *Catalog) All() []domain.ServiceSummary {
	out := make([]domain.ServiceSummary, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.Summary())
	}
	return out
}

// Keys 按注册顺序返回所有 key
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		keys = append(keys, r.Key)
	}
	return keys
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// defaultRules 内置的流媒体服务规则，子串均为不区分大小写的包含匹配
func defaultRules() []domain.ServiceMatchRule {
	return []domain.ServiceMatchRule{
		{
			Key:         "netflix",
			DisplayName: "Netflix",
			// 部分网页邮箱显示的发件人只有 "Netflix"
			FromContains: []string{
				"netflix",
				"@netflix.com",
				"@mail.netflix.com",
				"@account.netflix.com",
				"info@account.netflix.com",
				"info@netflix.com",
			},
			SubjectContains: []string{
				"código",
				"code",
				"verification",
				"iniciar sesión",
				"inicio de sesión",
				"login",
				"tu código",
				"Tu código de acceso temporal de Netflix",
				"Importante: Cómo actualizar tu Hogar con Netflix",
				"Netflix: Nueva solicitud de inicio de sesión",
				"Completa tu solicitud de restablecimiento de contraseña",
				"Netflix: Tu código de inicio de sesión",
				"Restablece tu contraseña",
				"Restablecimiento de contraseña",
			},
		},
		{
			Key:          "prime",
			DisplayName:  "Amazon Prime",
			FromContains: []string{"amazon", "@amazon.com", "@primevideo.com", "account-update@amazon.com"},
			SubjectContains: []string{
				"amazon.com: Sign-in attempt",
				"amazon.com: Intento de inicio de sesión",
				"Ayuda con la contraseña de Amazon",
				"otp",
				"código",
				"code",
				"verification",
				"inicia sesión",
				"sign-in",
			},
		},
		{
			Key:          "disney",
			DisplayName:  "Disney+",
			FromContains: []string{"disney", "@disney.com", "@disneyplus.com"},
			SubjectContains: []string{
				"Tu código de acceso único para Disney+",
				"código",
				"code",
				"verification",
				"one-time",
			},
		},
		{
			Key:          "max",
			DisplayName:  "Max",
			FromContains: []string{"max", "hbo", "@hbomax.com", "@max.com", "@warnermedia.com"},
			SubjectContains: []string{
				"Tu enlace para restablecer tu contraseña",
				"restablecer tu contraseña",
				"código",
				"code",
				"verification",
			},
		},
		{
			Key:          "spotify",
			DisplayName:  "Spotify",
			FromContains: []string{"spotify", "@spotify.com", "no-reply@spotify.com", "noreply@spotify.com"},
			SubjectContains: []string{
				"spotify",
				"código",
				"code",
				"verification",
				"verificación",
				"iniciar sesión",
				"inicio de sesión",
				"login",
				"restablece",
				"restablecer",
				"password",
				"contraseña",
			},
		},
		{
			Key:             "apple",
			DisplayName:     "Apple",
			FromContains:    []string{"apple", "@apple.com", "@id.apple.com"},
			SubjectContains: []string{"Apple+ código de activación", "código de activación"},
		},
		{
			Key:             "vix",
			DisplayName:     "Vix",
			FromContains:    []string{"vix"},
			SubjectContains: []string{"Cambio de contraseña", "restablecer"},
		},
		{
			Key:             "paramount",
			DisplayName:     "Paramount+",
			FromContains:    []string{"paramount"},
			SubjectContains: []string{"Restablecimiento de la contraseña de Paramount+"},
		},
		{
			Key:          "crunchyroll",
			DisplayName:  "Crunchyroll",
			FromContains: []string{"crunchyroll"},
			SubjectContains: []string{
				"Reset Your Crunchyroll Password",
				"Restablece tu contraseña de Crunchyroll",
				"Reinicia tu contraseña de Crunchyroll",
				"reset",
				"restablece",
			},
		},
	}
}
