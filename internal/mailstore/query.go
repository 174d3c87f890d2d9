package mailstore

import (
	"strings"

	"github.com/emersion/go-imap/v2"

	"lastmail/backend/internal/domain"
)

// Query 是服务器端搜索使用的表达式树。
//
// 叶子节点为 from-contains / subject-contains，同一字段内用 OR 组合，
// 不同字段之间用 AND 组合。每个节点既能翻译为 IMAP SEARCH 条件，
// 也能在客户端直接求值。
type Query interface {
	// Match 在客户端对邮件求值
	Match(m *Message) bool
	// String 返回便于日志输出的表达式
	String() string

	criteria() imap.SearchCriteria
}

// FromContains 发件人包含指定子串
type FromContains string

// SubjectContains 主题包含指定子串
type SubjectContains string

// Or 任一子表达式成立即成立
type Or []Query

// And 所有子表达式成立才成立
type And []Query

// MatchAll 匹配所有邮件
type MatchAll struct{}

func (q FromContains) Match(m *Message) bool {
	return strings.Contains(strings.ToLower(m.Sender()), strings.ToLower(string(q)))
}

func (q FromContains) String() string { return "FROM " + quote(string(q)) }

func (q FromContains) criteria() imap.SearchCriteria {
	return imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "From", Value: string(q)}},
	}
}

func (q SubjectContains) Match(m *Message) bool {
	return strings.Contains(strings.ToLower(m.Subject), strings.ToLower(string(q)))
}

func (q SubjectContains) String() string { return "SUBJECT " + quote(string(q)) }

func (q SubjectContains) criteria() imap.SearchCriteria {
	return imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: string(q)}},
	}
}

func (q Or) Match(m *Message) bool {
	for _, sub := range q {
		if sub.Match(m) {
			return true
		}
	}
	return false
}

func (q Or) String() string { return join("OR", q) }

// IMAP 的 OR 只接受两个操作数，按右结合折叠
func (q Or) criteria() imap.SearchCriteria {
	switch len(q) {
	case 0:
		return imap.SearchCriteria{}
	case 1:
		return q[0].criteria()
	}
	return imap.SearchCriteria{
		Or: [][2]imap.SearchCriteria{{q[0].criteria(), q[1:].criteria()}},
	}
}

func (q And) Match(m *Message) bool {
	for _, sub := range q {
		if !sub.Match(m) {
			return false
		}
	}
	return true
}

func (q And) String() string { return join("AND", q) }

func (q And) criteria() imap.SearchCriteria {
	var c imap.SearchCriteria
	for _, sub := range q {
		subCriteria := sub.criteria()
		c.And(&subCriteria)
	}
	return c
}

func (MatchAll) Match(*Message) bool { return true }

func (MatchAll) String() string { return "ALL" }

// 空条件在 IMAP 中编码为 ALL
func (MatchAll) criteria() imap.SearchCriteria { return imap.SearchCriteria{} }

// Criteria 将表达式翻译为 IMAP SEARCH 条件
func Criteria(q Query) *imap.SearchCriteria {
	c := q.criteria()
	return &c
}

// BuildQuery 根据服务规则构建搜索表达式
//
// 发件人子串之间 OR，主题子串之间 OR，两侧再 AND；
// 空白子串被忽略，某一侧为空则省略该侧，两侧都为空（或 rule 为 nil）时匹配全部。
func BuildQuery(rule *domain.ServiceMatchRule) Query {
	if rule == nil {
		return MatchAll{}
	}

	fromTerm := orTerms(rule.FromContains, func(s string) Query { return FromContains(s) })
	subjectTerm := orTerms(rule.SubjectContains, func(s string) Query { return SubjectContains(s) })

	switch {
	case fromTerm == nil && subjectTerm == nil:
		return MatchAll{}
	case fromTerm == nil:
		return subjectTerm
	case subjectTerm == nil:
		return fromTerm
	}
	return And{fromTerm, subjectTerm}
}

func orTerms(values []string, leaf func(string) Query) Query {
	terms := make(Or, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		terms = append(terms, leaf(v))
	}

	switch len(terms) {
	case 0:
		return nil
	case 1:
		return terms[0]
	}
	return terms
}

func join(op string, qs []Query) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = q.String()
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
