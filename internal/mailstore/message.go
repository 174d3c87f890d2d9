package mailstore

import (
	"errors"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
)

var (
	errHeaderUnavailable = errors.New("recipient headers not fetched")
	errEnvelopeMissing   = errors.New("envelope not returned by server")
	errMessageGone       = errors.New("message no longer in folder")
)

// Address 邮件地址（显示名 + 地址）
type Address struct {
	Name string
	Addr string
}

// String 返回 "Name <addr>" 或裸地址
func (a Address) String() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name + " <" + a.Addr + ">"
	}
	return a.Addr
}

// Message 是扫描阶段使用的邮件元数据（信封 + 收件人相关头部），不含正文。
type Message struct {
	SeqNum     uint32
	From       []Address
	To         []Address
	Cc         []Address
	Subject    string
	SentAt     time.Time
	ReceivedAt time.Time

	// Header 仅包含 RecipientHeaders 中列出的字段
	Header    textproto.Header
	HeaderErr error

	// Err 非空表示该邮件的元数据无法读取，扫描时跳过
	Err error
}

// Sender 返回第一个发件人的展示形式，没有发件人时返回空串
func (m *Message) Sender() string {
	if len(m.From) == 0 {
		return ""
	}
	return m.From[0].String()
}

// Recipients 返回 To 与 Cc 合并后的地址列表
func (m *Message) Recipients() []Address {
	all := make([]Address, 0, len(m.To)+len(m.Cc))
	all = append(all, m.To...)
	return append(all, m.Cc...)
}

// Timestamp 优先返回服务器接收时间，缺失时退回发送时间
func (m *Message) Timestamp() time.Time {
	if !m.ReceivedAt.IsZero() {
		return m.ReceivedAt
	}
	return m.SentAt
}

// HeaderValues 读取原始头部值
func (m *Message) HeaderValues(key string) ([]string, error) {
	if m.HeaderErr != nil {
		return nil, m.HeaderErr
	}
	return m.Header.Values(key), nil
}
