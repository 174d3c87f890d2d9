package mailstore

import (
	"context"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_WithFolder(t *testing.T) {
	t.Run("凭据为空时不发起连接", func(t *testing.T) {
		mb := NewMailbox(Config{Host: "127.0.0.1", Port: 1, Username: " ", Password: "secret"}, nil)

		called := false
		err := mb.WithFolder(context.Background(), func(Folder) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.False(t, called)
	})

	t.Run("连接失败返回 connect 阶段错误", func(t *testing.T) {
		mb := NewMailbox(Config{
			Host:        "127.0.0.1",
			Port:        1,
			Username:    "user",
			Password:    "pass",
			DialTimeout: 200 * time.Millisecond,
		}, nil)

		err := mb.WithFolder(context.Background(), func(Folder) error { return nil })
		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, OpConnect, opErr.Op)
	})

	t.Run("连接数达到上限时等待直到取消", func(t *testing.T) {
		mb := NewMailbox(Config{
			Host:        "127.0.0.1",
			Port:        1,
			Username:    "user",
			Password:    "pass",
			MaxSessions: 1,
		}, nil)
		// 占满唯一的连接名额
		require.NoError(t, mb.sessions.Acquire(context.Background(), 1))
		defer mb.sessions.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := mb.WithFolder(ctx, func(Folder) error { return nil })
		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, OpConnect, opErr.Op)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMailbox_Defaults(t *testing.T) {
	mb := NewMailbox(Config{Host: "imap.example.com"}, nil)
	assert.Equal(t, "imap.example.com:993", mb.Addr())
	assert.Equal(t, DefaultScanWindow, mb.ScanWindow())
	assert.Equal(t, "INBOX", mb.cfg.Folder)

	assert.Nil(t, mb.sessions, "未设置上限时不限制连接数")

	mb = NewMailbox(Config{Host: "imap.example.com", ScanMax: 50, MaxSessions: 2}, nil)
	assert.Equal(t, 50, mb.ScanWindow())
	assert.NotNil(t, mb.sessions)
}

func TestMailbox_TLSConfig(t *testing.T) {
	tests := []struct {
		name       string
		trust      string
		serverName string
		insecure   bool
	}{
		{"未指定时校验主机名", "", "imap.example.com", false},
		{"星号跳过校验", "*", "imap.example.com", true},
		{"列表包含主机", "other.com imap.example.com", "imap.example.com", false},
		{"列表不包含主机时使用第一项", "mail.provider.net backup.net", "mail.provider.net", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := NewMailbox(Config{Host: "imap.example.com", SSLTrust: tt.trust}, nil)
			cfg := mb.tlsConfig()
			assert.Equal(t, tt.serverName, cfg.ServerName)
			assert.Equal(t, tt.insecure, cfg.InsecureSkipVerify)
		})
	}
}

func TestParseRecipientHeader(t *testing.T) {
	t.Run("解析多个字段", func(t *testing.T) {
		raw := []byte("To: Jane <jane@klbdescuentos.com>\r\nDelivered-To: jane@klbdescuentos.com\r\n\r\n")
		h, err := parseRecipientHeader(raw)
		require.NoError(t, err)
		assert.Equal(t, "Jane <jane@klbdescuentos.com>", h.Get("To"))
		assert.Equal(t, "jane@klbdescuentos.com", h.Get("Delivered-To"))
	})

	t.Run("缺少结束空行也能解析", func(t *testing.T) {
		h, err := parseRecipientHeader([]byte("X-Original-To: a@b.com\r\n"))
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", h.Get("X-Original-To"))
	})

	t.Run("空内容", func(t *testing.T) {
		h, err := parseRecipientHeader([]byte{})
		require.NoError(t, err)
		assert.Empty(t, h.Get("To"))
	})

	t.Run("未获取", func(t *testing.T) {
		_, err := parseRecipientHeader(nil)
		assert.ErrorIs(t, err, errHeaderUnavailable)
	})
}

func TestConvertEnvelope(t *testing.T) {
	received := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	section := recipientSection()

	t.Run("转换信封与头部", func(t *testing.T) {
		buf := &imapclient.FetchMessageBuffer{
			SeqNum:       42,
			InternalDate: received,
			Envelope: &imap.Envelope{
				Subject: "Your code",
				Date:    received.Add(-time.Minute),
				From:    []imap.Address{{Name: "Netflix", Mailbox: "info", Host: "netflix.com"}},
				To:      []imap.Address{{Mailbox: "jane", Host: "klbdescuentos.com"}},
			},
			BodySection: []imapclient.FetchBodySectionBuffer{
				{Section: section, Bytes: []byte("Delivered-To: jane@klbdescuentos.com\r\n\r\n")},
			},
		}

		m := convertEnvelope(buf, section)
		require.NoError(t, m.Err)
		assert.Equal(t, uint32(42), m.SeqNum)
		assert.Equal(t, "Netflix <info@netflix.com>", m.Sender())
		assert.Equal(t, "jane@klbdescuentos.com", m.To[0].Addr)
		assert.Equal(t, received, m.Timestamp())
		assert.True(t, MatchesRecipient(m, "jane@klbdescuentos.com"))

		values, err := m.HeaderValues("Delivered-To")
		require.NoError(t, err)
		assert.Equal(t, []string{"jane@klbdescuentos.com"}, values)
	})

	t.Run("缺少信封时标记错误", func(t *testing.T) {
		m := convertEnvelope(&imapclient.FetchMessageBuffer{SeqNum: 1}, section)
		assert.ErrorIs(t, m.Err, errEnvelopeMissing)
		assert.ErrorIs(t, m.HeaderErr, errHeaderUnavailable)
	})
}
