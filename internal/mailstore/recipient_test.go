package mailstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesRecipient(t *testing.T) {
	t.Run("结构化收件人带显示名", func(t *testing.T) {
		m := &Message{To: []Address{{Name: "Jane Doe", Addr: "jane@klbdescuentos.com"}}}
		assert.True(t, MatchesRecipient(m, "jane@klbdescuentos.com"))
	})

	t.Run("Cc 也参与匹配", func(t *testing.T) {
		m := &Message{Cc: []Address{{Addr: "JANE@klbdescuentos.com"}}}
		assert.True(t, MatchesRecipient(m, "jane@klbdescuentos.com"))
	})

	t.Run("原始 To 头部子串匹配", func(t *testing.T) {
		m := &Message{}
		m.Header.Add("To", "Jane Doe <jane@klbdescuentos.com>")
		assert.True(t, MatchesRecipient(m, "jane@klbdescuentos.com"))
	})

	t.Run("转发头部", func(t *testing.T) {
		for _, key := range []string{"Delivered-To", "X-Original-To", "Envelope-To"} {
			m := &Message{To: []Address{{Addr: "catchall@klbdescuentos.com"}}}
			m.Header.Add(key, "jane@klbdescuentos.com")
			assert.True(t, MatchesRecipient(m, "jane@klbdescuentos.com"), key)
		}
	})

	t.Run("头部读取失败视为未命中", func(t *testing.T) {
		m := &Message{HeaderErr: errors.New("not fetched")}
		assert.False(t, MatchesRecipient(m, "jane@klbdescuentos.com"))

		m.To = []Address{{Addr: "jane@klbdescuentos.com"}}
		assert.True(t, MatchesRecipient(m, "jane@klbdescuentos.com"))
	})

	t.Run("不匹配", func(t *testing.T) {
		m := &Message{To: []Address{{Addr: "john@klbdescuentos.com"}}}
		m.Header.Add("Delivered-To", "john@klbdescuentos.com")
		assert.False(t, MatchesRecipient(m, "jane@klbdescuentos.com"))
	})

	t.Run("空目标或空邮件", func(t *testing.T) {
		assert.False(t, MatchesRecipient(nil, "jane@klbdescuentos.com"))
		assert.False(t, MatchesRecipient(&Message{To: []Address{{Addr: "a@b.c"}}}, ""))
	})
}
