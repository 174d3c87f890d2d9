package mailstore

import (
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastmail/backend/internal/domain"
)

func TestBuildQuery(t *testing.T) {
	t.Run("两侧都有时 AND 组合", func(t *testing.T) {
		q := BuildQuery(netflixRule())
		assert.Equal(t, `(FROM "netflix" AND (SUBJECT "código" OR SUBJECT "code"))`, q.String())
	})

	t.Run("单侧为空时省略", func(t *testing.T) {
		q := BuildQuery(&domain.ServiceMatchRule{SubjectContains: []string{"code", "verify"}})
		assert.Equal(t, `(SUBJECT "code" OR SUBJECT "verify")`, q.String())

		q = BuildQuery(&domain.ServiceMatchRule{FromContains: []string{"spotify"}})
		assert.Equal(t, FromContains("spotify"), q)
	})

	t.Run("两侧为空匹配全部", func(t *testing.T) {
		assert.Equal(t, MatchAll{}, BuildQuery(&domain.ServiceMatchRule{}))
		assert.Equal(t, MatchAll{}, BuildQuery(nil))
		assert.Equal(t, MatchAll{}, BuildQuery(&domain.ServiceMatchRule{FromContains: []string{"", "  "}}))
		assert.Equal(t, &imap.SearchCriteria{}, Criteria(MatchAll{}))
	})

	t.Run("客户端求值与规则一致", func(t *testing.T) {
		q := BuildQuery(netflixRule())
		hit := &Message{From: []Address{{Addr: "info@netflix.com"}}, Subject: "Your CODE"}
		miss := &Message{From: []Address{{Addr: "info@netflix.com"}}, Subject: "Welcome"}

		assert.True(t, q.Match(hit))
		assert.False(t, q.Match(miss))
		assert.Equal(t, MatchesRule(hit, netflixRule()), q.Match(hit))
		assert.Equal(t, MatchesRule(miss, netflixRule()), q.Match(miss))
	})
}

func TestCriteria(t *testing.T) {
	t.Run("叶子节点翻译为头部条件", func(t *testing.T) {
		c := Criteria(FromContains("netflix"))
		require.Len(t, c.Header, 1)
		assert.Equal(t, "From", c.Header[0].Key)
		assert.Equal(t, "netflix", c.Header[0].Value)
	})

	t.Run("OR 按右结合折叠为二元", func(t *testing.T) {
		c := Criteria(Or{SubjectContains("a"), SubjectContains("b"), SubjectContains("c")})
		require.Len(t, c.Or, 1)
		assert.Equal(t, "a", c.Or[0][0].Header[0].Value)

		right := c.Or[0][1]
		require.Len(t, right.Or, 1)
		assert.Equal(t, "b", right.Or[0][0].Header[0].Value)
		assert.Equal(t, "c", right.Or[0][1].Header[0].Value)
	})

	t.Run("AND 合并条件", func(t *testing.T) {
		c := Criteria(And{FromContains("netflix"), SubjectContains("code")})
		require.Len(t, c.Header, 2)
		assert.Equal(t, "From", c.Header[0].Key)
		assert.Equal(t, "Subject", c.Header[1].Key)
	})
}
