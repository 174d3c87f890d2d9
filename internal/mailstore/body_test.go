package mailstore

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastmail/backend/internal/domain"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

const plainOnly = `From: Netflix <info@netflix.com>
To: jane@klbdescuentos.com
Subject: Your code
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

Your code is 1234
--b1--
`

const alternative = `From: Netflix <info@netflix.com>
Subject: Your code
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

plain version
--b1
Content-Type: text/html; charset=utf-8

<p>html version</p>
--b1--
`

const nested = `Subject: nested
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain

first plain
--inner
Content-Type: text/html

<b>first html</b>
--inner--
--outer
Content-Type: text/html

<b>second html</b>
--outer
Content-Type: image/png
Content-Transfer-Encoding: base64

iVBORw0KGgo=
--outer--
`

func TestExtractBody(t *testing.T) {
	t.Run("只有纯文本部分", func(t *testing.T) {
		body, err := ExtractBody(strings.NewReader(crlf(plainOnly)))
		require.NoError(t, err)
		assert.Equal(t, domain.ContentTypePlain, body.ContentType)
		assert.Contains(t, body.Text, "Your code is 1234")
	})

	t.Run("同时有纯文本和 HTML 时优先 HTML", func(t *testing.T) {
		body, err := ExtractBody(strings.NewReader(crlf(alternative)))
		require.NoError(t, err)
		assert.Equal(t, domain.ContentTypeHTML, body.ContentType)
		assert.Contains(t, body.Text, "<p>html version</p>")
	})

	t.Run("嵌套结构中每种类型取第一个", func(t *testing.T) {
		body, err := ExtractBody(strings.NewReader(crlf(nested)))
		require.NoError(t, err)
		assert.Equal(t, domain.ContentTypeHTML, body.ContentType)
		assert.Contains(t, body.Text, "first html")
		assert.NotContains(t, body.Text, "second html")
	})

	t.Run("非 multipart 邮件返回自身类型并去掉参数", func(t *testing.T) {
		raw := crlf("Subject: hi\nContent-Type: text/html; charset=utf-8\n\n<p>hi</p>\n")
		body, err := ExtractBody(strings.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, "text/html", body.ContentType)
		assert.Equal(t, "<p>hi</p>\r\n", body.Text)
	})

	t.Run("缺少 Content-Type 时类型为 unknown", func(t *testing.T) {
		body, err := ExtractBody(strings.NewReader(crlf("Subject: hi\n\nhello\n")))
		require.NoError(t, err)
		assert.Equal(t, domain.ContentTypeUnknown, body.ContentType)
		assert.Equal(t, "hello\r\n", body.Text)
	})

	t.Run("没有文本部分时返回空正文和顶层类型", func(t *testing.T) {
		raw := crlf(`Content-Type: multipart/mixed; boundary="b"

--b
Content-Type: application/pdf

%PDF
--b--
`)
		body, err := ExtractBody(strings.NewReader(raw))
		require.NoError(t, err)
		assert.Empty(t, body.Text)
		assert.Equal(t, "multipart/mixed", body.ContentType)
	})

	t.Run("未知字符集按原始字节返回", func(t *testing.T) {
		raw := crlf("Content-Type: text/plain; charset=x-unknown-charset\n\nabc\n")
		body, err := ExtractBody(strings.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, "text/plain", body.ContentType)
		assert.Contains(t, body.Text, "abc")
	})

	t.Run("读取失败返回提取错误", func(t *testing.T) {
		_, err := ExtractBody(failingReader{})
		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, OpExtract, opErr.Op)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection dropped")
}

func TestNormalizeContentType(t *testing.T) {
	assert.Equal(t, "text/html", NormalizeContentType("text/html; charset=utf-8"))
	assert.Equal(t, "text/plain", NormalizeContentType(" TEXT/Plain "))
	assert.Equal(t, "unknown", NormalizeContentType(""))
	assert.Equal(t, "unknown", NormalizeContentType("; charset=utf-8"))
}
