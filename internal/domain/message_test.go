package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderedBodyAsPlainText(t *testing.T) {
	t.Run("HTML 转纯文本", func(t *testing.T) {
		body := RenderedBody{Text: "<p>Your code is <b>123456</b></p>", ContentType: ContentTypeHTML}
		plain := body.AsPlainText()

		assert.Equal(t, ContentTypePlain, plain.ContentType)
		assert.Contains(t, plain.Text, "Your code is 123456")
		assert.NotContains(t, plain.Text, "<b>")
	})

	t.Run("非 HTML 原样返回", func(t *testing.T) {
		body := RenderedBody{Text: "hello", ContentType: ContentTypePlain}
		assert.Equal(t, body, body.AsPlainText())
	})
}
