package mailstore

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"lastmail/backend/internal/domain"
)

// NormalizeContentType 去掉参数并转小写，缺失时返回 "unknown"
func NormalizeContentType(raw string) string {
	t, _, _ := strings.Cut(raw, ";")
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return domain.ContentTypeUnknown
	}
	return t
}

// bodyParts 深度优先遍历时收集到的第一个纯文本与第一个 HTML 部分
type bodyParts struct {
	plain, html       string
	hasPlain, hasHTML bool
}

// ExtractBody 从完整的 RFC 5322 邮件中提取一个可展示的正文
//
// 非 multipart 邮件直接返回正文和其自身的类型；multipart 邮件优先返回 HTML，
// 其次纯文本，都没有时返回空正文和顶层类型。读取失败直接返回错误。
func ExtractBody(r io.Reader) (domain.RenderedBody, error) {
	entity, err := message.Read(r)
	if err = tolerate(err); err != nil {
		return domain.RenderedBody{}, opError(OpExtract, err)
	}

	topType := NormalizeContentType(entity.Header.Get("Content-Type"))

	mr := entity.MultipartReader()
	if mr == nil {
		b, err := io.ReadAll(entity.Body)
		if err != nil {
			return domain.RenderedBody{}, opError(OpExtract, err)
		}
		return domain.RenderedBody{Text: string(b), ContentType: topType}, nil
	}

	var parts bodyParts
	if err := parts.walk(mr); err != nil {
		return domain.RenderedBody{}, opError(OpExtract, err)
	}

	switch {
	case parts.hasHTML:
		return domain.RenderedBody{Text: parts.html, ContentType: domain.ContentTypeHTML}, nil
	case parts.hasPlain:
		return domain.RenderedBody{Text: parts.plain, ContentType: domain.ContentTypePlain}, nil
	default:
		return domain.RenderedBody{ContentType: topType}, nil
	}
}

func (b *bodyParts) walk(mr message.MultipartReader) error {
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err = tolerate(err); err != nil {
			return err
		}

		if nested := p.MultipartReader(); nested != nil {
			if err := b.walk(nested); err != nil {
				return err
			}
			continue
		}

		switch NormalizeContentType(p.Header.Get("Content-Type")) {
		case domain.ContentTypePlain:
			if b.hasPlain {
				continue
			}
			text, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("read text/plain part: %w", err)
			}
			b.plain, b.hasPlain = string(text), true
		case domain.ContentTypeHTML:
			if b.hasHTML {
				continue
			}
			text, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("read text/html part: %w", err)
			}
			b.html, b.hasHTML = string(text), true
		}
	}
}

// tolerate 未知字符集或传输编码时 go-message 仍返回可读的实体，按原始字节处理
func tolerate(err error) error {
	if err == nil || message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
		return nil
	}
	return err
}
