package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lastmail/backend/internal/domain"
	"lastmail/backend/internal/mailstore"
)

// AnyService 是"任意服务"查询在响应中使用的服务名
const AnyService = "any"

var (
	// ErrNotFound 没有找到匹配的邮件
	ErrNotFound = errors.New("no email found")
	// ErrNotConfigured IMAP 凭据未配置
	ErrNotConfigured = errors.New("imap credentials not configured")
	// ErrUnknownService 服务目录中没有该服务
	ErrUnknownService = errors.New("unknown service")
	// ErrInvalidRecipient 收件人地址无效或域名不在允许列表中
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// 查询结果分类，用于日志与监控
const (
	OutcomeFound       = "found"
	OutcomeNotFound    = "not_found"
	OutcomeConfigError = "config_error"
	OutcomeFailure     = "failure"
	OutcomeInvalid     = "invalid"
)

// LookupError 邮箱访问或邮件解析失败
type LookupError struct {
	Category string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// MailboxOpener 提供一次性的只读邮件夹访问
type MailboxOpener interface {
	WithFolder(ctx context.Context, fn func(mailstore.Folder) error) error
	ScanWindow() int
}

// LookupObserver 接收每次查询的结果，实现方一般是监控指标
type LookupObserver interface {
	ObserveLookup(service, outcome, matchedVia string, elapsed time.Duration)
}

// EmailService 查找某个收件人最近收到的服务邮件。
type EmailService struct {
	mailbox        MailboxOpener
	selector       *mailstore.Selector
	allowedDomains []string
	observer       LookupObserver
	log            *zap.Logger
}

// NewEmailService 创建邮件查询服务
func NewEmailService(mailbox MailboxOpener, allowedDomains []string, log *zap.Logger) *EmailService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailService{
		mailbox:        mailbox,
		selector:       mailstore.NewSelector(log.Named("selector")),
		allowedDomains: allowedDomains,
		log:            log,
	}
}

// SetObserver 设置查询结果观察者（可选）
func (s *EmailService) SetObserver(o LookupObserver) {
	s.observer = o
}

// FindLastEmail 查找 recipient 最近收到的、符合 rule 的邮件
func (s *EmailService) FindLastEmail(ctx context.Context, recipient string, rule *domain.ServiceMatchRule) (*domain.EmailResponse, error) {
	if rule == nil {
		return nil, ErrUnknownService
	}
	mailbox, err := domain.ValidateRecipient(recipient, s.allowedDomains)
	if err != nil {
		s.observe(rule.Key, OutcomeInvalid, "", 0)
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}

	return s.lookup(ctx, rule.Key, mailbox, func(f mailstore.Folder) (*mailstore.Selection, error) {
		return s.selector.SelectLatest(ctx, f, mailbox, rule, s.mailbox.ScanWindow())
	})
}

// FindLastEmailAny 查找 recipient 最近收到的任意邮件，recipient 为空时返回邮件夹中最新的邮件
func (s *EmailService) FindLastEmailAny(ctx context.Context, recipient string) (*domain.EmailResponse, error) {
	mailbox := domain.NormalizeAddress(recipient)
	if mailbox != "" {
		var err error
		if mailbox, err = domain.ValidateRecipient(mailbox, s.allowedDomains); err != nil {
			s.observe(AnyService, OutcomeInvalid, "", 0)
			return nil, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
		}
	}

	return s.lookup(ctx, AnyService, mailbox, func(f mailstore.Folder) (*mailstore.Selection, error) {
		return s.selector.SelectLatestAny(ctx, f, mailbox, s.mailbox.ScanWindow())
	})
}

type selectFunc func(mailstore.Folder) (*mailstore.Selection, error)

func (s *EmailService) lookup(ctx context.Context, serviceKey, mailbox string, pick selectFunc) (*domain.EmailResponse, error) {
	start := time.Now()

	var (
		resp *domain.EmailResponse
		via  mailstore.MatchedVia
		seq  uint32
	)
	err := s.mailbox.WithFolder(ctx, func(f mailstore.Folder) error {
		sel, err := pick(f)
		if err != nil {
			return err
		}
		raw, err := f.FetchRaw(ctx, sel.Message.SeqNum)
		if err != nil {
			return err
		}
		body, err := mailstore.ExtractBody(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		via, seq = sel.MatchedVia, sel.Message.SeqNum
		resp = newEmailResponse(serviceKey, mailbox, sel.Message, body)
		return nil
	})

	elapsed := time.Since(start)
	if err != nil {
		err = classify(serviceKey, err)
		outcome := outcomeOf(err)
		s.observe(serviceKey, outcome, "", elapsed)
		if outcome == OutcomeFailure {
			s.log.Error("email lookup failed",
				zap.String("service", serviceKey),
				zap.String("mailbox", mailbox),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.observe(serviceKey, OutcomeFound, string(via), elapsed)
	s.log.Info("email found",
		zap.String("service", serviceKey),
		zap.String("mailbox", mailbox),
		zap.String("matched_via", string(via)),
		zap.Uint32("seq", seq),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func newEmailResponse(serviceKey, mailbox string, m *mailstore.Message, body domain.RenderedBody) *domain.EmailResponse {
	out := &domain.EmailResponse{
		Service:         serviceKey,
		Mailbox:         mailbox,
		Subject:         m.Subject,
		From:            m.Sender(),
		Body:            body.Text,
		BodyContentType: body.ContentType,
	}
	if ts := m.Timestamp(); !ts.IsZero() {
		ts = ts.UTC()
		out.ReceivedAt = &ts
	}
	return out
}

// classify 将邮箱层错误映射为服务层错误
func classify(serviceKey string, err error) error {
	var opErr *mailstore.OpError
	switch {
	case errors.Is(err, mailstore.ErrNotConfigured):
		return ErrNotConfigured
	case errors.Is(err, mailstore.ErrNotFound):
		return fmt.Errorf("%w for service %s", ErrNotFound, serviceKey)
	case errors.As(err, &opErr):
		return &LookupError{Category: opErr.Op, Err: opErr.Err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &LookupError{Category: "canceled", Err: err}
	default:
		return &LookupError{Category: "internal", Err: err}
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrNotConfigured):
		return OutcomeConfigError
	default:
		return OutcomeFailure
	}
}

func (s *EmailService) observe(serviceKey, outcome, via string, elapsed time.Duration) {
	if s.observer != nil {
		s.observer.ObserveLookup(serviceKey, outcome, via, elapsed)
	}
}
