package mailstore

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"mime"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Config IMAP 连接参数
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	Folder      string
	SSLTrust    string
	ScanMax     int
	DialTimeout time.Duration
	// MaxSessions 同时打开的 IMAP 连接上限，<= 0 表示不限制。
	// 多数邮件服务商对单个账户的并发连接数有限制。
	MaxSessions int
}

// Mailbox 负责建立 IMAP 连接并以只读方式打开邮件夹。
// 每次 WithFolder 调用使用一条独立连接，调用结束即释放。
type Mailbox struct {
	cfg      Config
	sessions *semaphore.Weighted
	log      *zap.Logger
}

// NewMailbox 创建邮箱访问器
func NewMailbox(cfg Config, log *zap.Logger) *Mailbox {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	mb := &Mailbox{cfg: cfg, log: log}
	if cfg.MaxSessions > 0 {
		mb.sessions = semaphore.NewWeighted(int64(cfg.MaxSessions))
	}
	return mb
}

// ScanWindow 返回本地扫描窗口大小
func (mb *Mailbox) ScanWindow() int {
	if mb.cfg.ScanMax < 1 {
		return DefaultScanWindow
	}
	return mb.cfg.ScanMax
}

// Addr 返回 host:port
func (mb *Mailbox) Addr() string {
	return net.JoinHostPort(mb.cfg.Host, strconv.Itoa(mb.cfg.Port))
}

// WithFolder 打开邮件夹并执行 fn，无论结果如何都会关闭邮件夹与连接。
// 关闭过程中的错误只记录日志，不覆盖 fn 的返回值。
func (mb *Mailbox) WithFolder(ctx context.Context, fn func(Folder) error) error {
	if strings.TrimSpace(mb.cfg.Username) == "" || strings.TrimSpace(mb.cfg.Password) == "" {
		return ErrNotConfigured
	}

	// 达到连接上限时排队等待，请求取消则放弃
	if mb.sessions != nil {
		if err := mb.sessions.Acquire(ctx, 1); err != nil {
			return opError(OpConnect, err)
		}
		defer mb.sessions.Release(1)
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: mb.cfg.DialTimeout},
		Config:    mb.tlsConfig(),
	}
	conn, err := dialer.DialContext(ctx, "tcp", mb.Addr())
	if err != nil {
		return opError(OpConnect, err)
	}

	client := imapclient.New(conn, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	})
	// imapclient 不接受 context，取消时直接关闭连接让阻塞的命令返回
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	selected := false
	defer func() {
		if selected {
			if err := client.Unselect().Wait(); err != nil {
				mb.log.Debug("unselect failed", zap.Error(err))
			}
		}
		if err := client.Logout().Wait(); err != nil {
			mb.log.Debug("logout failed", zap.Error(err))
		}
		if err := client.Close(); err != nil {
			mb.log.Debug("close connection failed", zap.Error(err))
		}
	}()

	if err := client.Login(mb.cfg.Username, mb.cfg.Password).Wait(); err != nil {
		return opError(OpLogin, err)
	}

	data, err := client.Select(mb.cfg.Folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return opError(OpSelect, err)
	}
	selected = true

	mb.log.Debug("folder opened",
		zap.String("folder", mb.cfg.Folder),
		zap.Uint32("messages", data.NumMessages),
	)

	return fn(&Session{client: client, numMessages: data.NumMessages})
}

// tlsConfig 根据 SSLTrust 构造证书校验参数
//
//	""           校验 Host
//	"*"          不校验证书
//	"a.com b.com" Host 在列表中时校验 Host，否则校验列表第一项
func (mb *Mailbox) tlsConfig() *tls.Config {
	cfg := &tls.Config{
		ServerName: mb.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	trusted := strings.Fields(mb.cfg.SSLTrust)
	if len(trusted) == 0 {
		return cfg
	}
	for _, name := range trusted {
		if name == "*" {
			cfg.InsecureSkipVerify = true
			return cfg
		}
		if strings.EqualFold(name, mb.cfg.Host) {
			return cfg
		}
	}
	cfg.ServerName = trusted[0]
	return cfg
}

// Session 是一个已打开的只读邮件夹
type Session struct {
	client      *imapclient.Client
	numMessages uint32
}

func (s *Session) NumMessages() uint32 {
	return s.numMessages
}

func (s *Session) FetchRange(ctx context.Context, from, to uint32) ([]*Message, error) {
	if from < 1 || to < from {
		return nil, nil
	}
	var set imap.SeqSet
	set.AddRange(from, to)
	return s.fetchMetadata(ctx, set)
}

func (s *Session) Search(ctx context.Context, q Query) ([]*Message, error) {
	data, err := s.client.Search(Criteria(q), nil).Wait()
	if err != nil {
		return nil, opError(OpSearch, err)
	}
	nums := data.AllSeqNums()
	if len(nums) == 0 {
		return nil, nil
	}
	return s.fetchMetadata(ctx, imap.SeqSetNum(nums...))
}

func (s *Session) FetchRaw(ctx context.Context, seqNum uint32) ([]byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	cmd := s.client.Fetch(imap.SeqSetNum(seqNum), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		if err := cmd.Close(); err != nil {
			return nil, opError(OpFetch, err)
		}
		return nil, opError(OpFetch, errMessageGone)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, opError(OpFetch, err)
	}
	if err := cmd.Close(); err != nil {
		return nil, opError(OpFetch, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return buf.FindBodySection(section), nil
}

// recipientSection 只取收件人相关的头部字段
func recipientSection() *imap.FetchItemBodySection {
	return &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: RecipientHeaders,
		Peek:         true,
	}
}

func (s *Session) fetchMetadata(ctx context.Context, set imap.NumSet) ([]*Message, error) {
	section := recipientSection()
	cmd := s.client.Fetch(set, &imap.FetchOptions{
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{section},
	})
	defer cmd.Close()

	var msgs []*Message
	for {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}
		data := cmd.Next()
		if data == nil {
			break
		}
		buf, err := data.Collect()
		if err != nil {
			msgs = append(msgs, &Message{SeqNum: data.SeqNum, Err: err})
			continue
		}
		msgs = append(msgs, convertEnvelope(buf, section))
	}

	if err := cmd.Close(); err != nil {
		return msgs, opError(OpFetch, err)
	}
	return msgs, nil
}

func convertEnvelope(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) *Message {
	m := &Message{
		SeqNum:     buf.SeqNum,
		ReceivedAt: buf.InternalDate,
	}

	if env := buf.Envelope; env != nil {
		m.Subject = env.Subject
		m.SentAt = env.Date
		m.From = convertAddresses(env.From)
		m.To = convertAddresses(env.To)
		m.Cc = convertAddresses(env.Cc)
	} else {
		m.Err = errEnvelopeMissing
	}

	if section != nil {
		m.Header, m.HeaderErr = parseRecipientHeader(buf.FindBodySection(section))
	} else {
		m.HeaderErr = errHeaderUnavailable
	}
	return m
}

func convertAddresses(in []imap.Address) []Address {
	if len(in) == 0 {
		return nil
	}
	out := make([]Address, 0, len(in))
	for _, a := range in {
		if a.IsGroupStart() || a.IsGroupEnd() {
			continue
		}
		out = append(out, Address{Name: a.Name, Addr: a.Addr()})
	}
	return out
}

// parseRecipientHeader 解析 BODY[HEADER.FIELDS (...)] 的返回内容
func parseRecipientHeader(raw []byte) (textproto.Header, error) {
	if raw == nil {
		return textproto.Header{}, errHeaderUnavailable
	}
	// 补一个空行，保证头部块有结束标记
	data := make([]byte, 0, len(raw)+4)
	data = append(data, raw...)
	data = append(data, "\r\n\r\n"...)
	return textproto.ReadHeader(bufio.NewReader(bytes.NewReader(data)))
}
