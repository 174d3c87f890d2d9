package mailstore

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"lastmail/backend/internal/domain"
)

// DefaultScanWindow 本地扫描的默认邮件数量
const DefaultScanWindow = 500

// Folder 是一个以只读方式打开的邮件夹。
type Folder interface {
	// NumMessages 返回打开时邮件夹中的邮件数量
	NumMessages() uint32
	// FetchRange 获取序号区间 [from, to] 内邮件的元数据
	FetchRange(ctx context.Context, from, to uint32) ([]*Message, error)
	// Search 执行服务器端搜索并返回命中邮件的元数据
	Search(ctx context.Context, q Query) ([]*Message, error)
	// FetchRaw 获取指定序号邮件的完整 RFC 5322 内容
	FetchRaw(ctx context.Context, seqNum uint32) ([]byte, error)
}

// MatchedVia 标记邮件是在哪个阶段被选中的
type MatchedVia string

const (
	ViaLocalScan    MatchedVia = "local-scan"
	ViaServerSearch MatchedVia = "server-search"
)

// Selection 选择结果
type Selection struct {
	Message    *Message
	MatchedVia MatchedVia
}

// Verdict 单封邮件在本地扫描中的判定结果
type Verdict int

const (
	// VerdictReject 不匹配
	VerdictReject Verdict = iota
	// VerdictMatch 匹配
	VerdictMatch
	// VerdictSkip 元数据不可读，跳过
	VerdictSkip
)

func (v Verdict) String() string {
	switch v {
	case VerdictMatch:
		return "match"
	case VerdictSkip:
		return "skip"
	default:
		return "reject"
	}
}

// Selector 在邮件夹中挑选最新的匹配邮件
type Selector struct {
	log *zap.Logger
}

// NewSelector 创建选择器
func NewSelector(log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{log: log}
}

// SelectLatest 查找最新的、符合服务规则且发往 target 的邮件
//
// 第一阶段只扫描最新的 window 封邮件的元数据，从新到旧返回第一封匹配的邮件；
// 没有结果时进入第二阶段，按规则构建服务器端搜索并在结果中挑选时间最新的一封。
// 第二阶段只按规则过滤，不再检查收件人。
func (s *Selector) SelectLatest(ctx context.Context, f Folder, target string, rule *domain.ServiceMatchRule, window int) (*Selection, error) {
	target = domain.NormalizeAddress(target)

	msg, err := s.scan(ctx, f, window, func(m *Message) Verdict {
		return EvaluateRule(m, target, rule)
	})
	if err != nil {
		s.log.Warn("local scan failed, falling back to server search", zap.Error(err))
	}
	if msg != nil {
		return &Selection{Message: msg, MatchedVia: ViaLocalScan}, nil
	}

	q := BuildQuery(rule)
	s.log.Debug("local scan found nothing, running server search", zap.String("query", q.String()))

	results, err := f.Search(ctx, q)
	if err != nil {
		return nil, opError(OpSearch, err)
	}

	best := PickLatest(results)
	if best == nil {
		return nil, ErrNotFound
	}
	return &Selection{Message: best, MatchedVia: ViaServerSearch}, nil
}

// SelectLatestAny 查找最新的发往 target 的邮件，target 为空时返回窗口内最新的邮件。
// 与 SelectLatest 不同，这里没有服务器端搜索的回退阶段。
func (s *Selector) SelectLatestAny(ctx context.Context, f Folder, target string, window int) (*Selection, error) {
	target = domain.NormalizeAddress(target)

	msg, err := s.scan(ctx, f, window, func(m *Message) Verdict {
		return EvaluateRecipient(m, target)
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	return &Selection{Message: msg, MatchedVia: ViaLocalScan}, nil
}

// scan 获取最新 window 封邮件并从新到旧依次判定
func (s *Selector) scan(ctx context.Context, f Folder, window int, judge func(*Message) Verdict) (*Message, error) {
	total := f.NumMessages()
	if total == 0 {
		return nil, nil
	}

	start := scanStart(total, window)
	msgs, err := f.FetchRange(ctx, start, total)
	if err != nil {
		return nil, opError(OpFetch, err)
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SeqNum < msgs[j].SeqNum })

	skipped := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		v := judge(msgs[i])
		s.log.Debug("scanned message", zap.Uint32("seq", msgs[i].SeqNum), zap.Stringer("verdict", v))
		switch v {
		case VerdictMatch:
			return msgs[i], nil
		case VerdictSkip:
			skipped++
		}
	}

	s.log.Debug("local scan exhausted",
		zap.Uint32("from", start),
		zap.Uint32("to", total),
		zap.Int("skipped", skipped),
	)
	return nil, nil
}

// scanStart 计算扫描起始序号，window 至少为 1
func scanStart(total uint32, window int) uint32 {
	if window < 1 {
		window = 1
	}
	if uint64(window) >= uint64(total) {
		return 1
	}
	return total - uint32(window) + 1
}

// EvaluateRule 本地扫描的规则 + 收件人判定
func EvaluateRule(m *Message, targetLower string, rule *domain.ServiceMatchRule) Verdict {
	if m == nil || m.Err != nil {
		return VerdictSkip
	}
	if rule != nil && !MatchesRule(m, rule) {
		return VerdictReject
	}
	if targetLower != "" && !MatchesRecipient(m, targetLower) {
		return VerdictReject
	}
	return VerdictMatch
}

// EvaluateRecipient "任意服务"查询的判定，只检查收件人
func EvaluateRecipient(m *Message, targetLower string) Verdict {
	if m == nil || m.Err != nil {
		return VerdictSkip
	}
	if targetLower == "" || MatchesRecipient(m, targetLower) {
		return VerdictMatch
	}
	return VerdictReject
}

// MatchesRule 发件人与主题均需满足规则
//
// 空列表视为不限制；非空列表必须至少命中一个非空白词条，
// 因此只含空白词条的列表不会匹配任何邮件。
func MatchesRule(m *Message, rule *domain.ServiceMatchRule) bool {
	if rule == nil {
		return true
	}
	from := strings.ToLower(m.Sender())
	subject := strings.ToLower(m.Subject)

	return containsAny(from, rule.FromContains) && containsAny(subject, rule.SubjectContains)
}

// containsAny 空列表视为匹配，空白词条被忽略
func containsAny(haystackLower string, needles []string) bool {
	if len(needles) == 0 {
		return true
	}
	for _, n := range needles {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if strings.Contains(haystackLower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// PickLatest 返回时间最新的邮件，时间相同时取序号更大的一封。
// 序号越大代表越晚到达，这对常见 IMAP 邮件夹成立，但协议本身并不保证。
func PickLatest(msgs []*Message) *Message {
	var best *Message
	for _, m := range msgs {
		if m == nil || m.Err != nil {
			continue
		}
		if best == nil {
			best = m
			continue
		}
		ts, bestTs := m.Timestamp(), best.Timestamp()
		if ts.After(bestTs) || (ts.Equal(bestTs) && m.SeqNum > best.SeqNum) {
			best = m
		}
	}
	return best
}
