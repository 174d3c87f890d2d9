package mailstore

import (
	"context"
	"fmt"
	"time"
)

// fakeFolder 内存中的邮件夹，messages[i] 的序号为 i+1
type fakeFolder struct {
	messages []*Message
	raw      map[uint32][]byte

	searchResults []*Message
	searchErr     error
	fetchErr      error

	searchCalls int
	lastQuery   Query
	lastFrom    uint32
	lastTo      uint32
}

func (f *fakeFolder) NumMessages() uint32 {
	return uint32(len(f.messages))
}

func (f *fakeFolder) FetchRange(_ context.Context, from, to uint32) ([]*Message, error) {
	f.lastFrom, f.lastTo = from, to
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if from < 1 || int(to) > len(f.messages) || from > to {
		return nil, fmt.Errorf("range %d:%d out of bounds", from, to)
	}
	return append([]*Message(nil), f.messages[from-1:to]...), nil
}

func (f *fakeFolder) Search(_ context.Context, q Query) ([]*Message, error) {
	f.searchCalls++
	f.lastQuery = q
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

func (f *fakeFolder) FetchRaw(_ context.Context, seqNum uint32) ([]byte, error) {
	b, ok := f.raw[seqNum]
	if !ok {
		return nil, fmt.Errorf("no raw message %d", seqNum)
	}
	return b, nil
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// newMessage 构造一封测试邮件，收件人同时写入 To 结构与原始头部
func newMessage(seq uint32, from, subject, to string) *Message {
	m := &Message{
		SeqNum:     seq,
		From:       []Address{{Addr: from}},
		Subject:    subject,
		ReceivedAt: baseTime.Add(time.Duration(seq) * time.Minute),
	}
	if to != "" {
		m.To = []Address{{Addr: to}}
		m.Header.Add("To", to)
	}
	return m
}

// folderOf 按顺序生成序号 1..n 的邮件夹
func folderOf(msgs ...*Message) *fakeFolder {
	for i, m := range msgs {
		m.SeqNum = uint32(i + 1)
	}
	return &fakeFolder{messages: msgs}
}
