package mailstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 选择阶段没有找到任何匹配的邮件
	ErrNotFound = errors.New("no matching message")
	// ErrNotConfigured IMAP 用户名或密码未配置
	ErrNotConfigured = errors.New("imap username/password not configured")
)

// 失败阶段
const (
	OpConnect = "connect"
	OpLogin   = "login"
	OpSelect  = "select"
	OpFetch   = "fetch"
	OpSearch  = "search"
	OpExtract = "extract"
)

// OpError 记录邮箱访问过程中失败的阶段
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OpError
	if errors.As(err, &existing) {
		return err
	}
	return &OpError{Op: op, Err: err}
}
