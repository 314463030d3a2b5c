package ai

import (
	"errors"
	"fmt"
)

// ErrorKind 生成失败的分类
type ErrorKind string

const (
	KindMissingCredential  ErrorKind = "missing-credential"
	KindPromptBlocked      ErrorKind = "prompt-blocked"
	KindNoCandidates       ErrorKind = "no-candidates"
	KindSafetyBlocked      ErrorKind = "safety-blocked"
	KindAbnormalStop       ErrorKind = "abnormal-stop"
	KindTransportError     ErrorKind = "transport-error"
	KindMalformedResponse  ErrorKind = "malformed-response"
	KindUnsupportedContent ErrorKind = "unsupported-content"
)

// GenerationError 模型调用失败。Error()的内容可以直接展示给用户
type GenerationError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	switch e.Kind {
	case KindMissingCredential:
		return "Content generation failed: API key is missing or empty. Please configure it in your environment."
	case KindPromptBlocked:
		return fmt.Sprintf("Content generation failed: Prompt blocked (reason: %s)", e.Reason)
	case KindNoCandidates:
		return "Content generation failed: No candidates returned."
	case KindSafetyBlocked:
		return "Content generation failed: Response blocked due to safety settings."
	case KindAbnormalStop:
		return fmt.Sprintf("Content generation failed: Stopped due to %s.", e.Reason)
	case KindTransportError:
		if e.Err != nil {
			return fmt.Sprintf("Content generation failed: %v", e.Err)
		}
		return "Content generation failed: request error."
	case KindMalformedResponse:
		return "Content generation failed: Response format error, text is not available."
	case KindUnsupportedContent:
		return fmt.Sprintf("Content generation failed: %s", e.Reason)
	}
	return fmt.Sprintf("Content generation failed: %s", e.Kind)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsKind 判断err是否为指定分类的生成错误
func IsKind(err error, kind ErrorKind) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == kind
}
