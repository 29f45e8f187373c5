package action

import (
	"strings"

	"chat-core/internal/chaterr"
)

// Payload action 的結構化參數.
// 分發層不定義業務結構，各 handler 通過帶類型的取值方法讀取欄位，
// 缺少必要欄位統一以 ValidationError 回報.
type Payload map[string]interface{}

// String 取出必要的字串欄位.
func (p Payload) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", chaterr.Newf(chaterr.KindValidation, "missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", chaterr.Newf(chaterr.KindValidation, "field %q must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", chaterr.Newf(chaterr.KindValidation, "field %q cannot be empty", key)
	}
	return s, nil
}

// OptionalString 取出可選的字串欄位，缺少時返回空字串.
func (p Payload) OptionalString(key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// StringSlice 取出字串陣列欄位，缺少時返回空陣列而非錯誤.
func (p Payload) StringSlice(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, chaterr.Newf(chaterr.KindValidation, "field %q must be a string array", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, chaterr.Newf(chaterr.KindValidation, "field %q must be a string array", key)
	}
}

// StringMap 取出巢狀物件欄位，缺少時返回 nil.
func (p Payload) StringMap(key string) (map[string]interface{}, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, chaterr.Newf(chaterr.KindValidation, "field %q must be an object", key)
	}
	return m, nil
}
