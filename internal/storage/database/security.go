package database

import (
	"fmt"
	"regexp"
)

var objectIDPattern = regexp.MustCompile("^[a-fA-F0-9]{24}$")

// ValidateObjectID 驗證 MongoDB ObjectID 格式.
// 消息 ID 與分頁游標在進入存儲層前都先過這個檢查，
// 避免把任意字串帶進查詢條件.
func ValidateObjectID(id string) error {
	if !objectIDPattern.MatchString(id) {
		return fmt.Errorf("無效的 ObjectID 格式")
	}
	return nil
}
