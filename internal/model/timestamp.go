// internal/model/timestamp.go
package model

import (
	"strings"
	"time"
)

// TimestampLayout 은 서버가 부여하는 timestamp 형식이다 (UTC, offset 없음).
// 예: 2024-01-02T15:04:05.123456
const TimestampLayout = "2006-01-02T15:04:05.000000"

// isoLayouts 는 client 가 보낼 수 있는 ISO-8601 변형들.
// offset 이 없는 값은 UTC 로 해석한다.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// FormatTimestamp 는 t 를 UTC TimestampLayout 문자열로 만든다.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp 는 ISO-8601 문자열을 해석한다.
// 해석할 수 없으면 ok=false (retention 에서는 이 경우 레코드를 보존한다).
func ParseTimestamp(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsDateOnly 는 "YYYY-MM-DD" 형태인지 확인한다.
// 날짜 필터의 endDate 를 그날 끝까지 포함시키는 데 사용한다.
func IsDateOnly(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 10 {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// DatePart 는 timestamp 앞 10자리(날짜 부분)를 돌려준다.
func DatePart(ts string) string {
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}
