// internal/model/accesslog.go
package model

// AccessLogEntry 는 rolling access log 의 한 줄(JSON)이다.
type AccessLogEntry struct {
	Timestamp  string `json:"timestamp"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}
