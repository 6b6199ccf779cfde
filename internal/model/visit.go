// internal/model/visit.go
package model

// DeviceInfo
// ------------------------------------------------------------
// User-Agent 를 해석한 결과. device.Resolver 가 채운다.
// 값이 비어 있으면 집계 단계에서 "Unknown" 으로 취급된다.
type DeviceInfo struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version"`
	Device         string `json:"device"`
}

// VisitRecord
// ------------------------------------------------------------
// 수락된 방문 1건. visits 컬렉션에 append 되며 이후 변경되지 않는다.
//
// VisitID 는 (ip, user_agent) 의 고정 길이 fingerprint 이므로
// 같은 주소+UA 조합은 항상 같은 값이 된다 (pseudo-session key).
// SessionID 는 현재 VisitID 와 동일하다.
type VisitRecord struct {
	VisitID          string     `json:"visit_id"`
	IPAddress        string     `json:"ip_address"`
	UserAgent        string     `json:"user_agent"`
	PageURL          string     `json:"page_url"`
	Referrer         string     `json:"referrer"`
	ScreenResolution string     `json:"screen_resolution"`
	Language         string     `json:"language"`
	Timestamp        string     `json:"timestamp"` // ISO-8601, client 값 또는 수집 시각(UTC)
	Device           DeviceInfo `json:"device"`
	SessionID        string     `json:"session_id"`
}

// RecordTimestamp 는 retention / 날짜 필터에서 사용하는 공통 accessor.
func (v VisitRecord) RecordTimestamp() string { return v.Timestamp }
