// Package device 는 User-Agent 문자열을 browser / OS / device 정보로 해석한다.
//
// recorder 와 집계 로직은 Resolver 인터페이스에만 의존하므로
// 해석 엔진을 교체해도 영향을 받지 않는다.
package device

import (
	"visitor-tracker/internal/model"

	"github.com/ua-parser/uap-go/uaparser"
)

// Resolver 는 User-Agent 를 DeviceInfo 로 해석한다.
type Resolver interface {
	Resolve(userAgent string) model.DeviceInfo
}

// ResolverFunc 는 함수를 Resolver 로 쓰기 위한 adapter.
type ResolverFunc func(userAgent string) model.DeviceInfo

func (f ResolverFunc) Resolve(userAgent string) model.DeviceInfo { return f(userAgent) }

// UAParser 는 uap-go 에 내장된 regexes 로 해석한다.
// Parser 는 초기화 비용이 크므로 프로세스당 하나만 만든다.
type UAParser struct {
	p *uaparser.Parser
}

func NewUAParser() *UAParser {
	return &UAParser{p: uaparser.NewFromSaved()}
}

func (u *UAParser) Resolve(userAgent string) model.DeviceInfo {
	c := u.p.Parse(userAgent)

	info := model.DeviceInfo{
		Browser: "Unknown",
		OS:      "Unknown",
		Device:  "Desktop",
	}
	if c == nil {
		return info
	}
	if c.UserAgent != nil {
		info.Browser = orDefault(c.UserAgent.Family, "Unknown")
		info.BrowserVersion = c.UserAgent.Major
	}
	if c.Os != nil {
		info.OS = orDefault(c.Os.Family, "Unknown")
		info.OSVersion = c.Os.Major
	}
	if c.Device != nil {
		info.Device = orDefault(c.Device.Family, "Desktop")
	}
	return info
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
