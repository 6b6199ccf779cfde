package server

import (
	"net"
	"net/http"
	"strings"
)

// ------------------------------------------------------------
// 클라이언트 IP 추출
//
// 프록시(ALB/CloudFront) 뒤에서는 RemoteAddr 가 프록시 주소이므로
// TrustProxy 가 켜져 있을 때만 전달 헤더를 본다.
// 꺼져 있으면 헤더는 위조 가능하므로 무시한다.
// ------------------------------------------------------------

// isPublicIP 는 private / loopback / link-local 이 아니면 true.
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	return true
}

func safeParseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// clientIP 는 rate limit 과 visit_id 에 쓰일 클라이언트 주소를 돌려준다.
//
// trustProxy 일 때 우선순위:
//  1. X-Forwarded-For 의 첫 번째 public IP
//  2. CloudFront-Viewer-Address (포트 제거)
//  3. RemoteAddr
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip := safeParseIP(part); isPublicIP(ip) {
					return ip.String()
				}
			}
		}

		// 예: "203.0.113.55:44321" 또는 "2404:6800:4004::200e:44321"
		if cf := r.Header.Get("CloudFront-Viewer-Address"); cf != "" {
			host := cf
			if i := strings.LastIndex(cf, ":"); i != -1 {
				host = cf[:i]
			}
			if ip := safeParseIP(host); isPublicIP(ip) {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	if ip := safeParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
