package tracker

import (
	"strconv"
	"unicode/utf8"
)

// MaxPageURLLength 는 pageUrl 최대 길이 (문자 수).
const MaxPageURLLength = 2048

// VisitInput 은 검증을 통과한 방문 요청 필드.
type VisitInput struct {
	IP               string
	UserAgent        string
	PageURL          string
	Referrer         string
	ScreenResolution string
	Language         string
	Timestamp        string
}

// EventInput 은 검증을 통과한 이벤트 요청 필드.
type EventInput struct {
	EventType       string
	EventData       map[string]any
	VisitID         string
	ElementSelector string
	Timestamp       string
}

// parseVisitPayload 는 client JSON 에서 방문 필드를 꺼낸다.
// pageUrl 은 필수이며 문자열이고 MaxPageURLLength 이하여야 한다.
func parseVisitPayload(payload map[string]any) (VisitInput, error) {
	if len(payload) == 0 {
		return VisitInput{}, invalid("No data provided")
	}

	raw, ok := payload["pageUrl"]
	if !ok || isEmpty(raw) {
		return VisitInput{}, invalid("Missing required field: pageUrl")
	}
	pageURL, ok := raw.(string)
	if !ok || utf8.RuneCountInString(pageURL) > MaxPageURLLength {
		return VisitInput{}, invalid("Invalid page URL format")
	}

	return VisitInput{
		PageURL:          pageURL,
		Referrer:         str(payload["referrer"]),
		ScreenResolution: str(payload["screenResolution"]),
		Language:         str(payload["language"]),
		Timestamp:        str(payload["timestamp"]),
	}, nil
}

// parseEventPayload 는 단건 이벤트 필드를 꺼낸다. eventType 은 필수.
func parseEventPayload(payload map[string]any) (EventInput, error) {
	if len(payload) == 0 {
		return EventInput{}, invalid("No data provided")
	}

	in := eventFields(payload)
	if in.EventType == "" {
		return EventInput{}, invalid("Missing eventType")
	}
	return in, nil
}

// parseBatchPayload 는 {"events": [...]} 를 꺼낸다.
// 개별 항목에 eventType key 가 없으면 "unknown" 으로 기록한다.
// key 가 있으면 빈 값이라도 그대로 둔다.
func parseBatchPayload(payload map[string]any, maxEvents int) ([]EventInput, error) {
	items, _ := payload["events"].([]any)
	if len(items) == 0 {
		return nil, invalid("No events provided")
	}
	if maxEvents > 0 && len(items) > maxEvents {
		return nil, invalid("Too many events: at most " + strconv.Itoa(maxEvents) + " per request")
	}

	out := make([]EventInput, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalid("Invalid event at index " + strconv.Itoa(i))
		}
		in := eventFields(m)
		if _, ok := m["eventType"]; !ok {
			in.EventType = "unknown"
		}
		out = append(out, in)
	}
	return out, nil
}

func eventFields(m map[string]any) EventInput {
	data, _ := m["eventData"].(map[string]any)
	return EventInput{
		EventType:       str(m["eventType"]),
		EventData:       data,
		VisitID:         str(m["visitId"]),
		ElementSelector: str(m["elementSelector"]),
		Timestamp:       str(m["timestamp"]),
	}
}

// str 는 JSON scalar 를 문자열로 바꾼다. object/array/null 은 "".
func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// isEmpty 는 JSON 값의 falsy 여부 (null, "", 0, false, 빈 배열/객체).
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case float64:
		return t == 0
	case bool:
		return !t
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
