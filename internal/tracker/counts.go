package tracker

import (
	"bytes"
	"sort"

	json "github.com/goccy/go-json"
)

// Count 는 key 1개의 집계값.
type Count struct {
	Key   string
	Count int
}

// Counts 는 순서가 있는 집계 결과이다.
// JSON 으로는 순서를 유지한 object ({"key": count, ...}) 로 직렬화된다.
type Counts []Count

func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, _ := json.Marshal(e.Count)
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get 은 key 의 값을 돌려준다. 없으면 0.
func (c Counts) Get(key string) int {
	for _, e := range c {
		if e.Key == key {
			return e.Count
		}
	}
	return 0
}

// Top 은 앞에서 n 개만 남긴다.
func (c Counts) Top(n int) Counts {
	if n >= 0 && len(c) > n {
		return c[:n]
	}
	return c
}

// counter 는 처음 본 순서를 기억하는 카운터.
type counter struct {
	idx   map[string]int
	items Counts
}

func newCounter() *counter {
	return &counter{idx: make(map[string]int)}
}

func (c *counter) add(key string) {
	if i, ok := c.idx[key]; ok {
		c.items[i].Count++
		return
	}
	c.idx[key] = len(c.items)
	c.items = append(c.items, Count{Key: key, Count: 1})
}

// inserted 는 처음 본 순서 그대로.
func (c *counter) inserted() Counts {
	out := make(Counts, len(c.items))
	copy(out, c.items)
	return out
}

// sorted 는 count 내림차순. 동률은 처음 본 순서를 유지한다 (stable).
func (c *counter) sorted() Counts {
	out := c.inserted()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
