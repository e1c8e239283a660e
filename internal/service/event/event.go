// Package event 定义聊天流的事件及其 SSE 编解码
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Type 事件类型
type Type string

const (
	TypeText  Type = "text"
	TypeUsage Type = "usage"
	TypeDone  Type = "done"
	TypeError Type = "error"
)

// DataPrefix SSE 数据行前缀
const DataPrefix = "data: "

// Event 流事件，只能是 Text、Usage、Done、Error 之一
type Event interface {
	Type() Type
	isEvent()
}

// Text 模型输出的文本片段
type Text struct {
	Content string
}

// Usage 本轮的 token 用量与费用，CostUSD 为空表示未知
type Usage struct {
	InputTokens  int
	OutputTokens int
	CostUSD      *float64
}

// Done 正常结束
type Done struct{}

// Error 失败结束
type Error struct {
	Message string
}

func (Text) Type() Type  { return TypeText }
func (Usage) Type() Type { return TypeUsage }
func (Done) Type() Type  { return TypeDone }
func (Error) Type() Type { return TypeError }

func (Text) isEvent()  {}
func (Usage) isEvent() {}
func (Done) isEvent()  {}
func (Error) isEvent() {}

type usagePayload struct {
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	CostUSD      *float64 `json:"cost_usd"`
}

// frame 线上 JSON 结构
type frame struct {
	Type    Type          `json:"type"`
	Content string        `json:"content,omitempty"`
	Usage   *usagePayload `json:"usage,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Marshal 编码为 JSON
func Marshal(e Event) ([]byte, error) {
	var f frame
	switch ev := e.(type) {
	case Text:
		f = frame{Type: TypeText, Content: ev.Content}
	case Usage:
		f = frame{Type: TypeUsage, Usage: &usagePayload{
			InputTokens:  ev.InputTokens,
			OutputTokens: ev.OutputTokens,
			CostUSD:      ev.CostUSD,
		}}
	case Done:
		f = frame{Type: TypeDone}
	case Error:
		f = frame{Type: TypeError, Error: ev.Message}
	default:
		return nil, fmt.Errorf("unsupported event %T", e)
	}
	return json.Marshal(f)
}

// Encode 编码为一帧 SSE：data: <json>\n\n
func Encode(e Event) ([]byte, error) {
	data, err := Marshal(e)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(DataPrefix)+len(data)+2)
	buf = append(buf, DataPrefix...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')
	return buf, nil
}

// ParseLine 解析一行 SSE
//
// 没有 data 前缀、JSON 无效或类型未知的行返回 ok=false，由调用方跳过。
func ParseLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, DataPrefix) {
		return nil, false
	}

	var f frame
	if err := json.Unmarshal([]byte(line[len(DataPrefix):]), &f); err != nil {
		return nil, false
	}

	switch f.Type {
	case TypeText:
		return Text{Content: f.Content}, true
	case TypeUsage:
		if f.Usage == nil {
			return Usage{}, true
		}
		return Usage{
			InputTokens:  f.Usage.InputTokens,
			OutputTokens: f.Usage.OutputTokens,
			CostUSD:      f.Usage.CostUSD,
		}, true
	case TypeDone:
		return Done{}, true
	case TypeError:
		return Error{Message: f.Error}, true
	default:
		return nil, false
	}
}

// Decoder 增量解码 SSE 字节流
//
// 每次 Feed 只解析完整的行，最后一段不完整的行保留到下次。
type Decoder struct {
	buf []byte
}

// Feed 追加数据并返回其中完整行解析出的事件
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		if ev, ok := ParseLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Pending 返回尚未成行的数据长度
func (d *Decoder) Pending() int {
	return len(d.buf)
}
