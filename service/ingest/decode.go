/*
 * @module service/ingest/decode
 * @description 完成事件解码，Kafka、MQTT与Webhook三种渠道共用
 * @rules 数值与时间字段容忍字符串形式；字段名兼容常见别名
 * @dependencies github.com/spf13/cast, github.com/shopspring/decimal
 */

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fieldwork-service/service/project"
	"fieldwork-service/service/tracking"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ErrMalformedPayload 无法解析的消息体
var ErrMalformedPayload = errors.New("完成事件格式错误")

// Recorder 完成事件登记
type Recorder interface {
	RecordCompletion(ctx context.Context, ev tracking.CompletionEvent) (*tracking.CompletionResult, error)
}

// DecodeCompletion 解析完成事件；消息未携带渠道时使用 channel
func DecodeCompletion(raw []byte, channel string) (tracking.CompletionEvent, error) {
	// 数字保留为 json.Number，避免大整数ID与时间戳经 float64 失真
	var row map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return tracking.CompletionEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := tracking.CompletionEvent{
		ProjectID:    field(row, "project_id", "projectId"),
		LineItemID:   field(row, "line_item_id", "lineItemId"),
		SegmentCode:  field(row, "segment_code", "segmentCode", "quota_code"),
		RespondentID: field(row, "respondent_id", "respondentId", "response_id"),
		Channel:      field(row, "channel"),
	}
	if ev.Channel == "" {
		ev.Channel = channel
	}

	if v, ok := row["cost"]; ok && v != nil {
		s := strings.TrimSpace(cast.ToString(v))
		if s != "" {
			cost, err := decimal.NewFromString(s)
			if err != nil {
				return tracking.CompletionEvent{}, fmt.Errorf("%w: cost=%v", ErrMalformedPayload, v)
			}
			ev.Cost = cost
		}
	}

	if v, ok := row["completed_at"]; ok && v != nil {
		t, err := cast.ToTimeE(v)
		if err != nil {
			return tracking.CompletionEvent{}, fmt.Errorf("%w: completed_at=%v", ErrMalformedPayload, v)
		}
		ev.CompletedAt = t
	}

	return ev, nil
}

// HandlePayload 解码并登记；重复事件不视为错误
func HandlePayload(ctx context.Context, recorder Recorder, raw []byte, channel string) error {
	ev, err := DecodeCompletion(raw, channel)
	if err != nil {
		return err
	}
	_, err = recorder.RecordCompletion(ctx, ev)
	if errors.Is(err, tracking.ErrDuplicateCompletion) {
		slog.Debug("忽略重复的完成事件", "line_item_id", ev.LineItemID, "respondent_id", ev.RespondentID)
		return nil
	}
	return err
}

// IsPermanent 重试也无法成功的错误：消息本身有误或引用了不存在的明细/分段
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, tracking.ErrInvalidEvent) ||
		errors.Is(err, tracking.ErrUnknownSegment) ||
		errors.Is(err, project.ErrLineItemNotFound)
}

func field(row map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return strings.TrimSpace(cast.ToString(v))
		}
	}
	return ""
}
