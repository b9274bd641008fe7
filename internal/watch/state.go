package watch

import (
	"time"

	"posture-monitor/internal/models"
)

// maxAlertLog 界面保留的告警条数
const maxAlertLog = 8

// AlertEntry 告警记录
type AlertEntry struct {
	ReceivedAt time.Time
	Event      models.StreamEvent
}

// State 由事件流推导出的界面状态
type State struct {
	Metadata   *models.StreamEvent
	Last       *models.StreamEvent
	Frames     int
	Alerts     []AlertEntry
	AlertCount int
	Err        string
	Done       bool

	// 当前体位从哪个视频时间开始保持
	heldLabel string
	heldSince float64
}

// Apply 应用一条事件；error 事件视为流结束
func (s *State) Apply(ev models.StreamEvent, now time.Time) {
	if s.Done {
		return
	}
	switch ev.Type {
	case models.EventTypeMetadata:
		meta := ev
		s.Metadata = &meta
	case models.EventTypeFrame:
		frame := ev
		s.Last = &frame
		s.Frames++
		if frame.Label != s.heldLabel || s.Frames == 1 {
			s.heldLabel = frame.Label
			s.heldSince = frame.Timestamp
		}
	case models.EventTypeAlert:
		s.AlertCount++
		s.Alerts = append([]AlertEntry{{ReceivedAt: now, Event: ev}}, s.Alerts...)
		if len(s.Alerts) > maxAlertLog {
			s.Alerts = s.Alerts[:maxAlertLog]
		}
	case models.EventTypeError:
		s.Err = ev.Message
		s.Done = true
	}
}

// HeldFor 当前体位已保持的秒数（视频时间）
func (s *State) HeldFor() float64 {
	if s.Last == nil {
		return 0
	}
	return s.Last.Timestamp - s.heldSince
}

// Finish 流正常结束或连接断开
func (s *State) Finish(err error) {
	if s.Done {
		return
	}
	s.Done = true
	if err != nil {
		s.Err = err.Error()
	}
}
