package session

import (
	"context"
	"time"

	"MagicDJ/cache"
	"MagicDJ/logger"
	"MagicDJ/model"

	"github.com/google/uuid"
)

// 会话计时器与操作日志。经过时间总是由外部tick按墙钟重算，
// 不做增量累加，避免漂移。

// StartSession 开始新会话。已有进行中的会话时返回它（同一时刻至多一条）。
func (s *Store) StartSession() *model.SessionRecord {
	s.mu.Lock()
	if s.session != nil {
		record := *s.session
		s.mu.Unlock()
		return &record
	}

	s.session = &model.SessionRecord{
		ID:            uuid.NewString(),
		StartTime:     time.Now(),
		OperationLogs: model.OperationLogList{},
	}
	s.elapsedSeconds = 0
	record := *s.session
	s.mu.Unlock()

	logger.Info("会话开始", logger.String("sessionId", record.ID))

	// 开始时就落一条归档记录，结束时再更新（尽力而为）
	if s.sessions != nil {
		go func(record model.SessionRecord) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.sessions.Create(ctx, &record); err != nil {
				logger.Error("会话记录创建失败",
					logger.String("sessionId", record.ID),
					logger.ErrorField(err))
			}
		}(record)
	}

	s.publishLiveStatus()
	s.changed()
	return &record
}

// StopSession 关闭当前会话：写入结束时间与冻结的时长，
// 归档到数据库（尽力而为），清除实时心跳。无进行中会话返回nil。
func (s *Store) StopSession() *model.SessionRecord {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil
	}

	now := time.Now()
	s.session.EndTime = &now
	s.session.DurationSeconds = int(now.Sub(s.session.StartTime).Seconds())
	record := *s.session
	record.OperationLogs = append(model.OperationLogList{}, s.session.OperationLogs...)
	s.session = nil
	s.elapsedSeconds = 0
	s.mu.Unlock()

	logger.Info("会话结束",
		logger.String("sessionId", record.ID),
		logger.Int("durationSeconds", record.DurationSeconds),
		logger.Int("operations", len(record.OperationLogs)))

	// 归档失败不影响会话关闭
	if s.sessions != nil {
		go func(record model.SessionRecord) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.sessions.Update(ctx, &record); err != nil {
				logger.Error("会话记录归档失败",
					logger.String("sessionId", record.ID),
					logger.ErrorField(err))
			}
		}(record)
	}

	if s.live != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.live.Clear(ctx); err != nil {
				logger.Warn("清除实时会话心跳失败", logger.ErrorField(err))
			}
		}()
	}

	s.changed()
	return &record
}

// ActiveSession 返回当前会话记录的拷贝，无会话返回nil
func (s *Store) ActiveSession() *model.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	record := *s.session
	record.OperationLogs = append(model.OperationLogList{}, s.session.OperationLogs...)
	return &record
}

// TickSession 按墙钟重算经过时间，由外部定时器驱动。
// 返回当前经过秒数，无进行中会话返回0。
func (s *Store) TickSession(now time.Time) int {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return 0
	}
	s.elapsedSeconds = int(now.Sub(s.session.StartTime).Seconds())
	elapsed := s.elapsedSeconds
	s.mu.Unlock()

	s.notify()
	return elapsed
}

// LogOperation 向当前会话追加一条已执行的控制操作。
// interrupt / force_submit 计入AI交互次数。无进行中会话则忽略。
func (s *Store) LogOperation(opType model.OperationType, trackID string) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	s.session.OperationLogs = append(s.session.OperationLogs, model.OperationLog{
		Type:    string(opType),
		TrackID: trackID,
		At:      time.Now().UnixMilli(),
	})
	if opType == model.OpInterrupt || opType == model.OpForceSubmit {
		s.session.AIInteractionCount++
	}
	s.mu.Unlock()

	s.publishLiveStatus()
	s.notify()
}

// LogModeSwitch 记录一次模式切换
func (s *Store) LogModeSwitch() {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	s.session.ModeSwitchCount++
	s.mu.Unlock()

	s.publishLiveStatus()
	s.notify()
}

// publishLiveStatus 把当前会话心跳发布到实时缓存（尽力而为）
func (s *Store) publishLiveStatus() {
	if s.live == nil {
		return
	}

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	status := cache.LiveStatus{
		SessionID:          s.session.ID,
		StartTime:          s.session.StartTime,
		OperationCount:     len(s.session.OperationLogs),
		ModeSwitchCount:    s.session.ModeSwitchCount,
		AIInteractionCount: s.session.AIInteractionCount,
	}
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.live.Publish(ctx, &status); err != nil {
			logger.Warn("发布实时会话心跳失败", logger.ErrorField(err))
		}
	}()
}
