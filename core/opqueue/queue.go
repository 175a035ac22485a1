package opqueue

import (
	"sync"
	"time"

	"MagicDJ/logger"
	"MagicDJ/model"
)

// DefaultWindow 默认防抖窗口。针对连续误触（按键连按）调优的经验值，
// 可通过配置覆盖。
const DefaultWindow = 100 * time.Millisecond

// Queue 会话控制操作的防抖优先级队列。上一个被接受的操作之后的
// 窗口期内，新操作一律缓冲；窗口期满排空时只执行缓冲中优先级最高的
// 一个，其余直接丢弃。保证每个窗口至多执行一个操作，且同窗口内
// 低优先级操作绝不抢在高优先级操作之前执行。
type Queue struct {
	mu           sync.Mutex
	window       time.Duration
	lastAccepted time.Time
	buffer       []model.PendingOperation

	// 可注入时钟，测试用
	now func() time.Time
}

// New 创建操作队列，window<=0 时使用默认窗口
func New(window time.Duration) *Queue {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Queue{
		window: window,
		now:    time.Now,
	}
}

// SetClock 替换时钟源，仅测试使用
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// QueueOperation 提交一个操作。返回 true 表示在防抖窗口之外，
// 调用方应当立即执行（窗口随之重置）；返回 false 表示已缓冲，
// 调用方不得执行，等待排空。
func (q *Queue) QueueOperation(opType model.OperationType, trackID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if q.lastAccepted.IsZero() || now.Sub(q.lastAccepted) > q.window {
		// 上一窗口的缓冲尚未排空就被新窗口取代：整批作废。
		// 迟到的排空若执行旧缓冲，会在新窗口内产生第二次执行。
		if len(q.buffer) > 0 {
			logger.Debug("作废已过期窗口的缓冲操作",
				logger.Int("discarded", len(q.buffer)))
			q.buffer = nil
		}
		q.lastAccepted = now
		return true
	}

	// 窗口内：缓冲，创建后不再修改
	q.buffer = append(q.buffer, model.PendingOperation{
		Type:      opType,
		Priority:  opType.Priority(),
		Timestamp: now,
		TrackID:   trackID,
	})
	logger.Debug("操作已进入防抖缓冲",
		logger.String("type", string(opType)),
		logger.Int("buffered", len(q.buffer)))
	return false
}

// ProcessOperationQueue 排空缓冲，返回其中优先级最高的操作
// （优先级相同时先到者胜出），缓冲为空返回 nil。
// 排空总是清掉整个缓冲，包括被丢弃的低优先级操作。
func (q *Queue) ProcessOperationQueue() *model.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buffer) == 0 {
		return nil
	}

	best := q.buffer[0]
	for _, op := range q.buffer[1:] {
		if op.Priority < best.Priority {
			best = op
		}
	}

	discarded := len(q.buffer) - 1
	q.buffer = nil
	// 排空产生一次执行，窗口重新计时
	q.lastAccepted = q.now()

	if discarded > 0 {
		logger.Debug("丢弃同窗口内的低优先级操作",
			logger.String("executed", string(best.Type)),
			logger.Int("discarded", discarded))
	}
	return &best
}

// ClearOperationQueue 丢弃全部缓冲操作，不执行任何一个
// （会话结束/重置时调用）
func (q *Queue) ClearOperationQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffer = nil
	q.lastAccepted = time.Time{}
}

// BufferedCount 当前缓冲的操作数量
func (q *Queue) BufferedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Window 返回防抖窗口长度
func (q *Queue) Window() time.Duration {
	return q.window
}
