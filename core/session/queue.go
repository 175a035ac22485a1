package session

import (
	"MagicDJ/model"

	"github.com/google/uuid"
)

// 通道队列与提示列表的变更方法。两者都按id弱引用音轨，
// 重排序采用基于下标的摘出再插入；游标规则：
//   - 删除游标之前的项，游标左移一位，仍指向同一逻辑项
//   - 删除最后剩下的一项，游标归位为 -1
//   - 删除游标所指的项，游标就地指向后继项，越界时钳制到末尾

// EnqueueTrack 把音轨加入指定通道队列尾部
func (s *Store) EnqueueTrack(channel model.ChannelType, trackID string) model.QueueItem {
	item := model.QueueItem{ID: uuid.NewString(), TrackID: trackID}

	s.mu.Lock()
	s.state.ChannelQueues[channel] = append(s.state.ChannelQueues[channel], item)
	s.mu.Unlock()

	s.changed()
	return item
}

// RemoveQueueItem 删除通道队列中指定下标的项，并按游标规则修正 currentIndex
func (s *Store) RemoveQueueItem(channel model.ChannelType, index int) bool {
	s.mu.Lock()
	items := s.state.ChannelQueues[channel]
	if index < 0 || index >= len(items) {
		s.mu.Unlock()
		return false
	}

	s.state.ChannelQueues[channel] = append(items[:index], items[index+1:]...)

	cs := s.state.ChannelStates[channel]
	cs.CurrentIndex = adjustCursor(cs.CurrentIndex, index, len(s.state.ChannelQueues[channel]))
	s.state.ChannelStates[channel] = cs
	s.mu.Unlock()

	s.changed()
	return true
}

// MoveQueueItem 把通道队列中 from 位置的项移动到 to 位置
func (s *Store) MoveQueueItem(channel model.ChannelType, from, to int) bool {
	s.mu.Lock()
	items := s.state.ChannelQueues[channel]
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		s.mu.Unlock()
		return false
	}

	item := items[from]
	items = append(items[:from], items[from+1:]...)
	items = append(items[:to], append([]model.QueueItem{item}, items[to:]...)...)
	s.state.ChannelQueues[channel] = items
	s.mu.Unlock()

	s.changed()
	return true
}

// SetChannelState 更新通道播放状态
func (s *Store) SetChannelState(channel model.ChannelType, state model.ChannelState) {
	s.mu.Lock()
	s.state.ChannelStates[channel] = state
	s.mu.Unlock()

	s.changed()
}

// ========== 提示列表 ==========

// AddCueItem 追加提示项
func (s *Store) AddCueItem(trackID string) model.CueItem {
	s.mu.Lock()
	item := model.CueItem{
		ID:      uuid.NewString(),
		TrackID: trackID,
		Order:   len(s.state.CueList.Items),
		Status:  model.CueStatusPending,
	}
	s.state.CueList.Items = append(s.state.CueList.Items, item)
	s.mu.Unlock()

	s.changed()
	return item
}

// RemoveCueItem 删除指定下标的提示项并修正游标
func (s *Store) RemoveCueItem(index int) bool {
	s.mu.Lock()
	items := s.state.CueList.Items
	if index < 0 || index >= len(items) {
		s.mu.Unlock()
		return false
	}

	s.state.CueList.Items = append(items[:index], items[index+1:]...)
	s.reorderCueLocked()
	s.state.CueList.CurrentPosition = adjustCursor(
		s.state.CueList.CurrentPosition, index, len(s.state.CueList.Items))
	s.mu.Unlock()

	s.changed()
	return true
}

// MoveCueItem 把提示项从 from 移动到 to（摘出再插入）
func (s *Store) MoveCueItem(from, to int) bool {
	s.mu.Lock()
	items := s.state.CueList.Items
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		s.mu.Unlock()
		return false
	}

	item := items[from]
	items = append(items[:from], items[from+1:]...)
	items = append(items[:to], append([]model.CueItem{item}, items[to:]...)...)
	s.state.CueList.Items = items
	s.reorderCueLocked()
	s.mu.Unlock()

	s.changed()
	return true
}

// SetCuePosition 移动游标并更新各项状态
func (s *Store) SetCuePosition(position int) bool {
	s.mu.Lock()
	if position < -1 || position >= len(s.state.CueList.Items) {
		s.mu.Unlock()
		return false
	}

	s.state.CueList.CurrentPosition = position
	for i := range s.state.CueList.Items {
		switch {
		case position < 0:
			s.state.CueList.Items[i].Status = model.CueStatusPending
		case i < position:
			s.state.CueList.Items[i].Status = model.CueStatusPlayed
		case i == position:
			s.state.CueList.Items[i].Status = model.CueStatusPlaying
		default:
			s.state.CueList.Items[i].Status = model.CueStatusPending
		}
	}
	s.mu.Unlock()

	s.changed()
	return true
}

// reorderCueLocked 重写提示项的顺序号
func (s *Store) reorderCueLocked() {
	for i := range s.state.CueList.Items {
		s.state.CueList.Items[i].Order = i
	}
}

// adjustCursor 统一的游标修正规则
func adjustCursor(cursor, removed, remaining int) int {
	if remaining == 0 {
		return -1
	}
	if cursor < 0 {
		return cursor
	}
	if removed < cursor {
		return cursor - 1
	}
	if removed == cursor && cursor >= remaining {
		// 删除了游标所指的末尾项，钳制到新末尾
		return remaining - 1
	}
	return cursor
}
