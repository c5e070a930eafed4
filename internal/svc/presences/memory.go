package presences

import (
	"context"
	"sync"
	"time"

	"github.com/wavechat/gateway/internal/structures"
)

type memoryInst struct {
	mx sync.Mutex

	now func() time.Time

	records map[structures.ID]structures.PresenceRecord
	online  map[structures.ID]time.Time
	typing  map[structures.ID]map[structures.ID]time.Time
	sockets map[structures.ID]map[string]struct{}
}

type MemoryOptions struct {
	// Now overrides the clock source. Tests only.
	Now func() time.Time
}

// NewMemory returns a process-local registry with the same TTL semantics as
// the redis driver. Suitable only for single-instance deployments.
func NewMemory(opt MemoryOptions) Instance {
	now := opt.Now
	if now == nil {
		now = time.Now
	}

	return &memoryInst{
		now:     now,
		records: map[structures.ID]structures.PresenceRecord{},
		online:  map[structures.ID]time.Time{},
		typing:  map[structures.ID]map[structures.ID]time.Time{},
		sockets: map[structures.ID]map[string]struct{}{},
	}
}

func (p *memoryInst) SetPresence(_ context.Context, userID structures.ID, status structures.PresenceStatus, customStatus string) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	p.records[userID] = structures.PresenceRecord{
		UserID:       userID,
		Status:       status,
		CustomStatus: customStatus,
		LastSeenAt:   p.now(),
	}

	if status == structures.PresenceStatusOffline {
		delete(p.online, userID)
	} else {
		p.online[userID] = p.now()
	}

	return nil
}

func (p *memoryInst) GetPresence(_ context.Context, userID structures.ID) (structures.PresenceRecord, bool, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	rec, ok := p.records[userID]
	if !ok || p.now().Sub(rec.LastSeenAt) > PresenceTTL {
		return structures.PresenceRecord{}, false, nil
	}

	return rec, true, nil
}

func (p *memoryInst) GetPresences(ctx context.Context, userIDs []structures.ID) (map[structures.ID]structures.PresenceRecord, error) {
	result := make(map[structures.ID]structures.PresenceRecord, len(userIDs))

	for _, id := range userIDs {
		rec, ok, _ := p.GetPresence(ctx, id)
		if ok {
			result[id] = rec
		}
	}

	return result, nil
}

func (p *memoryInst) OnlineCount(_ context.Context) (int64, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	cutoff := p.now().Add(-PresenceTTL)

	for id, at := range p.online {
		if at.Before(cutoff) {
			delete(p.online, id)
		}
	}

	return int64(len(p.online)), nil
}

func (p *memoryInst) MarkTyping(_ context.Context, channelID, userID structures.ID) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	m, ok := p.typing[channelID]
	if !ok {
		m = map[structures.ID]time.Time{}
		p.typing[channelID] = m
	}

	m[userID] = p.now()

	return nil
}

func (p *memoryInst) TypingUsers(_ context.Context, channelID structures.ID) ([]structures.TypingMark, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	now := p.now()
	marks := []structures.TypingMark{}

	for userID, ts := range p.typing[channelID] {
		if now.Sub(ts) > TypingTTL {
			continue
		}

		marks = append(marks, structures.TypingMark{
			ChannelID: channelID,
			UserID:    userID,
			Timestamp: ts,
		})
	}

	return marks, nil
}

func (p *memoryInst) RegisterSocket(_ context.Context, userID structures.ID, sessionID, socketID string) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	set, ok := p.sockets[userID]
	if !ok {
		set = map[string]struct{}{}
		p.sockets[userID] = set
	}

	set[socketMember(sessionID, socketID)] = struct{}{}

	return nil
}

func (p *memoryInst) UnregisterSocket(_ context.Context, userID structures.ID, sessionID, socketID string) (bool, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	set := p.sockets[userID]

	delete(set, socketMember(sessionID, socketID))

	if len(set) == 0 {
		delete(p.sockets, userID)

		return true, nil
	}

	return false, nil
}

func (p *memoryInst) SocketsOf(_ context.Context, userID structures.ID) ([]string, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	members := make([]string, 0, len(p.sockets[userID]))
	for m := range p.sockets[userID] {
		members = append(members, m)
	}

	return members, nil
}

func (p *memoryInst) HasAnySocket(_ context.Context, userID structures.ID) (bool, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	return len(p.sockets[userID]) > 0, nil
}
