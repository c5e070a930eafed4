package voice

import (
	"context"
	"sync"

	"github.com/wavechat/gateway/internal/structures"
)

type memoryInst struct {
	mx     sync.Mutex
	states map[structures.ID]structures.VoiceState
}

func NewMemory() Instance {
	return &memoryInst{states: map[structures.ID]structures.VoiceState{}}
}

func (v *memoryInst) Set(_ context.Context, state structures.VoiceState) (structures.VoiceState, bool, error) {
	v.mx.Lock()
	defer v.mx.Unlock()

	prev, ok := v.states[state.UserID]
	v.states[state.UserID] = state

	return prev, ok && prev.ChannelID != state.ChannelID, nil
}

func (v *memoryInst) Get(_ context.Context, userID structures.ID) (structures.VoiceState, bool, error) {
	v.mx.Lock()
	defer v.mx.Unlock()

	state, ok := v.states[userID]

	return state, ok, nil
}

func (v *memoryInst) Clear(_ context.Context, userID structures.ID) (structures.VoiceState, bool, error) {
	v.mx.Lock()
	defer v.mx.Unlock()

	state, ok := v.states[userID]
	delete(v.states, userID)

	return state, ok, nil
}
