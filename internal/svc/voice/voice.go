package voice

import (
	"context"

	"github.com/wavechat/gateway/internal/structures"
)

// Instance tracks voice participation keyed by user, so "where is this user
// in voice" is a single lookup. A user holds at most one active voice
// channel: joining a new one implies leaving the previous.
type Instance interface {
	// Set upserts the user's voice state and returns the state being
	// replaced, if any.
	Set(ctx context.Context, state structures.VoiceState) (prev structures.VoiceState, moved bool, err error)
	Get(ctx context.Context, userID structures.ID) (structures.VoiceState, bool, error)
	// Clear removes the user's voice state and returns it, if any.
	Clear(ctx context.Context, userID structures.ID) (structures.VoiceState, bool, error)
}
