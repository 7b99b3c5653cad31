package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"chatserver/internal/types"
)

func TestConversationKey(t *testing.T) {
	assert.Equal(t, conversationKey("a", "b"), conversationKey("b", "a"),
		"expected the key to be symmetric")
	assert.NotEqual(t, conversationKey("a", "b"), conversationKey("a", "c"),
		"expected distinct pairs to have distinct keys")
}

func TestConversationStoreAppend(t *testing.T) {
	store := NewConversationStore(10, 5)

	first := store.Append(&types.PrivateMessage{FromId: "a", ToId: "b", Content: "hi"})
	second := store.Append(&types.PrivateMessage{FromId: "b", ToId: "a", Content: "hey"})

	assert.Greater(t, second.Id, first.Id, "expected ids to increase")

	msgs := store.Between("a", "b", 0)
	assert.Len(t, msgs, 2, "expected both directions in one conversation")
	assert.Equal(t, "hi", msgs[0].Content, "expected oldest-first ordering")

	assert.Empty(t, store.Between("a", "c", 0), "expected empty conversation for unrelated pair")
}

func TestConversationStoreEviction(t *testing.T) {
	store := NewConversationStore(4, 2)

	for i := 1; i <= 6; i++ {
		store.Append(&types.PrivateMessage{FromId: "a", ToId: "b", Content: fmt.Sprintf("msg-%d", i)})
		assert.LessOrEqual(t, len(store.Between("a", "b", 0)), 4,
			"expected conversation to never exceed the hard cap")
	}

	// 5th append trims to 2, the 6th grows it again
	msgs := store.Between("a", "b", 0)
	assert.Len(t, msgs, 3, "expected retained window plus appends since the trim")
	assert.Equal(t, "msg-6", msgs[len(msgs)-1].Content, "expected newest message retained")
}
