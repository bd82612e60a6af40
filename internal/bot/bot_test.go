package bot

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatLockIsPerChat(t *testing.T) {
	b := &Bot{
		pending: make(map[int64]*pendingQuestionnaire),
		chats:   make(map[int64]*sync.Mutex),
	}

	assert.Same(t, b.chatLock(1), b.chatLock(1))
	assert.NotSame(t, b.chatLock(1), b.chatLock(2))
}

func TestChatLockSerializesQuestionnaireState(t *testing.T) {
	b := &Bot{
		pending: make(map[int64]*pendingQuestionnaire),
		chats:   make(map[int64]*sync.Mutex),
	}
	b.setPending(7, &pendingQuestionnaire{
		sessionID: "q1",
		responses: make(map[string]int),
	})

	// Concurrent replies in the same chat each advance the questionnaire by
	// exactly one answer when the chat lock is held.
	const replies = 50
	var wg sync.WaitGroup
	for i := 0; i < replies; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := b.chatLock(7)
			lock.Lock()
			defer lock.Unlock()

			p := b.pendingFor(7)
			p.responses[fmt.Sprintf("item_%d", p.questionIdx)] = 1
			p.questionIdx++
		}()
	}
	wg.Wait()

	p := b.pendingFor(7)
	assert.Equal(t, replies, p.questionIdx)
	assert.Len(t, p.responses, replies)
}
