package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"docent-tagalong/internal/domain"
)

type fakeDirectory map[int64]domain.User

func (f fakeDirectory) GetUser(_ context.Context, id int64) (*domain.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f fakeDirectory) GetUserByEmail(context.Context, string) (*domain.User, error) {
	return nil, nil
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []Message
	err   error
	block chan struct{}
}

func (r *recordingSender) Send(_ context.Context, m Message) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return r.err
}

func (r *recordingSender) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

func filledTag(id, newDocent, seasoned int64) domain.TagRequest {
	return domain.TagRequest{
		ID: id, Date: domain.NewDate(2026, 10, 20), TimeSlot: domain.SlotAM,
		Status: domain.StatusFilled, NewDocentID: newDocent, SeasonedDocentID: &seasoned,
	}
}

var docents = fakeDirectory{
	1: {ID: 1, Email: "nina@zoo.org", FirstName: "Nina"},
	2: {ID: 2, Email: "sam@zoo.org", FirstName: "Sam"},
}

func TestDispatcherSendsFilledEmail(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(docents, s, zap.NewNop(), DispatcherOptions{Workers: 2, QueueSize: 8})
	d.Start()

	d.NotifyFilled(TagFilled{TagRequest: filledTag(5, 1, 2)})
	assert.True(t, d.Enqueue(Message{To: []string{"x@zoo.org"}, Subject: "reset"}))
	d.Close()

	sent := s.messages()
	require.Len(t, sent, 2)
	subjects := []string{sent[0].Subject, sent[1].Subject}
	assert.Contains(t, subjects, "reset")
	for _, m := range sent {
		if m.Subject != "reset" {
			assert.Equal(t, []string{"nina@zoo.org", "sam@zoo.org"}, m.To)
		}
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := &recordingSender{block: make(chan struct{})}
	d := NewDispatcher(docents, s, zap.New(core), DispatcherOptions{Workers: 1, QueueSize: 1})
	d.Start()

	// 第一条被 worker 取走并阻塞，第二条占满队列，之后的全部丢弃
	d.NotifyFilled(TagFilled{TagRequest: filledTag(1, 1, 2)})
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	d.NotifyFilled(TagFilled{TagRequest: filledTag(2, 1, 2)})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.NotifyFilled(TagFilled{TagRequest: filledTag(int64(10+i), 1, 2)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyFilled blocked")
	}

	close(s.block)
	d.Close()
	assert.Len(t, s.messages(), 2)
	assert.Equal(t, 5, logs.FilterMessage("notification dropped").Len())
}

func TestDispatcherLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(docents, s, zap.New(core), DispatcherOptions{})
	d.Start()

	d.NotifyFilled(TagFilled{TagRequest: filledTag(1, 1, 2)})
	d.NotifyFilled(TagFilled{TagRequest: filledTag(2, 1, 99)})
	d.Close()

	assert.Equal(t, 2, logs.FilterMessage("notification failed").Len())
	assert.Len(t, s.messages(), 1)
}

func TestDispatcherAfterClose(t *testing.T) {
	d := NewDispatcher(docents, &recordingSender{}, zap.NewNop(), DispatcherOptions{})
	d.Start()
	d.Close()
	d.Close()
	assert.False(t, d.Enqueue(Message{To: []string{"a@zoo.org"}, Subject: "late"}))
	assert.NotPanics(t, func() { d.NotifyFilled(TagFilled{TagRequest: filledTag(1, 1, 2)}) })
}
