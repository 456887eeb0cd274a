package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"docent-tagalong/internal/domain"
)

// TagFilled 请求被接受后发出的事件
type TagFilled struct {
	TagRequest domain.TagRequest
}

// Notifier 状态机只依赖这一个方法；实现不得阻塞调用方
type Notifier interface {
	NotifyFilled(ev TagFilled)
}

// Mailer 发送任意邮件（如密码重置），同样不阻塞
type Mailer interface {
	Enqueue(m Message) bool
}

type job struct {
	filled *TagFilled
	msg    *Message
}

type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher 有界队列 + 固定 worker；队列满时丢弃并告警
type Dispatcher struct {
	users  domain.UserDirectory
	sender Sender
	log    *zap.Logger
	opt    DispatcherOptions

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(users domain.UserDirectory, sender Sender, l *zap.Logger, opt DispatcherOptions) *Dispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 64
	}
	if opt.SendTimeout <= 0 {
		opt.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		users:  users,
		sender: sender,
		log:    l.Named("notify"),
		opt:    opt,
		queue:  make(chan job, opt.QueueSize),
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.opt.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Close 停止接收新任务并等待队列排空
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) push(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- j:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) NotifyFilled(ev TagFilled) {
	if !d.push(job{filled: &ev}) {
		d.log.Warn("notification dropped",
			zap.Int64("tag_request_id", ev.TagRequest.ID),
			zap.Int("queue_size", d.opt.QueueSize))
	}
}

func (d *Dispatcher) Enqueue(m Message) bool {
	ok := d.push(job{msg: &m})
	if !ok {
		d.log.Warn("email dropped", zap.String("subject", m.Subject))
	}
	return ok
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.opt.SendTimeout)
		err := d.handle(ctx, j)
		cancel()
		if err != nil {
			d.log.Error("notification failed", zap.Error(err))
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, j job) error {
	if j.msg != nil {
		return d.sender.Send(ctx, *j.msg)
	}
	m, err := d.filledMessage(ctx, j.filled.TagRequest)
	if err != nil {
		return err
	}
	if err := d.sender.Send(ctx, m); err != nil {
		return fmt.Errorf("tag request %d: %w", j.filled.TagRequest.ID, err)
	}
	d.log.Info("tag filled notification sent", zap.Int64("tag_request_id", j.filled.TagRequest.ID))
	return nil
}

func (d *Dispatcher) filledMessage(ctx context.Context, tr domain.TagRequest) (Message, error) {
	if tr.SeasonedDocentID == nil {
		return Message{}, fmt.Errorf("tag request %d has no seasoned docent", tr.ID)
	}
	nd, err := d.users.GetUser(ctx, tr.NewDocentID)
	if err != nil {
		return Message{}, fmt.Errorf("load new docent %d: %w", tr.NewDocentID, err)
	}
	sd, err := d.users.GetUser(ctx, *tr.SeasonedDocentID)
	if err != nil {
		return Message{}, fmt.Errorf("load seasoned docent %d: %w", *tr.SeasonedDocentID, err)
	}
	if nd == nil || sd == nil {
		return Message{}, fmt.Errorf("tag request %d: docent no longer exists", tr.ID)
	}
	return TagFilledEmail(tr, *nd, *sd), nil
}

// Nop 用于不需要通知的场景
type Nop struct{}

func (Nop) NotifyFilled(TagFilled) {}
func (Nop) Enqueue(Message) bool   { return true }
