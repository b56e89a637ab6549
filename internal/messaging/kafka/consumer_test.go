package kafka

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeGroup реализует sarama.ConsumerGroup и вызывает consume на каждый Consume.
type fakeGroup struct {
	consume  func(ctx context.Context, handler sarama.ConsumerGroupHandler) error
	errs     chan error
	closeErr error
	once     sync.Once
}

func newFakeGroup() *fakeGroup { return &fakeGroup{errs: make(chan error, 1)} }

func (g *fakeGroup) Consume(ctx context.Context, _ []string, handler sarama.ConsumerGroupHandler) error {
	if g.consume != nil {
		return g.consume(ctx, handler)
	}
	<-ctx.Done()
	return nil
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.once.Do(func() { close(g.errs) })
	return g.closeErr
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "notifier-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) markedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func claimOf(msgs ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func (c *fakeClaim) Topic() string                            { return TopicOrderEvents }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func orderEvent(offset int64, retries int) *sarama.ConsumerMessage {
	msg := &sarama.ConsumerMessage{
		Topic:  TopicOrderEvents,
		Offset: offset,
		Key:    []byte("order-1"),
		Value:  []byte(`{"event_type":"payment.verified"}`),
	}
	if retries > 0 {
		msg.Headers = []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(retries))}}
	}
	return msg
}

func testConsumer(handler MessageHandler, opts ...ConsumerOption) *Consumer {
	opts = append([]ConsumerOption{WithConsumerLogger(log.WithField("test", "consumer")), WithRetries(3, 0)}, opts...)
	return newConsumer(newFakeGroup(), []string{TopicOrderEvents}, handler, opts...)
}

func TestNewConsumer_UnreachableBroker(t *testing.T) {
	_, err := NewConsumer([]string{"127.0.0.1:1"}, "notifier", []string{TopicOrderEvents},
		func(context.Context, *sarama.ConsumerMessage) error { return nil })
	require.Error(t, err)
}

func TestNewConsumer_Options(t *testing.T) {
	dlq := NewProducerFromSync(mocks.NewSyncProducer(t, nil), nil)
	c := newConsumer(newFakeGroup(), nil, nil,
		WithDeadLetterQueue(dlq, "notifier.dlq"),
		WithRetries(5, time.Millisecond),
	)
	require.Same(t, dlq, c.dlqProducer)
	require.Equal(t, "notifier.dlq", c.dlqTopic)
	require.Equal(t, 5, c.maxRetries)
	require.Equal(t, time.Millisecond, c.retryDelay)

	defaults := newConsumer(newFakeGroup(), nil, nil, WithRetries(0, -1), WithDeadLetterQueue(nil, ""))
	require.Equal(t, defaultMaxRetries, defaults.maxRetries)
	require.Equal(t, defaultRetryDelay, defaults.retryDelay)
	require.Equal(t, TopicDeadLetterQueue, defaults.dlqTopic)
}

func TestConsumer_StartRejoinsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var rounds atomic.Int32
	group := newFakeGroup()
	group.consume = func(context.Context, sarama.ConsumerGroupHandler) error {
		if rounds.Add(1) == 3 {
			cancel()
		}
		return errors.New("rebalance in progress")
	}
	group.errs <- errors.New("background error")

	c := newConsumer(group, []string{TopicOrderEvents}, nil, WithConsumerLogger(log.WithField("test", "start")))
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return rounds.Load() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, c.Stop())
}

func TestConsumer_StopReportsCloseError(t *testing.T) {
	group := newFakeGroup()
	group.closeErr = errors.New("close failed")
	c := newConsumer(group, nil, nil)
	require.ErrorContains(t, c.Stop(), "close failed")
}

func TestConsumeClaim_MarksOnlyHandledMessages(t *testing.T) {
	c := testConsumer(func(_ context.Context, msg *sarama.ConsumerMessage) error {
		if msg.Offset == 2 {
			return errors.New("unknown event")
		}
		return nil
	}, WithRetries(1, 0))

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, c.Setup(session))
	require.NoError(t, c.ConsumeClaim(session, claimOf(orderEvent(1, 0), orderEvent(2, 0), orderEvent(3, 0))))
	require.NoError(t, c.Cleanup(session))

	require.Equal(t, []int64{1, 3}, session.markedOffsets())
}

func TestConsumeClaim_DeadLetteredMessageIsMarked(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return errors.New("smtp down") },
		WithDeadLetterQueue(NewProducerFromSync(producer, nil), ""))

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, c.ConsumeClaim(session, claimOf(orderEvent(7, 0))))
	require.Equal(t, []int64{7}, session.markedOffsets())
	require.NoError(t, producer.Close())
}

func TestConsumeClaim_ReturnsOnSessionDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return nil })

	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeClaim(&fakeSession{ctx: ctx}, &fakeClaim{messages: make(chan *sarama.ConsumerMessage)})
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not return after session end")
	}
}

func TestHandleMessageWithRetry(t *testing.T) {
	permanent := errors.New("permanent")

	tests := []struct {
		name         string
		priorRetries int
		failures     int // сколько первых вызовов handler завершится ошибкой
		dlq          func(*mocks.SyncProducer)
		wantCalls    int
		wantErr      bool
	}{
		{name: "first attempt succeeds", failures: 0, wantCalls: 1},
		{name: "succeeds on last attempt", failures: 2, wantCalls: 3},
		{name: "prior retries shrink budget", priorRetries: 1, failures: 5, wantCalls: 2, wantErr: true},
		{name: "exhausted budget still tries once", priorRetries: 3, failures: 5, wantCalls: 1, wantErr: true},
		{
			name:      "dlq accepts failed message",
			failures:  5,
			dlq:       func(p *mocks.SyncProducer) { p.ExpectSendMessageAndSucceed() },
			wantCalls: 3,
		},
		{
			name:      "dlq failure is returned",
			failures:  5,
			dlq:       func(p *mocks.SyncProducer) { p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers) },
			wantCalls: 3,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			handler := func(context.Context, *sarama.ConsumerMessage) error {
				calls++
				if calls <= tt.failures {
					return permanent
				}
				return nil
			}

			var opts []ConsumerOption
			var producer *mocks.SyncProducer
			if tt.dlq != nil {
				producer = mocks.NewSyncProducer(t, nil)
				tt.dlq(producer)
				opts = append(opts, WithDeadLetterQueue(NewProducerFromSync(producer, nil), ""))
			}

			err := testConsumer(handler, opts...).handleMessageWithRetry(context.Background(), orderEvent(1, tt.priorRetries))
			require.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if producer != nil {
				require.NoError(t, producer.Close())
			}
		})
	}
}

func TestGetRetryCount(t *testing.T) {
	c := &Consumer{}
	header := func(v string) []*sarama.RecordHeader {
		return []*sarama.RecordHeader{nil, {Key: []byte("other"), Value: []byte("9")}, {Key: []byte(HeaderRetryCount), Value: []byte(v)}}
	}

	require.Equal(t, 4, c.getRetryCount(&sarama.ConsumerMessage{Headers: header("4")}))
	require.Zero(t, c.getRetryCount(&sarama.ConsumerMessage{Headers: header("many")}))
	require.Zero(t, c.getRetryCount(&sarama.ConsumerMessage{}))
}

func TestSendToDLQ_PreservesOrigin(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "notifier.dlq" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		dl, err := ParseDeadLetter(&sarama.ConsumerMessage{Value: value})
		if err != nil {
			return err
		}
		if dl.OriginalTopic != TopicOrderEvents || dl.OriginalOffset != 42 || dl.OriginalKey != "order-1" || dl.RetryCount != 3 {
			return errors.New("dead letter lost the original coordinates")
		}
		return nil
	})

	c := testConsumer(nil, WithDeadLetterQueue(NewProducerFromSync(producer, nil), "notifier.dlq"))
	require.NoError(t, c.sendToDLQ(context.Background(), orderEvent(42, 0), errors.New("smtp down"), 3))
	require.NoError(t, producer.Close())
}
