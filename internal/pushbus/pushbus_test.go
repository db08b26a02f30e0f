package pushbus

import "testing"

func TestSubscribePublishDeliversEvent(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	b.Publish(Event{Topic: TopicKline, Key: "AAA:1m", Payload: 42})

	select {
	case ev := <-sub.Events():
		if ev.Key != "AAA:1m" {
			t.Fatalf("Key = %q, want AAA:1m", ev.Key)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestUnsubscribeClosesDone(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	select {
	case <-sub.Done():
	default:
		t.Fatal("expected Done to be closed after Unsubscribe")
	}
}

func TestOverflowDropsSubscriber(t *testing.T) {
	b := New(1)
	var dropped *LaggingSubscriberError
	b.OnLaggingSubscriber = func(e *LaggingSubscriberError) { dropped = e }

	sub := b.Subscribe()
	b.Publish(Event{Topic: TopicTrade, Key: "x"})
	b.Publish(Event{Topic: TopicTrade, Key: "y"}) // backlog of 1 full, should drop

	if dropped == nil {
		t.Fatal("expected OnLaggingSubscriber to fire")
	}
	if dropped.SubscriberId != sub.Id {
		t.Fatalf("dropped id = %d, want %d", dropped.SubscriberId, sub.Id)
	}
	if b.Count() != 0 {
		t.Fatalf("Count after drop = %d, want 0", b.Count())
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish(Event{Topic: TopicProgress, Key: "req-1"})

	for _, s := range []*Subscriber{s1, s2} {
		select {
		case <-s.Events():
		default:
			t.Fatalf("subscriber %d did not receive event", s.Id)
		}
	}
}
