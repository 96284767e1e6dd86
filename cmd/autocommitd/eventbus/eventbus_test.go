package eventbus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Kind: KindCommitCreated, RepoRoot: "/r", Hash: "abc"})

	select {
	case e := <-ch:
		if e.Kind != KindCommitCreated || e.Hash != "abc" {
			t.Errorf("got %+v", e)
		}
	default:
		t.Fatal("expected buffered event to be immediately available")
	}
}

func TestPublish_NoSubscribersDoesNotPanic(t *testing.T) {
	b := New()
	b.Publish(Event{Kind: KindRepoDegraded, RepoRoot: "/r"})
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestPublish_FullChannelDoesNotBlock(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Kind: KindCommitCreated})
	b.Publish(Event{Kind: KindCommitCreated}) // channel already full, must not block

	if len(ch) != 1 {
		t.Errorf("expected exactly one buffered event, got %d", len(ch))
	}
}
