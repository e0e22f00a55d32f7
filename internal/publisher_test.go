package internal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// stubPublisher is a mock watermill publisher for testing.
type stubPublisher struct {
	published    int
	lastTopic    string
	lastPayload  []byte
	lastMetadata message.Metadata
}

func (s *stubPublisher) Publish(topic string, msgs ...*message.Message) error {
	s.published += len(msgs)
	s.lastTopic = topic
	if len(msgs) > 0 {
		s.lastPayload = append([]byte(nil), msgs[0].Payload...)
		s.lastMetadata = msgs[0].Metadata
	}
	return nil
}

func (s *stubPublisher) Close() error {
	return nil
}

func withStubDriver(t *testing.T, name string, stub *stubPublisher, closeFn func() error) {
	t.Helper()
	orig, had := publisherFactories[name]
	t.Cleanup(func() {
		if had {
			publisherFactories[name] = orig
		} else {
			delete(publisherFactories, name)
		}
	})
	RegisterPublisherDriver(name, func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
		return stub, closeFn, nil
	})
}

// TestRegisterPublisherDriver tests that a custom publisher driver can be registered and used.
func TestRegisterPublisherDriver(t *testing.T) {
	stub := &stubPublisher{}
	closed := false
	withStubDriver(t, "custom", stub, func() error { closed = true; return nil })

	pub, err := NewPublisher(WatermillConfig{Driver: "custom"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	event := Event{Provider: "gitlab", Name: "commit.recorded", Organization: "acme", Key: "abc"}
	if err := pub.Publish(context.Background(), "custom.topic", event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if stub.published != 1 || stub.lastTopic != "custom.topic" {
		t.Fatalf("expected publish to custom.topic once, got %d to %q", stub.published, stub.lastTopic)
	}

	var decoded Event
	if err := json.Unmarshal(stub.lastPayload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Key != "abc" || decoded.Organization != "acme" {
		t.Fatalf("unexpected event payload: %+v", decoded)
	}
	if stub.lastMetadata.Get("provider") != "gitlab" || stub.lastMetadata.Get("name") != "commit.recorded" {
		t.Fatalf("expected provider and name metadata, got %v", stub.lastMetadata)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed {
		t.Fatalf("expected custom close to be called")
	}
}

// TestMultipleDrivers tests that the publisher fans out to every configured driver.
func TestMultipleDrivers(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{}
	withStubDriver(t, "multi-a", a, nil)
	withStubDriver(t, "multi-b", b, nil)

	pub, err := NewPublisher(WatermillConfig{Drivers: []string{"multi-a", "multi-b"}})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.Publish(context.Background(), "multi.topic", Event{Provider: "gitlab"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if a.published != 1 || b.published != 1 {
		t.Fatalf("expected publish to both drivers, got a=%d b=%d", a.published, b.published)
	}
}

// TestPublishForDriversSubset tests that an explicit driver list narrows the fan-out.
func TestPublishForDriversSubset(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{}
	withStubDriver(t, "subset-a", a, nil)
	withStubDriver(t, "subset-b", b, nil)

	pub, err := NewPublisher(WatermillConfig{Drivers: []string{"subset-a", "subset-b"}})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.PublishForDrivers(context.Background(), "subset.topic", Event{}, []string{"subset-b"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if a.published != 0 || b.published != 1 {
		t.Fatalf("expected publish to subset-b only, got a=%d b=%d", a.published, b.published)
	}
}

// TestPublishUsesRawPayload ensures a raw payload is forwarded verbatim.
func TestPublishUsesRawPayload(t *testing.T) {
	stub := &stubPublisher{}
	withStubDriver(t, "raw", stub, nil)

	pub, err := NewPublisher(WatermillConfig{Driver: "raw"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	raw := []byte(`{"hello":"world"}`)
	event := Event{
		Provider:   "gitlab",
		Name:       "commit.recorded",
		RequestID:  "req-123",
		RawPayload: raw,
	}
	if err := pub.Publish(context.Background(), "raw.topic", event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if string(stub.lastPayload) != string(raw) {
		t.Fatalf("expected raw payload to be forwarded, got %s", stub.lastPayload)
	}
	if stub.lastMetadata.Get("request_id") != "req-123" {
		t.Fatalf("expected request_id metadata, got %v", stub.lastMetadata)
	}
}

// TestHTTPURLTarget tests that the HTTP target URL is constructed correctly.
func TestHTTPURLTarget(t *testing.T) {
	url, err := httpTargetURL(HTTPConfig{Mode: "base_url", BaseURL: "http://localhost:8080/hooks"}, "topic")
	if err != nil {
		t.Fatalf("httpTargetURL: %v", err)
	}
	if url != "http://localhost:8080/hooks/topic" {
		t.Fatalf("unexpected url: %q", url)
	}
}
