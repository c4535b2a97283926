package hub

import (
	"encoding/json"
	"testing"
)

func recvEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case data := <-client.Send:
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return event
	default:
		t.Fatal("no event delivered")
		return Event{}
	}
}

func TestPublishReachesSubscribersOnly(t *testing.T) {
	h := New()
	staff := NewClient("c-staff", 4)
	display := NewClient("c-display", 4)
	h.Register(staff)
	h.Register(display)
	h.Subscribe(staff, TopicStaff)
	h.Subscribe(display, TopicPublicDisplay)

	h.Publish(TopicStaff, "new_ticket", map[string]int{"ticket_number": 1})

	event := recvEvent(t, staff)
	if event.Type != "new_ticket" {
		t.Fatalf("event type = %q, want new_ticket", event.Type)
	}
	select {
	case data := <-display.Send:
		t.Fatalf("display received %s without subscribing to staff", data)
	default:
	}
}

func TestPublishSkipsLateSubscribers(t *testing.T) {
	h := New()
	client := NewClient("c-1", 4)
	h.Register(client)

	h.Publish(TopicPublicDisplay, "ticket_update", nil)
	h.Subscribe(client, TopicPublicDisplay)

	select {
	case <-client.Send:
		t.Fatal("client received an event published before it subscribed")
	default:
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	h := New()
	client := NewClient("c-1", 1)
	h.Register(client)
	h.Subscribe(client, TopicStaff)

	h.Publish(TopicStaff, "new_ticket", map[string]int{"ticket_number": 1})
	h.Publish(TopicStaff, "new_ticket", map[string]int{"ticket_number": 2})

	if got := len(client.Send); got != 1 {
		t.Fatalf("buffered %d events, want 1", got)
	}
	event := recvEvent(t, client)
	var payload map[string]int
	raw, _ := json.Marshal(event.Payload)
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["ticket_number"] != 1 {
		t.Fatalf("kept ticket %d, want the first one", payload["ticket_number"])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New()
	client := NewClient("c-1", 4)
	h.Register(client)
	h.Subscribe(client, UserTopic("u-1"))
	h.Unsubscribe(client, UserTopic("u-1"))

	h.Publish(UserTopic("u-1"), "ticket_called", nil)

	select {
	case <-client.Send:
		t.Fatal("client received an event after unsubscribing")
	default:
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := New()
	client := NewClient("c-1", 4)
	h.Register(client)
	h.Unregister(client)

	if _, ok := <-client.Send; ok {
		t.Fatal("Send still open after Unregister")
	}

	// Publishing after unregister must not reach the gone client.
	h.Publish(TopicStaff, "new_ticket", nil)
}

func TestParseSubscribe(t *testing.T) {
	cases := []struct {
		name  string
		input string
		ok    bool
		topic string
	}{
		{"subscribe", `{"action":"subscribe","topic":"staff"}`, true, "staff"},
		{"unsubscribe", `{"action":"unsubscribe","topic":"public-display"}`, true, "public-display"},
		{"unknown action", `{"action":"join","topic":"staff"}`, false, ""},
		{"missing topic", `{"action":"subscribe"}`, false, ""},
		{"not json", `subscribe staff`, false, ""},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ParseSubscribe([]byte(tt.input))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && msg.Topic != tt.topic {
				t.Fatalf("topic = %q, want %q", msg.Topic, tt.topic)
			}
		})
	}
}
