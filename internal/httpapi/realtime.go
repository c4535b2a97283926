package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/lg12346/FilaVirtual/internal/hub"
	"github.com/lg12346/FilaVirtual/internal/models"
	"github.com/lg12346/FilaVirtual/internal/store"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

// RealtimeHandler serves the push channel. Clients subscribe to topics over
// the sockjs session; the public-display topic is open to anyone, while the
// user and staff topics are checked against the session token presented at
// connect time.
func RealtimeHandler(prefix string, h *hub.Hub, accounts store.AccountStore) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		var user models.User
		var authenticated bool
		if sessionID := sessionIDFromRequest(session.Request()); sessionID != "" {
			_, u, err := accounts.GetSession(context.Background(), sessionID)
			if err == nil {
				user = u
				authenticated = true
			}
		}

		client := hub.NewClient(uuid.NewString(), 16)
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.Unsubscribe(client, parsed.Topic)
				continue
			}
			if !topicAllowed(parsed.Topic, user, authenticated) {
				_ = session.Close(4003, "topic access denied")
				return
			}
			h.Subscribe(client, parsed.Topic)
		}
	})
}

func topicAllowed(topic string, user models.User, authenticated bool) bool {
	switch {
	case topic == hub.TopicPublicDisplay:
		return true
	case topic == hub.TopicStaff:
		return authenticated && user.Role == models.RoleAdmin
	case strings.HasPrefix(topic, "user:"):
		return authenticated && topic == hub.UserTopic(user.UserID)
	default:
		return false
	}
}
