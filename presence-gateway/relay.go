package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	otelhelper "github.com/example/studysync-presence/pkg/otelhelper"
	"github.com/nats-io/nats.go"
)

// connectNATS dials the bus with retry.
func connectNATS(url, user, pass string) (*nats.Conn, error) {
	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= 30; attempt++ {
		nc, err = nats.Connect(url,
			nats.UserInfo(user, pass),
			nats.Name("presence-gateway"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err == nil {
			return nc, nil
		}
		slog.Info("Waiting for NATS", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	return nil, err
}

// attachRelay mirrors resource and global hub egress onto the bus so
// sibling subsystems observe coordination events. A publish failure is
// logged and never fails the originating client operation.
func (g *gateway) attachRelay(nc *nats.Conn) {
	g.hub.publish = func(subject string, data []byte) {
		if err := otelhelper.TracedPublish(context.Background(), nc, subject, data); err != nil {
			slog.Warn("Failed to publish event to bus", "subject", subject, "error", err)
		}
	}
}

// startInternalAPI exposes the companion API for sibling subsystems:
// presence.activity pushes an activity change for a user without an active
// client message, and presence.online answers online-user snapshots over
// request/reply.
func (g *gateway) startInternalAPI(nc *nats.Conn) error {
	if _, err := nc.QueueSubscribe("presence.activity", "presence-gateway", func(msg *nats.Msg) {
		ctx, span := otelhelper.StartConsumerSpan(context.Background(), msg, "presence activity update")
		defer span.End()

		var update activityUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil || update.UserId == "" || !validActivities[update.Activity] {
			slog.WarnContext(ctx, "Invalid activity update", "error", err)
			return
		}
		g.applyActivity(update.UserId, update.Activity, update.ResourceId)
		slog.DebugContext(ctx, "Applied internal activity update", "user", update.UserId, "activity", update.Activity)
	}); err != nil {
		return fmt.Errorf("subscribe presence.activity: %w", err)
	}

	if _, err := nc.QueueSubscribe("presence.online", "presence-gateway", func(msg *nats.Msg) {
		ctx, span := otelhelper.StartServerSpan(context.Background(), msg, "presence online query")
		defer span.End()

		var req onlineUsersRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				msg.Respond([]byte("[]"))
				return
			}
		}
		users := nonNilRecords(g.presence.queryOnline(req.UserIds))
		data, err := json.Marshal(users)
		if err != nil {
			span.RecordError(err)
			msg.Respond([]byte("[]"))
			return
		}
		msg.Respond(data)
		slog.DebugContext(ctx, "Served online query", "users", len(users))
	}); err != nil {
		return fmt.Errorf("subscribe presence.online: %w", err)
	}

	return nil
}
