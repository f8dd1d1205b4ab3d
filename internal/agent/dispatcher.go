package agent

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"tabletop-agent/internal/logic"
	"tabletop-agent/internal/models"
)

// Dispatcher is the entry point for every inbound event. It handles the
// setrole command, routes by room role and turns any failure into the fixed
// failure message.
type Dispatcher struct {
	roles     RoleStore
	engines   EngineSource
	transport Transport
	handlers  map[models.ChannelRole]Handler
	agentID   string
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher routing to handlers by room role
func NewDispatcher(roles RoleStore, engines EngineSource, transport Transport, handlers map[models.ChannelRole]Handler, agentID string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		roles:     roles,
		engines:   engines,
		transport: transport,
		handlers:  handlers,
		agentID:   agentID,
		logger:    logger.Named("agent"),
	}
}

// Handle processes one event. It never panics; errors are logged, reported to
// the room and returned.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (err error) {
	logger := d.logger.With(zap.String("room_id", ev.RoomID), zap.String("event_id", ev.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Handle panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
			d.reportFailure(ctx, ev, logger)
		}
	}()

	if ev.FromBot {
		return nil
	}

	if role, ok := logic.ParseSetRole(ev.Content, d.agentID); ok {
		return d.setRole(ctx, ev, models.ChannelRole(role), logger)
	}

	role, err := d.roles.GetRoomRole(ctx, ev.RoomID)
	if err != nil {
		logger.Error("Handle failed", zap.Error(err))
		d.reportFailure(ctx, ev, logger)
		return fmt.Errorf("failed to read room role: %w", err)
	}
	if role == "" {
		return nil
	}

	handler, ok := d.handlers[role]
	if !ok {
		logger.Info("No handler for role", zap.String("role", string(role)))
		return nil
	}

	if err := handler.Handle(ctx, ev); err != nil {
		logger.Error("Handle failed", zap.String("role", string(role)), zap.Error(err))
		d.reportFailure(ctx, ev, logger)
		return err
	}
	return nil
}

// SetRole assigns a role to a room outside the chat command path
func (d *Dispatcher) SetRole(ctx context.Context, roomID string, role models.ChannelRole) error {
	if err := d.roles.SetRoomRole(ctx, roomID, role); err != nil {
		return fmt.Errorf("failed to set room role: %w", err)
	}
	evicted := d.engines.Evict(roomID)
	d.logger.Info("Role set", zap.String("room_id", roomID), zap.String("role", string(role)), zap.Bool("engine_evicted", evicted))
	return nil
}

func (d *Dispatcher) setRole(ctx context.Context, ev Event, role models.ChannelRole, logger *zap.Logger) error {
	if err := d.SetRole(ctx, ev.RoomID, role); err != nil {
		logger.Error("Handle failed", zap.Error(err))
		d.reportFailure(ctx, ev, logger)
		return err
	}
	if !ev.CanSend {
		return nil
	}
	if err := d.transport.Send(ctx, ev.RoomID, Outbound{Text: "Role set to " + string(role)}); err != nil {
		logger.Warn("Role confirmation delivery failed", zap.Error(err))
	}
	return nil
}

func (d *Dispatcher) reportFailure(ctx context.Context, ev Event, logger *zap.Logger) {
	if !ev.CanSend {
		return
	}
	if err := d.transport.Send(context.WithoutCancel(ctx), ev.RoomID, Outbound{Text: FailureMessage}); err != nil {
		logger.Warn("Failure message delivery failed", zap.Error(err))
	}
}
