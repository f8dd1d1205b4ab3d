package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tabletop-agent/internal/llm"
	"tabletop-agent/internal/logic"
	"tabletop-agent/internal/models"
)

// Assistant answers mentions in rooms with the assistant role, handing
// specialized questions to a persona
type Assistant struct {
	store      Store
	engines    EngineSource
	transport  Transport
	images     ImageRenderer
	agentID    string
	chunkLimit int
	logger     *zap.Logger
}

// NewAssistant creates the assistant handler. images may be nil.
func NewAssistant(store Store, engines EngineSource, transport Transport, images ImageRenderer, agentID string, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		store:      store,
		engines:    engines,
		transport:  transport,
		images:     images,
		agentID:    agentID,
		chunkLimit: logic.MaxMessageLength,
		logger:     logger.Named("agent.assistant"),
	}
}

// Handle answers one message that mentions the agent
func (a *Assistant) Handle(ctx context.Context, ev Event) error {
	if !logic.MentionsAgent(ev.Content, a.agentID) {
		return nil
	}
	logger := a.logger.With(zap.String("room_id", ev.RoomID), zap.String("event_id", ev.ID))

	query := logic.StripAgentMention(ev.Content, a.agentID)
	turns, err := a.store.ListTurns(ctx, ev.RoomID)
	if err != nil {
		return fmt.Errorf("failed to list turns: %w", err)
	}

	if !ev.CanSend {
		logger.Info("No permission to send, skipping reply")
		return a.storeQuery(ctx, ev, query)
	}

	engine, err := a.engines.Acquire(ctx, ev.RoomID, llm.EngineOptions{})
	if err != nil {
		if storeErr := a.storeQuery(ctx, ev, query); storeErr != nil {
			return storeErr
		}
		return fmt.Errorf("failed to acquire engine: %w", err)
	}
	defer engine.Release()

	classification, err := engine.Query(ctx, logic.BuildClassifyPrompt(turns, ev.AuthorID, query))
	if err != nil {
		if storeErr := a.storeQuery(ctx, ev, query); storeErr != nil {
			return storeErr
		}
		return fmt.Errorf("classify query failed: %w", err)
	}

	// A suppressed message leaves no trace in history
	route := logic.RouteResponse(strings.TrimSpace(classification))
	if route.Kind == logic.RouteSuppress {
		logger.Info("No response needed")
		return nil
	}
	if err := a.storeQuery(ctx, ev, query); err != nil {
		return err
	}

	var answer string
	var image []byte

	switch route.Kind {
	case logic.RouteDirect:
		answer = route.Text
	case logic.RouteElaborate:
		logger.Info("Using specialist", zap.String("specialist", string(route.Specialist)))
		answer, err = engine.Query(ctx, logic.SpecialistPrompt(route.Specialist, ev.AuthorID, query))
		if err != nil {
			return fmt.Errorf("specialist query failed: %w", err)
		}
		answer = strings.TrimSpace(answer)

		if route.Specialist == logic.SpecialistImageGeneration && a.images != nil {
			result, err := a.images.Generate(ctx, answer, typingHeartbeat(ctx, a.transport, ev.RoomID, logger))
			if err != nil {
				return fmt.Errorf("image generation failed: %w", err)
			}
			image = result.Data
		}
	}

	if image != nil {
		if err := sendImage(ctx, a.transport, ev.RoomID, image); err != nil {
			logger.Warn("Image delivery failed", zap.Error(err))
			return nil
		}
	} else {
		if answer == "" {
			return fmt.Errorf("empty answer: %w", llm.ErrEmptyResponse)
		}
		if err := sendText(ctx, a.transport, ev.RoomID, answer, a.chunkLimit); err != nil {
			logger.Warn("Reply delivery failed", zap.Error(err))
			return nil
		}
	}

	if _, err := a.store.AppendTurn(ctx, ev.RoomID, a.agentID, models.TurnRoleAssistant, answer); err != nil {
		return fmt.Errorf("failed to store reply: %w", err)
	}
	logger.Info("Reply posted", zap.Int("length", len(answer)), zap.Bool("image", image != nil))
	return nil
}

func (a *Assistant) storeQuery(ctx context.Context, ev Event, query string) error {
	if _, err := a.store.AppendTurn(ctx, ev.RoomID, ev.AuthorID, models.TurnRoleUser, query); err != nil {
		return fmt.Errorf("failed to store user turn: %w", err)
	}
	return nil
}
