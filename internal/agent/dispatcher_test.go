package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tabletop-agent/internal/llm"
	"tabletop-agent/internal/models"
)

type recordingHandler struct {
	events []Event
	err    error
	panic  any
}

func (h *recordingHandler) Handle(ctx context.Context, ev Event) error {
	h.events = append(h.events, ev)
	if h.panic != nil {
		panic(h.panic)
	}
	return h.err
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	transport  *mockTransport
	cache      *llm.EngineCache
	gm         *recordingHandler
	assistant  *recordingHandler
	roles      RoleStore
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	database := setupTestDB(t)
	engine := &mockEngine{}
	cache, _ := countingCache(engine)
	transport := newMockTransport()
	gm := &recordingHandler{}
	assistant := &recordingHandler{}

	handlers := map[models.ChannelRole]Handler{
		models.ChannelRoleGM:        gm,
		models.ChannelRoleAssistant: assistant,
	}
	return &dispatcherFixture{
		dispatcher: NewDispatcher(database, cache, transport, handlers, testAgentID, nil),
		transport:  transport,
		cache:      cache,
		gm:         gm,
		assistant:  assistant,
		roles:      database,
	}
}

func event(content string) Event {
	return Event{ID: "ev-1", RoomID: testRoomID, AuthorID: "u1", Content: content, CanSend: true}
}

func TestDispatcher_InertRoomDoesNothing(t *testing.T) {
	f := newDispatcherFixture(t)

	require.NoError(t, f.dispatcher.Handle(context.Background(), event("hello")))
	assert.Empty(t, f.gm.events)
	assert.Empty(t, f.assistant.events)
	assert.Empty(t, f.transport.sent())
}

func TestDispatcher_SetRole(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.Handle(ctx, event("<@agent-1> setrole: GM")))

	assert.Equal(t, []string{"Role set to gm"}, f.transport.texts())
	role, err := f.roles.GetRoomRole(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelRoleGM, role)
	assert.Empty(t, f.gm.events)

	require.NoError(t, f.dispatcher.Handle(ctx, event("I look around")))
	require.Len(t, f.gm.events, 1)
	assert.Equal(t, "I look around", f.gm.events[0].Content)
}

func TestDispatcher_SetRoleEvictsEngine(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	handle, err := f.cache.Acquire(ctx, testRoomID, llm.EngineOptions{Rulebooks: true})
	require.NoError(t, err)
	handle.Release()
	require.Equal(t, 1, f.cache.Len())

	require.NoError(t, f.dispatcher.Handle(ctx, event("<@agent-1> setrole:assistant")))
	assert.Zero(t, f.cache.Len())
}

func TestDispatcher_SetRoleWhileEngineLeased(t *testing.T) {
	database := setupTestDB(t)
	var rulebooks []bool
	cache := newOptionsRecordingCache(&mockEngine{}, &rulebooks)
	d := NewDispatcher(database, cache, newMockTransport(), nil, testAgentID, nil)
	ctx := context.Background()

	leased, err := cache.Acquire(ctx, testRoomID, llm.EngineOptions{})
	require.NoError(t, err)
	require.NoError(t, d.SetRole(ctx, testRoomID, models.ChannelRoleGM))
	leased.Release()

	h, err := cache.Acquire(ctx, testRoomID, llm.EngineOptions{Rulebooks: true})
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, []bool{false, true}, rulebooks)
}

func TestDispatcher_RoutesByRole(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, f.roles.SetRoomRole(ctx, testRoomID, models.ChannelRoleAssistant))

	require.NoError(t, f.dispatcher.Handle(ctx, event("<@agent-1> hi")))
	assert.Len(t, f.assistant.events, 1)
	assert.Empty(t, f.gm.events)
}

func TestDispatcher_UnknownRoleIsIgnored(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, f.dispatcher.Handle(ctx, event("<@agent-1> setrole:bard")))

	require.NoError(t, f.dispatcher.Handle(ctx, event("play a song")))
	assert.Empty(t, f.gm.events)
	assert.Empty(t, f.assistant.events)
	assert.Equal(t, []string{"Role set to bard"}, f.transport.texts())
}

func TestDispatcher_IgnoresBots(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, f.roles.SetRoomRole(ctx, testRoomID, models.ChannelRoleGM))

	ev := event("<@agent-1> setrole:assistant")
	ev.FromBot = true
	require.NoError(t, f.dispatcher.Handle(ctx, ev))

	role, err := f.roles.GetRoomRole(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelRoleGM, role)
	assert.Empty(t, f.gm.events)
}

func TestDispatcher_HandlerErrorSendsFailureMessage(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, f.roles.SetRoomRole(ctx, testRoomID, models.ChannelRoleGM))
	f.gm.err = errors.New("database is locked")

	err := f.dispatcher.Handle(ctx, event("I attack"))
	assert.Error(t, err)
	assert.Equal(t, []string{FailureMessage}, f.transport.texts())
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, f.roles.SetRoomRole(ctx, testRoomID, models.ChannelRoleGM))
	f.gm.panic = "nil map"

	var err error
	assert.NotPanics(t, func() {
		err = f.dispatcher.Handle(ctx, event("I attack"))
	})
	assert.Error(t, err)
	assert.Equal(t, []string{FailureMessage}, f.transport.texts())
}

func TestDispatcher_NoFailureMessageWithoutPermission(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, f.roles.SetRoomRole(ctx, testRoomID, models.ChannelRoleGM))
	f.gm.err = errors.New("boom")

	ev := event("I attack")
	ev.CanSend = false
	assert.Error(t, f.dispatcher.Handle(ctx, ev))
	assert.Empty(t, f.transport.sent())
}

func TestDispatcher_SendFailureIsNotFatal(t *testing.T) {
	database := setupTestDB(t)
	cache, _ := countingCache(&mockEngine{})
	transport := &mockTransport{}
	transport.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("offline"))

	d := NewDispatcher(database, cache, transport, nil, testAgentID, nil)
	require.NoError(t, d.Handle(context.Background(), event("<@agent-1> setrole:gm")))

	role, err := database.GetRoomRole(context.Background(), testRoomID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelRoleGM, role)
}
