package discord

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnMessageCreate_PrivateMessage(t *testing.T) {
	f := newFixture(t)
	f.cache.addUser("42", "alice", "1234")

	f.backend.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "dm-42",
		Content:   "hi",
		Author:    &discordgo.User{ID: "42"},
	}})

	require.Len(t, f.host.messages, 1)
	msg := f.host.messages[0]
	assert.Equal(t, "hi", msg.Body)
	assert.True(t, msg.From.Equal(NewPerson(f.client, "42")))
	assert.IsType(t, &Person{}, msg.From)
	assert.True(t, msg.To.Equal(f.backend.Identity()))
	assert.True(t, msg.IsDirect())
	assert.Empty(t, f.host.mentions)
}

func TestOnMessageCreate_GuildMessageWithMentions(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")

	f.backend.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m2",
		ChannelID: "c1",
		GuildID:   testGuildID,
		Content:   "hey <@43> <@44>",
		Author:    &discordgo.User{ID: "42"},
		Mentions:  []*discordgo.User{{ID: "43"}, {ID: "44"}},
	}})

	require.Len(t, f.host.messages, 1)
	msg := f.host.messages[0]
	assert.True(t, msg.IsGroup())
	assert.Equal(t, "c1", msg.To.ID())

	from, ok := msg.From.(*RoomOccupant)
	require.True(t, ok)
	assert.Equal(t, "42", from.ID())
	assert.Equal(t, "c1", from.Room().ID())

	require.Len(t, f.host.mentions, 1)
	require.Len(t, f.host.mentions[0], 2)
	assert.Equal(t, "43", f.host.mentions[0][0].ID())
	assert.Equal(t, "c1", f.host.mentions[0][1].Room().ID())
}

func TestOnPresenceUpdate_Mapping(t *testing.T) {
	tests := []struct {
		vendor discordgo.Status
		want   bot.Status
	}{
		{discordgo.StatusOnline, bot.Online},
		{discordgo.StatusIdle, bot.Away},
		{discordgo.StatusDoNotDisturb, bot.DND},
		{discordgo.StatusInvisible, bot.Offline},
		{discordgo.StatusOffline, bot.Offline},
	}

	for _, tt := range tests {
		t.Run(string(tt.vendor), func(t *testing.T) {
			assert.Equal(t, tt.want, mapStatus(tt.vendor))
		})
	}
}

func presenceUpdate(userID string, status discordgo.Status) *discordgo.PresenceUpdate {
	return &discordgo.PresenceUpdate{
		GuildID: testGuildID,
		Presence: discordgo.Presence{
			User:   &discordgo.User{ID: userID},
			Status: status,
		},
	}
}

func TestOnPresenceUpdate_EmitsOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	f.backend.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID: testGuildID,
		Presences: []*discordgo.Presence{
			{User: &discordgo.User{ID: "42"}, Status: discordgo.StatusOnline},
		},
	}})

	f.backend.onPresenceUpdate(nil, presenceUpdate("42", discordgo.StatusOnline))
	assert.Empty(t, f.host.presences, "equal statuses are a no-op")

	f.backend.onPresenceUpdate(nil, presenceUpdate("42", discordgo.StatusIdle))
	require.Len(t, f.host.presences, 1)
	assert.Equal(t, bot.Away, f.host.presences[0].Status)
	assert.Equal(t, "42", f.host.presences[0].Identifier.ID())

	f.backend.onPresenceUpdate(nil, presenceUpdate("42", discordgo.StatusIdle))
	assert.Len(t, f.host.presences, 1)

	f.backend.onPresenceUpdate(nil, presenceUpdate("42", discordgo.StatusDoNotDisturb))
	require.Len(t, f.host.presences, 2)
	assert.Equal(t, bot.DND, f.host.presences[1].Status)
}

func TestOnPresenceUpdate_UnseenUserComingOnline(t *testing.T) {
	f := newFixture(t)

	update := presenceUpdate("50", discordgo.StatusOnline)
	update.Activities = []*discordgo.Activity{{Name: "chess", Type: discordgo.ActivityTypeGame}}
	f.backend.onPresenceUpdate(nil, update)

	require.Len(t, f.host.presences, 1)
	assert.Equal(t, bot.Online, f.host.presences[0].Status)
	assert.Equal(t, "chess", f.host.presences[0].Message)

	f.backend.onPresenceUpdate(nil, presenceUpdate("51", discordgo.StatusOffline))
	assert.Len(t, f.host.presences, 1)
}

func TestSendMessage_ChunksInOrder(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")

	msg := bot.NewMessage(strings.Repeat("a", 4000) + strings.Repeat("b", 1000))
	msg.To = RoomByID(f.client, "c1")
	require.NoError(t, f.backend.SendMessage(msg))
	f.flush(t)

	calls := f.session.Calls()
	require.Len(t, calls, 6)
	methods := make([]string, len(calls))
	for i, c := range calls {
		methods[i] = c.Method
	}
	assert.Equal(t, []string{"typing", "send", "typing", "send", "typing", "send"}, methods)

	sends := f.session.callsTo("send")
	require.Len(t, sends, 3)
	assert.Len(t, sends[0].Content, 2000)
	assert.Len(t, sends[1].Content, 2000)
	assert.Len(t, sends[2].Content, 1000)
	assert.Equal(t, strings.Repeat("b", 1000), sends[2].Content)
	for _, s := range sends {
		assert.Equal(t, "c1", s.ChannelID)
	}
}

func TestSendMessage_SlowSessionDeliversEveryChunk(t *testing.T) {
	f := newFixture(t)
	f.session.sendDelay = time.Millisecond
	f.textChannel("c1", "general")

	// more chunks than the task queue holds
	var body strings.Builder
	for i := 0; i < 200; i++ {
		body.WriteString(strings.Repeat(string(rune('a'+i%26)), 2000))
	}

	msg := bot.NewMessage(body.String())
	msg.To = RoomByID(f.client, "c1")
	require.NoError(t, f.backend.SendMessage(msg))
	f.flush(t)

	sends := f.session.callsTo("send")
	require.Len(t, sends, 200)
	var got strings.Builder
	for _, s := range sends {
		got.WriteString(s.Content)
	}
	assert.Equal(t, body.String(), got.String())
}

func TestSendMessage_EmptyBodySendsNothing(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")

	msg := bot.NewMessage("")
	msg.To = RoomByID(f.client, "c1")
	require.NoError(t, f.backend.SendMessage(msg))
	f.flush(t)

	assert.Empty(t, f.session.Calls())
}

func TestSendMessage_ToOccupantIsDirect(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")
	f.cache.addUser("42", "alice", "1234")

	msg := bot.NewMessage("psst")
	msg.To = NewRoomOccupant(f.client, "42", "c1")
	require.NoError(t, f.backend.SendMessage(msg))
	f.flush(t)

	sends := f.session.callsTo("send")
	require.Len(t, sends, 1)
	assert.Equal(t, "dm-42", sends[0].ChannelID)
}

func TestSendMessage_Errors(t *testing.T) {
	f := newFixture(t)
	f.categoryChannel("k1", "archive")

	cat, err := NewCategory(f.client, RoomOptions{ChannelID: "k1"})
	require.NoError(t, err)

	msg := bot.NewMessage("hi")
	msg.To = cat
	assert.ErrorIs(t, f.backend.SendMessage(msg), ErrNotSupported)

	msg.To = nil
	assert.ErrorIs(t, f.backend.SendMessage(msg), ErrNotSupported)

	disconnected := NewBackend(Options{Token: "t"}, &fakeHost{})
	msg.To = NewPerson(f.client, "42")
	assert.ErrorIs(t, disconnected.SendMessage(msg), ErrNotConnected)
}

func TestSendCard(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")

	card := &bot.Card{
		To:        NewRoomOccupant(f.client, "42", "c1"),
		Title:     "Build",
		Body:      "passed",
		Link:      "https://ci.example.com/1",
		Color:     "green",
		Image:     "https://ci.example.com/badge.png",
		Thumbnail: "https://ci.example.com/thumb.png",
		Fields:    []bot.CardField{{Key: "branch", Value: "main"}, {Key: "took", Value: "3m"}},
	}
	require.NoError(t, f.backend.SendCard(card))
	f.flush(t)

	embeds := f.session.callsTo("embed")
	require.Len(t, embeds, 1)
	assert.Equal(t, "c1", embeds[0].ChannelID, "occupant cards go to the room")
	assert.Len(t, f.session.callsTo("typing"), 1)

	f.session.mu.Lock()
	embed := f.session.embeds[0]
	f.session.mu.Unlock()
	assert.Equal(t, "Build", embed.Title)
	assert.Equal(t, "passed", embed.Description)
	assert.Equal(t, "https://ci.example.com/1", embed.URL)
	assert.Equal(t, 0x008000, embed.Color)
	assert.Equal(t, "https://ci.example.com/badge.png", embed.Image.URL)
	assert.Equal(t, "https://ci.example.com/thumb.png", embed.Thumbnail.URL)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "branch", embed.Fields[0].Name)
	assert.True(t, embed.Fields[0].Inline)
}

func TestSendCard_InvalidColor(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")

	card := &bot.Card{To: RoomByID(f.client, "c1"), Title: "x", Color: "mauve"}
	assert.ErrorIs(t, f.backend.SendCard(card), ErrInvalidColor)
	f.flush(t)
	assert.Empty(t, f.session.Calls())
}

func TestBuildReply(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")

	t.Run("direct", func(t *testing.T) {
		msg := bot.NewMessage("hi")
		msg.From = NewPerson(f.client, "42")
		msg.To = f.backend.Identity()

		reply := f.backend.BuildReply(msg, "hello", false, false)
		assert.Equal(t, "hello", reply.Body)
		assert.True(t, reply.From.Equal(f.backend.Identity()))
		assert.True(t, reply.To.Equal(msg.From))
		assert.Nil(t, reply.Parent)
	})

	t.Run("group", func(t *testing.T) {
		msg := bot.NewMessage("hi")
		msg.From = NewRoomOccupant(f.client, "42", "c1")
		msg.To = RoomByID(f.client, "c1")

		reply := f.backend.BuildReply(msg, "hello", false, true)
		assert.Equal(t, "c1", reply.To.ID())
		assert.True(t, reply.IsGroup())
		from, ok := reply.From.(*RoomOccupant)
		require.True(t, ok)
		assert.Equal(t, testSelfID, from.ID())
		assert.Equal(t, "c1", from.Room().ID())
		assert.Same(t, msg, reply.Parent)
	})

	t.Run("group private", func(t *testing.T) {
		msg := bot.NewMessage("hi")
		msg.From = NewRoomOccupant(f.client, "42", "c1")
		msg.To = RoomByID(f.client, "c1")

		reply := f.backend.BuildReply(msg, "hello", true, false)
		assert.IsType(t, &Person{}, reply.To)
		assert.Equal(t, "42", reply.To.ID())
		assert.True(t, reply.IsDirect())
	})
}

func TestChangePresence(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.backend.ChangePresence(bot.Away, "reading logs"))
	require.NoError(t, f.backend.ChangePresence(bot.Offline, ""))
	f.flush(t)

	f.session.mu.Lock()
	statuses := append([]discordgo.UpdateStatusData(nil), f.session.statuses...)
	f.session.mu.Unlock()

	require.Len(t, statuses, 2)
	assert.Equal(t, "idle", statuses[0].Status)
	require.Len(t, statuses[0].Activities, 1)
	assert.Equal(t, "reading logs", statuses[0].Activities[0].Name)
	assert.Equal(t, "invisible", statuses[1].Status)
	assert.Empty(t, statuses[1].Activities)

	assert.ErrorIs(t, f.backend.ChangePresence(bot.Status("busy"), ""), ErrNotSupported)
}

func TestQueryRoom(t *testing.T) {
	f := newFixture(t)
	f.categoryChannel("k1", "archive")
	f.textChannel("c1", "general")

	cat, err := f.backend.QueryRoom("##archive")
	require.NoError(t, err)
	assert.IsType(t, &Category{}, cat)
	assert.True(t, cat.Exists())
	assert.Equal(t, "k1", cat.ID())

	room, err := f.backend.QueryRoom("#archive")
	require.NoError(t, err)
	assert.IsType(t, &Room{}, room)
	assert.False(t, room.Exists(), "no text channel is named archive")

	general, err := f.backend.QueryRoom("#general")
	require.NoError(t, err)
	assert.True(t, general.Exists())

	for _, bad := range []string{"archive", "#", "##", ""} {
		_, err := f.backend.QueryRoom(bad)
		assert.ErrorIs(t, err, ErrMalformedAddress, bad)
	}
}

func TestQueryRoom_NoGuild(t *testing.T) {
	f := newFixture(t)
	f.cache.mu.Lock()
	f.cache.guilds = nil
	f.cache.mu.Unlock()

	_, err := f.backend.QueryRoom("#general")
	assert.ErrorIs(t, err, ErrNoGuild)
}

func TestRooms(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")
	f.textChannel("c2", "random")
	f.categoryChannel("k1", "archive")

	rooms := f.backend.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "#general", rooms[0].String())
	assert.Equal(t, "#random", rooms[1].String())
}

func TestBuildIdentifier(t *testing.T) {
	f := newFixture(t)
	f.cache.addUser("42", "alice", "1234")

	id, err := f.backend.BuildIdentifier("alice#1234")
	require.NoError(t, err)
	assert.Equal(t, "42", id.ID())

	_, err = f.backend.BuildIdentifier("alice#9999")
	assert.ErrorIs(t, err, ErrPersonNotFound)

	for _, bad := range []string{"alice", "#1234", "alice#", ""} {
		_, err := f.backend.BuildIdentifier(bad)
		assert.ErrorIs(t, err, ErrMalformedAddress, bad)
	}
}

func TestIsFromSelf(t *testing.T) {
	f := newFixture(t)

	msg := bot.NewMessage("hi")
	msg.From = NewRoomOccupant(f.client, testSelfID, "c1")
	assert.True(t, f.backend.IsFromSelf(msg))

	msg.From = NewPerson(f.client, "42")
	assert.False(t, f.backend.IsFromSelf(msg))

	msg.From = nil
	assert.False(t, f.backend.IsFromSelf(msg))
}

func TestPrefixGroupchatReply(t *testing.T) {
	f := newFixture(t)
	f.cache.addUser("42", "alice", "1234")

	msg := bot.NewMessage("done")
	f.backend.PrefixGroupchatReply(msg, NewPerson(f.client, "42"))
	assert.Equal(t, "@alice done", msg.Body)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	f.textChannel("c1", "general")

	snap := f.backend.Snapshot()
	assert.Equal(t, Mode, snap.Mode)
	assert.True(t, snap.Connected)
	assert.Equal(t, testSelfID, snap.BotID)
	assert.Equal(t, "relaybot#0001", snap.BotName)
	assert.Equal(t, 1, snap.Guilds)
	assert.Equal(t, []string{"#general"}, snap.Rooms)

	idle := NewBackend(Options{}, &fakeHost{}).Snapshot()
	assert.False(t, idle.Connected)
	assert.Empty(t, idle.Rooms)
}

func TestServeOnce(t *testing.T) {
	cache := newFakeCache()
	session := newFakeSession(cache)
	host := &fakeHost{}

	b := NewBackend(Options{Token: "test-token", ShutdownTimeout: time.Second}, host)
	b.SetDialer(func(Options) (Session, Cache, error) { return session, cache, nil })

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		stop bool
		err  error
	}
	done := make(chan result, 1)
	go func() {
		stop, err := b.ServeOnce(ctx)
		done <- result{stop, err}
	}()

	require.Eventually(t, func() bool {
		connects, _ := host.counts()
		return connects == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, b.Identity())
	assert.Equal(t, testSelfID, b.Identity().ID())
	assert.Equal(t, "discord", b.Mode())

	cancel()
	select {
	case r := <-done:
		assert.True(t, r.stop)
		assert.NoError(t, r.err)
	case <-time.After(3 * time.Second):
		t.Fatal("ServeOnce did not return after cancellation")
	}

	_, disconnects := host.counts()
	assert.Equal(t, 1, disconnects)
	assert.True(t, session.isClosed())
	assert.Nil(t, b.Identity())
	assert.ErrorIs(t, b.ChangePresence(bot.Online, ""), ErrNotConnected)
}

func TestServeOnce_IdentityKnownBeforeReadyHandler(t *testing.T) {
	cache := newFakeCache()
	session := newFakeSession(cache)
	session.skipReady = true

	b := NewBackend(Options{Token: "test-token", ShutdownTimeout: time.Second}, nil)
	identities := make(chan bot.Person, 1)
	host := &fakeHost{onConnect: func() { identities <- b.Identity() }}
	b.host = host
	b.SetDialer(func(Options) (Session, Cache, error) { return session, cache, nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.ServeOnce(ctx)
	}()

	select {
	case self := <-identities:
		require.NotNil(t, self)
		assert.Equal(t, testSelfID, self.ID())
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectCallback was not called")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("ServeOnce did not return after cancellation")
	}
}

func TestServeOnce_OpenFailure(t *testing.T) {
	cache := newFakeCache()
	session := newFakeSession(cache)
	session.openErr = errors.New("authentication failed")
	host := &fakeHost{}

	b := NewBackend(Options{Token: "bad"}, host)
	b.SetDialer(func(Options) (Session, Cache, error) { return session, cache, nil })

	stop, err := b.ServeOnce(context.Background())
	assert.False(t, stop)
	assert.ErrorContains(t, err, "authentication failed")

	connects, disconnects := host.counts()
	assert.Zero(t, connects)
	assert.Zero(t, disconnects)
	assert.Equal(t, 0, b.Snapshot().PendingTasks)
}

func TestServeOnce_DialFailure(t *testing.T) {
	b := NewBackend(Options{Token: "bad"}, &fakeHost{})
	b.SetDialer(func(Options) (Session, Cache, error) { return nil, nil, errors.New("boom") })

	stop, err := b.ServeOnce(context.Background())
	assert.False(t, stop)
	assert.ErrorContains(t, err, "failed to create discord session")
}
