package message_test

import (
	"context"
	"testing"
	"time"

	"secret-room/internal/apperr"
	"secret-room/internal/cipher"
	"secret-room/internal/membership"
	"secret-room/internal/message"
	"secret-room/internal/room"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "Secr3t!!"

type fixture struct {
	clock    *clock.Mock
	store    *message.MemoryStore
	registry *room.Registry
	service  *message.Service
	room     *room.Room
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: clock.NewMock(), store: message.NewMemoryStore()}
	f.clock.Set(time.Date(2026, 4, 10, 20, 0, 0, 0, time.UTC))

	keys, err := cipher.NewKeyCache(16)
	require.NoError(t, err)
	f.registry = room.NewRegistry(room.NewMemoryStore(), membership.NewMemoryStore(f.clock), f.clock,
		room.CascadeStep{Name: "messages", Target: f.store})
	f.service = message.NewService(f.store, f.registry, keys, f.clock)

	f.room, err = f.registry.CreateRoom(context.Background(), room.CreateParams{
		Name: "Night Shift", Secret: secret, Lifespan: time.Hour, OwnerID: "fp-a",
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) send(t *testing.T, content, attachment string) *message.Message {
	t.Helper()
	msg, err := f.service.Create(context.Background(), message.CreateParams{
		RoomID: f.room.ID, SenderID: "fp-a", ReceiverID: "fp-b",
		Content: content, AttachmentURL: attachment,
	})
	require.NoError(t, err)
	return msg
}

func TestCreate_StoresCiphertext(t *testing.T) {
	f := newFixture(t)

	msg := f.send(t, "hello", "https://files.example/cat.png")
	assert.Equal(t, "hello", msg.Content)
	assert.Contains(t, msg.ID, "txt-")
	require.NotNil(t, msg.AttachmentURL)
	assert.Equal(t, "https://files.example/cat.png", *msg.AttachmentURL)

	rec, err := f.store.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, rec.Encrypted)
	assert.NotEqual(t, "hello", rec.Ciphertext)
	assert.True(t, rec.ReadBySender)
	assert.False(t, rec.ReadByReceiver)

	plain, err := cipher.Decrypt(rec.Ciphertext, cipher.DeriveKey(secret))
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	require.NotNil(t, rec.AttachmentCiphertext)
	url, err := cipher.Decrypt(*rec.AttachmentCiphertext, cipher.DeriveKey(secret))
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/cat.png", url)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, message.CreateParams{RoomID: f.room.ID, SenderID: "fp-a", ReceiverID: "fp-b", Content: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.service.Create(ctx, message.CreateParams{RoomID: f.room.ID, SenderID: "fp-a", Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.service.Create(ctx, message.CreateParams{RoomID: "server-missing", SenderID: "fp-a", ReceiverID: "fp-b", Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestList_DecryptsInOrder(t *testing.T) {
	f := newFixture(t)
	f.send(t, "first", "")
	f.clock.Add(time.Second)
	f.send(t, "second", "")

	msgs, err := f.service.List(context.Background(), f.room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Nil(t, msgs[0].AttachmentURL)
}

func TestMarkRead_LeavesCiphertextUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, "hello", "")

	before, err := f.store.Get(ctx, msg.ID)
	require.NoError(t, err)

	_, err = f.service.MarkRead(ctx, msg.ID, "fp-a")
	assert.ErrorIs(t, err, apperr.ErrForbidden, "only the receiver marks read")

	read, err := f.service.MarkRead(ctx, msg.ID, "fp-b")
	require.NoError(t, err)
	assert.True(t, read.ReadByReceiver)
	assert.Equal(t, "hello", read.Content)

	// A second call is harmless.
	_, err = f.service.MarkRead(ctx, msg.ID, "fp-b")
	require.NoError(t, err)

	after, err := f.store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Ciphertext, after.Ciphertext)
	assert.True(t, after.ReadByReceiver)

	msgs, err := f.service.List(ctx, f.room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestMarkDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, "hello", "")

	require.NoError(t, f.service.MarkDelivered(ctx, msg.ID))
	rec, err := f.store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, rec.Delivered)

	assert.ErrorIs(t, f.service.MarkDelivered(ctx, "txt-missing"), apperr.ErrNotFound)
}

func TestList_AfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, "hello", "")

	f.clock.Add(time.Hour)

	_, err := f.service.List(ctx, f.room.ID)
	assert.ErrorIs(t, err, apperr.ErrGone)

	_, err = f.service.List(ctx, f.room.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.store.Get(ctx, msg.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "messages are removed with the room")
}
