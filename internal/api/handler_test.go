package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"secret-room/internal/api"
	"secret-room/internal/auth"
	"secret-room/internal/cipher"
	"secret-room/internal/invitation"
	"secret-room/internal/membership"
	"secret-room/internal/message"
	myMiddleware "secret-room/internal/middleware"
	"secret-room/internal/presence"
	"secret-room/internal/room"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	clock  *clock.Mock
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: clock.NewMock()}
	f.clock.Set(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))

	members := membership.NewMemoryStore(f.clock)
	invitations := invitation.NewMemoryStore(members)
	messages := message.NewMemoryStore()
	registry := room.NewRegistry(room.NewMemoryStore(), members, f.clock,
		room.CascadeStep{Name: "messages", Target: messages},
		room.CascadeStep{Name: "invitations", Target: invitations})
	keys, err := cipher.NewKeyCache(8)
	require.NoError(t, err)
	tokens := auth.NewIssuer("test-secret", time.Hour)

	h := &api.Handler{
		Rooms:       registry,
		Invitations: invitation.NewManager(invitations, registry, members, tokens, f.clock),
		Members:     members,
		Presence:    presence.NewTracker(members),
		Messages:    message.NewService(messages, registry, keys, f.clock),
		Tokens:      tokens,
	}
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
	f.router = api.NewRouter(h, myMiddleware.NewAuthMiddleware(tokens), ws)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(context.Background())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (f *fixture) createRoom(t *testing.T) api.CreateRoomResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/rooms", "", api.CreateRoomRequest{
		Name: "Night Shift", Secret: "Secr3t!!", LifespanMS: time.Hour.Milliseconds(), OwnerID: "fp-owner",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "Secr3t!!", "the secret never leaves the server")
	return decode[api.CreateRoomResponse](t, rec)
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)
	assert.Equal(t, "fp-owner", created.UserID)
	assert.NotEmpty(t, created.Token)
	assert.Contains(t, created.Room.ID, "server-")

	rec := f.do(t, http.MethodGet, "/api/rooms/"+created.Room.ID, created.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[room.Room](t, rec)
	assert.Equal(t, "Night Shift", got.Name)

	rec = f.do(t, http.MethodGet, "/api/rooms/"+created.Room.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateRoom_GeneratesOwnerIdentity(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/rooms", "", api.CreateRoomRequest{
		Name: "Night Shift", Secret: "Secr3t!!", LifespanMS: time.Hour.Milliseconds(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, decode[api.CreateRoomResponse](t, rec).UserID, "user-")
}

func TestCreateRoom_Validation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/rooms", "", api.CreateRoomRequest{
		Name: "Night Shift", Secret: "Secr3t!!", LifespanMS: time.Minute.Milliseconds(), OwnerID: "fp-owner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "validation")

	rec = f.do(t, http.MethodPost, "/api/rooms", "", api.CreateRoomRequest{
		Name: "Night Shift", Secret: "Secr3t!!", LifespanMS: time.Hour.Milliseconds(), OwnerID: "fp-owner", Kind: "forever",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvitations(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	path := "/api/invitations/global/" + created.Room.GlobalInvitationID
	rec := f.do(t, http.MethodPost, path, "", api.RedeemRequest{Fingerprint: "fp-b"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	joined := decode[invitation.Redemption](t, rec)
	assert.Equal(t, created.Room.ID, joined.Room.ID)
	assert.NotEmpty(t, joined.Token)

	rec = f.do(t, http.MethodPost, path, "", api.RedeemRequest{Fingerprint: "fp-b"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/invitations/global/global-missing", "", api.RedeemRequest{Fingerprint: "fp-b"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Any member can mint a one-time code.
	rec = f.do(t, http.MethodPost, "/api/rooms/"+created.Room.ID+"/invitations", joined.Token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	inv := decode[invitation.Invitation](t, rec)

	rec = f.do(t, http.MethodPost, "/api/invitations/"+inv.InviteCode, "", api.RedeemRequest{Fingerprint: "fp-c"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/invitations/"+inv.InviteCode, "", api.RedeemRequest{Fingerprint: "fp-d"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/rooms/"+created.Room.ID+"/members", created.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]presence.MemberStatus](t, rec)
	assert.Len(t, members, 3)
}

func TestMembersOnlyRoutes(t *testing.T) {
	f := newFixture(t)
	first := f.createRoom(t)
	second := f.createRoom(t)

	for _, path := range []string{"", "/members", "/messages"} {
		rec := f.do(t, http.MethodGet, "/api/rooms/"+first.Room.ID+path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// A valid token for another room does not open this one.
	rec := f.do(t, http.MethodPost, "/api/invitations/global/"+second.Room.GlobalInvitationID, "", api.RedeemRequest{Fingerprint: "fp-x"})
	require.Equal(t, http.StatusCreated, rec.Code)
	outsider := decode[invitation.Redemption](t, rec)

	rec = f.do(t, http.MethodGet, "/api/rooms/"+first.Room.ID+"/messages", outsider.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/rooms/"+first.Room.ID+"/messages", first.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDeleteRoom(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	rec := f.do(t, http.MethodPost, "/api/invitations/global/"+created.Room.GlobalInvitationID, "", api.RedeemRequest{Fingerprint: "fp-b"})
	require.Equal(t, http.StatusCreated, rec.Code)
	member := decode[invitation.Redemption](t, rec)

	rec = f.do(t, http.MethodDelete, "/api/rooms/"+created.Room.ID, member.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/rooms/"+created.Room.ID, created.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	for _, path := range []string{"", "/members", "/messages"} {
		rec = f.do(t, http.MethodGet, "/api/rooms/"+created.Room.ID+path, created.Token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec = f.do(t, http.MethodPost, "/api/rooms/"+created.Room.ID+"/invitations", member.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/auth/refresh", created.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpiredRoomIsGone(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	f.clock.Add(time.Hour)

	rec := f.do(t, http.MethodPost, "/api/invitations/global/"+created.Room.GlobalInvitationID, "", api.RedeemRequest{Fingerprint: "fp-b"})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/refresh", created.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpiredRoom_GoneThenNotFound(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)
	path := "/api/rooms/" + created.Room.ID

	f.clock.Add(time.Hour)

	rec := f.do(t, http.MethodGet, path+"/messages", created.Token, nil)
	assert.Equal(t, http.StatusGone, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodGet, path+"/messages", created.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodGet, path, created.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	rec := f.do(t, http.MethodPost, "/api/auth/refresh", created.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[api.TokenResponse](t, rec).Token)
}

func TestWebsocketRouteRequiresToken(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/ws", "", nil).Code)
	assert.Equal(t, http.StatusTeapot, f.do(t, http.MethodGet, "/ws?token="+created.Token, "", nil).Code)
}
