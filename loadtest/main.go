package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 250 // Each pair shares one room.
	MsgCount  = 20  // Messages per user
	// Stays under the server's default per-connection event rate.
	MsgInterval = 120 * time.Millisecond
)

type CreateRoomResponse struct {
	Room struct {
		ID                 string `json:"room_id"`
		GlobalInvitationID string `json:"global_invitation_id"`
	} `json:"room"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type RedeemResponse struct {
	Token string `json:"token"`
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func main() {
	logrus.Infof("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	logrus.Info("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("fp-%d-a-%s", pairID, uuid.NewString()[:8])
	userB := fmt.Sprintf("fp-%d-b-%s", pairID, uuid.NewString()[:8])

	// 1. A creates a room, B joins through its global invitation
	room, err := createRoom(pairID, userA)
	if err != nil {
		logrus.WithError(err).Errorf("❌ Create Room Failed [%s]", userA)
		return
	}
	tokenB, err := redeemGlobal(room.Room.GlobalInvitationID, userB)
	if err != nil {
		logrus.WithError(err).Errorf("❌ Join Failed [%s]", userB)
		return
	}

	// 2. Both sides chat over websockets
	var wsWg sync.WaitGroup
	wsWg.Add(2)

	go spamChat(&wsWg, room.Token, room.Room.ID, userA, userB)
	go spamChat(&wsWg, tokenB, room.Room.ID, userB, userA)

	wsWg.Wait()
}

func createRoom(pairID int, owner string) (*CreateRoomResponse, error) {
	resp, err := postJSON("/api/rooms", map[string]any{
		"name":        fmt.Sprintf("loadtest %d", pairID),
		"secret":      "L0adTest!" + uuid.NewString()[:8],
		"lifespan_ms": time.Hour.Milliseconds(),
		"owner_id":    owner,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var data CreateRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func redeemGlobal(globalID, fingerprint string) (string, error) {
	resp, err := postJSON("/api/invitations/global/"+globalID, map[string]string{"fingerprint": fingerprint})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var data RedeemResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	return data.Token, nil
}

func spamChat(wg *sync.WaitGroup, token, roomID, user, peer string) {
	defer wg.Done()
	logCtx := logrus.WithField("user_id", user)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		logCtx.WithError(err).Error("❌ WS Connect Fail")
		return
	}
	defer conn.Close()

	// Drain server events so the send buffer never fills up.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(envelope{Event: "join_room", Data: map[string]string{"roomId": roomID, "userId": user}}); err != nil {
		logCtx.WithError(err).Error("❌ Join Fail")
		return
	}

	for i := 0; i < MsgCount; i++ {
		msg := envelope{Event: "send_message", Data: map[string]string{
			"roomId":     roomID,
			"senderId":   user,
			"receiverId": peer,
			"content":    fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		}}
		if err := conn.WriteJSON(msg); err != nil {
			logCtx.WithError(err).Error("❌ Send Fail")
			break
		}
		time.Sleep(MsgInterval)
	}
	logCtx.Infof("✅ finished sending %d msgs", MsgCount)
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
