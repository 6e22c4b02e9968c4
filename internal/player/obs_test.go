package player

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeOBS speaks enough of the v5 protocol for Play.
type fakeOBS struct {
	password  string
	failScene bool

	mu       sync.Mutex
	requests []requestData
	authOK   bool
}

func (f *fakeOBS) handler(t *testing.T) http.HandlerFunc {
	up := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		hello := map[string]any{"obsWebSocketVersion": "5.4.2", "rpcVersion": 1}
		if f.password != "" {
			hello["authentication"] = map[string]string{"challenge": "chal", "salt": "salt"}
		}
		writeOp(t, conn, opHello, hello)

		var env envelope
		if err := conn.ReadJSON(&env); err != nil || env.Op != opIdentify {
			return
		}
		var id identifyData
		_ = json.Unmarshal(env.D, &id)
		if f.password != "" && id.Authentication != authResponse(f.password, "salt", "chal") {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(4009, "auth failed"), time.Now().Add(time.Second))
			return
		}
		f.mu.Lock()
		f.authOK = true
		f.mu.Unlock()
		writeOp(t, conn, opIdentified, map[string]any{"negotiatedRpcVersion": 1})

		for {
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			var req requestData
			_ = json.Unmarshal(env.D, &req)
			f.mu.Lock()
			f.requests = append(f.requests, req)
			f.mu.Unlock()

			// an unrelated event must be skipped by the client
			writeOp(t, conn, 5, map[string]any{"eventType": "CurrentProgramSceneChanged"})

			ok := !(f.failScene && req.RequestType == "SetCurrentProgramScene")
			writeOp(t, conn, opRequestResponse, map[string]any{
				"requestType":   req.RequestType,
				"requestId":     req.RequestID,
				"requestStatus": map[string]any{"result": ok, "code": map[bool]int{true: 100, false: 600}[ok], "comment": "no such scene"},
			})
		}
	}
}

func writeOp(t *testing.T, conn *websocket.Conn, op int, d any) {
	raw, _ := json.Marshal(d)
	if err := conn.WriteJSON(envelope{Op: op, D: raw}); err != nil {
		t.Logf("write op %d: %v", op, err)
	}
}

func newOBSForTest(srv *httptest.Server, password string) *OBS {
	return NewOBS(OBSConfig{
		Addr:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Password: password,
		Scene:    "Schedule",
		Input:    "schedulesource",
		Timeout:  2 * time.Second,
	})
}

func TestOBSPlaySendsSceneThenPlaylist(t *testing.T) {
	fake := &fakeOBS{password: "secret"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	err := newOBSForTest(srv, "secret").Play(context.Background(), Cue{Path: `/media/show.mp4`, Title: "show", User: "A"})
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !fake.authOK {
		t.Fatalf("client did not authenticate")
	}
	if len(fake.requests) != 2 {
		t.Fatalf("requests=%+v", fake.requests)
	}
	if fake.requests[0].RequestType != "SetCurrentProgramScene" || fake.requests[1].RequestType != "SetInputSettings" {
		t.Fatalf("order=%s,%s", fake.requests[0].RequestType, fake.requests[1].RequestType)
	}
	b, _ := json.Marshal(fake.requests[1].RequestData)
	got := string(b)
	for _, want := range []string{`"inputName":"schedulesource"`, `"overlay":true`, `"value":"/media/show.mp4"`, `"hidden":false`} {
		if !strings.Contains(got, want) {
			t.Fatalf("settings %s missing %s", got, want)
		}
	}
}

func TestOBSPlayReportsFailedRequest(t *testing.T) {
	fake := &fakeOBS{failScene: true}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	err := newOBSForTest(srv, "").Play(context.Background(), Cue{Path: "/m/x.mp4"})
	if err == nil || !strings.Contains(err.Error(), "SetCurrentProgramScene failed") {
		t.Fatalf("err=%v", err)
	}
}

func TestOBSPlayWithoutPassword(t *testing.T) {
	fake := &fakeOBS{password: "secret"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	if err := newOBSForTest(srv, "").Play(context.Background(), Cue{Path: "/m/x.mp4"}); err != ErrAuthRequired {
		t.Fatalf("err=%v", err)
	}
}

func TestOBSPlayUnreachable(t *testing.T) {
	o := NewOBS(OBSConfig{Addr: "127.0.0.1:1", Timeout: 500 * time.Millisecond})
	if err := o.Play(context.Background(), Cue{Path: "/m/x.mp4"}); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestAuthResponse(t *testing.T) {
	// Example values from the obs-websocket v5 protocol documentation.
	got := authResponse("supersecretpassword", "lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI=", "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY=")
	if want := "1Ct943GAT+6YQUUX47Ia/ncufilbe6+oD6lY+5kaCu4="; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDryRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (DryRun{}).Play(ctx, Cue{}); err == nil {
		t.Fatalf("expected ctx error")
	}
}
