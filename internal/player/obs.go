package player

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"castbot/pkg/logx"
)

// OBS WebSocket v5 opcodes.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opRequest         = 6
	opRequestResponse = 7
)

const rpcVersion = 1

var ErrAuthRequired = errors.New("obs: server requires a password")

type OBSConfig struct {
	Addr     string // ws://host:port
	Password string
	Scene    string // program scene switched to before playback
	Input    string // media/VLC source whose playlist is replaced
	Timeout  time.Duration
	Log      logx.Logger
}

// OBS plays cues by switching the program scene and replacing the playlist of
// a source. Each Play opens its own connection; OBS restarts are harmless.
type OBS struct {
	cfg    OBSConfig
	dialer *websocket.Dialer
}

func NewOBS(cfg OBSConfig) *OBS {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Log.IsZero() {
		cfg.Log = logx.Nop()
	}
	if !strings.Contains(cfg.Addr, "://") {
		cfg.Addr = "ws://" + cfg.Addr
	}
	return &OBS{cfg: cfg, dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout}}
}

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	RPCVersion     int `json:"rpcVersion"`
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication,omitempty"`
}

type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
}

type playlistItem struct {
	Hidden   bool   `json:"hidden"`
	Selected bool   `json:"selected"`
	Value    string `json:"value"`
}

func (o *OBS) Play(ctx context.Context, cue Cue) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	sess, err := o.connect(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	if err := sess.call(ctx, "SetCurrentProgramScene", map[string]any{"sceneName": o.cfg.Scene}); err != nil {
		return err
	}
	settings := map[string]any{
		"inputName": o.cfg.Input,
		"inputSettings": map[string]any{
			"playlist": []playlistItem{{Value: cue.Path}},
		},
		"overlay": true,
	}
	if err := sess.call(ctx, "SetInputSettings", settings); err != nil {
		return err
	}
	o.cfg.Log.Debug("obs playlist replaced", logx.String("input", o.cfg.Input), logx.String("path", cue.Path))
	return nil
}

type session struct {
	conn *websocket.Conn
	stop func() bool
}

func (o *OBS) connect(ctx context.Context) (*session, error) {
	conn, _, err := o.dialer.DialContext(ctx, o.cfg.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("obs dial %s: %w", o.cfg.Addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		_ = conn.SetWriteDeadline(dl)
	}
	// a cancelled ctx must unblock a pending read
	s := &session{conn: conn, stop: context.AfterFunc(ctx, func() { _ = conn.Close() })}

	var hello helloData
	if err := s.expect(opHello, &hello); err != nil {
		s.close()
		return nil, err
	}
	id := identifyData{RPCVersion: rpcVersion}
	if hello.Authentication != nil {
		if o.cfg.Password == "" {
			s.close()
			return nil, ErrAuthRequired
		}
		id.Authentication = authResponse(o.cfg.Password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}
	if err := s.send(opIdentify, id); err != nil {
		s.close()
		return nil, err
	}
	if err := s.expect(opIdentified, nil); err != nil {
		s.close()
		return nil, fmt.Errorf("obs identify: %w", err)
	}
	return s, nil
}

func (s *session) close() {
	s.stop()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = s.conn.Close()
}

func (s *session) send(op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.conn.WriteJSON(envelope{Op: op, D: raw})
}

// expect reads until a message with op arrives; other ops (events) are ignored.
func (s *session) expect(op int, into any) error {
	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("obs read: %w", err)
		}
		if env.Op != op {
			continue
		}
		if into == nil {
			return nil
		}
		return json.Unmarshal(env.D, into)
	}
}

func (s *session) call(ctx context.Context, requestType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := uuid.NewString()
	if err := s.send(opRequest, requestData{RequestType: requestType, RequestID: id, RequestData: data}); err != nil {
		return fmt.Errorf("obs %s: %w", requestType, err)
	}
	for {
		var resp responseData
		if err := s.expect(opRequestResponse, &resp); err != nil {
			return fmt.Errorf("obs %s: %w", requestType, err)
		}
		if resp.RequestID != id {
			continue
		}
		if !resp.RequestStatus.Result {
			return fmt.Errorf("obs %s failed: code=%d %s", requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		return nil
	}
}

// authResponse implements the v5 challenge: base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}
