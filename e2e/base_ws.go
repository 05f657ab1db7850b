package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"nhooyr.io/websocket"

	"devicesync/auth"
)

type BaseWsSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.SyncAddr == "" {
		s.T().Skip("SYNC_ADDR not set, skipping end-to-end suite")
	}
}

// WsClient is one live websocket session against the server under test,
// with JSON frame helpers and optional frame dumping.
type WsClient struct {
	t    *testing.T
	conn *websocket.Conn
	cfg  Config
}

// Dial opens an authenticated websocket for the given user, printing a
// colorized header for the connection step in logs.
func (s *BaseWsSuite) Dial(ctx context.Context, name, userID string) *WsClient {
	return s.DialDevice(ctx, name, userID, "")
}

// DialDevice opens an authenticated websocket with an optional deviceId on
// the handshake, which triggers the server's reconnect fast path.
func (s *BaseWsSuite) DialDevice(ctx context.Context, name, userID, deviceID string) *WsClient {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	token, err := auth.GenerateToken([]byte(s.Config.AuthSecret), userID, time.Hour)
	s.Require().NoError(err)

	url := fmt.Sprintf("ws://%s/ws?token=%s", s.Config.SyncAddr, token)
	if deviceID != "" {
		url += "&deviceId=" + deviceID
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	s.Require().NoError(err, "Failed to connect to sync server at "+s.Config.SyncAddr)

	return &WsClient{t: s.T(), conn: conn, cfg: s.Config}
}

func (c *WsClient) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

// Send marshals and writes one frame.
func (c *WsClient) Send(ctx context.Context, frame map[string]any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if c.cfg.DebugJSON {
		c.t.Logf("SEND: %s", data)
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Recv reads one frame.
func (c *WsClient) Recv(ctx context.Context) (map[string]any, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if c.cfg.DebugJSON {
		c.t.Logf("RECV: %s", data)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// RecvType reads frames until one of the wanted type arrives. Other frame
// types received in between (device_status noise and the like) are logged
// and discarded.
func (c *WsClient) RecvType(ctx context.Context, wanted string) (map[string]any, error) {
	for {
		frame, err := c.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if frame["type"] == wanted {
			return frame, nil
		}
		c.t.Logf("skipping frame of type %v while waiting for %s", frame["type"], wanted)
	}
}
