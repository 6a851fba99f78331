package server

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialClassify(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/classify"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) WebSocketClassifyResponse {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var resp WebSocketClassifyResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestWebSocket_BinaryFrame(t *testing.T) {
	conn := dialClassify(t, newTestServer(t, leafRuntime(), Config{}))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, testPNG(t)))
	resp := readResponse(t, conn)

	assert.Equal(t, "result", resp.Type)
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "Leaf Blast", resp.Result.Disease)
	assert.Equal(t, resp.Result.RequestID, resp.RequestID)
}

func TestWebSocket_JSONFrameAndReuse(t *testing.T) {
	conn := dialClassify(t, newTestServer(t, leafRuntime(), Config{}))

	msg, err := json.Marshal(WebSocketClassifyRequest{Type: "classify", Image: testPNG(t), Filename: "leaf.png"})
	require.NoError(t, err)

	var ids []string
	for range 2 {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
		resp := readResponse(t, conn)
		require.Equal(t, "result", resp.Type, resp.Error)
		assert.InDelta(t, 85.0, resp.Result.Confidence, 1e-9)
		ids = append(ids, resp.RequestID)
	}
	assert.NotEqual(t, ids[0], ids[1])
}

func TestWebSocket_Errors(t *testing.T) {
	tests := []struct {
		name     string
		kind     int
		payload  []byte
		errType  string
		contains string
	}{
		{"malformed json", websocket.TextMessage, []byte("{"), "invalid_request", "Failed to parse request"},
		{"unknown type", websocket.TextMessage, []byte(`{"type":"segment"}`), "invalid_request", "Unsupported request type"},
		{"no image", websocket.TextMessage, []byte(`{"type":"classify"}`), "invalid_request", msgNoImage},
		{"garbage image", websocket.BinaryMessage, []byte("garbage"), "invalid_image", "Invalid image"},
	}

	conn := dialClassify(t, newTestServer(t, leafRuntime(), Config{}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(tt.kind, tt.payload))
			resp := readResponse(t, conn)
			assert.Equal(t, "error", resp.Type)
			assert.Equal(t, tt.errType, resp.ErrorType)
			assert.Contains(t, resp.Error, tt.contains)
		})
	}
}

func TestWebSocket_StageFailure(t *testing.T) {
	rt := leafRuntime().SetError(models.Meta, errors.New("boom"))
	conn := dialClassify(t, newTestServer(t, rt, Config{}))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, testPNG(t)))
	resp := readResponse(t, conn)

	assert.Equal(t, "processing_error", resp.ErrorType)
	assert.Equal(t, msgInferenceFailed, resp.Error)
}

type recordingConn struct {
	messages [][]byte
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.messages = append(c.messages, data)
	return nil
}

func TestSendWebSocketError(t *testing.T) {
	s := newTestServer(t, leafRuntime(), Config{})
	conn := &recordingConn{}
	s.sendWebSocketError(conn, "invalid_request", "bad")

	require.Len(t, conn.messages, 1)
	assert.JSONEq(t, `{"type":"error","status":"error","error":"bad","error_type":"invalid_request"}`, string(conn.messages[0]))
}
