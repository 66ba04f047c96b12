package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brporter/remoteview/internal/input"
	"github.com/brporter/remoteview/internal/pacer"
	"github.com/brporter/remoteview/internal/session"
)

func testFrame(b byte) session.Frame {
	return session.Frame{MIME: session.FrameMIME, Data: []byte{0xff, 0xd8, b, 0xff, 0xd9}, Width: 2, Height: 2}
}

func newTestViewer(t *testing.T, status StatusFunc) (*Server, session.Surface, *httptest.Server) {
	t.Helper()
	v := NewServer(nil, status)
	surf, err := v.CreateSurface("container", input.Size{Width: 450, Height: 768})
	require.NoError(t, err)
	ts := httptest.NewServer(v.Handler())
	t.Cleanup(ts.Close)
	return v, surf, ts
}

func TestCreateSurface_InvalidSize(t *testing.T) {
	v := NewServer(nil, nil)
	_, err := v.CreateSurface("x", input.Size{Width: 0, Height: 10})
	assert.ErrorIs(t, err, input.ErrInvalidSize)
}

func TestIndex(t *testing.T) {
	_, _, ts := newTestViewer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `id="container"`)
	assert.Contains(t, string(body), `width="450"`)
	assert.Contains(t, string(body), `height="768"`)
}

func TestFrame_EmptyThenLatest(t *testing.T) {
	_, surf, ts := newTestViewer(t, nil)

	resp, err := http.Get(ts.URL + "/frame.jpg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	surf.Draw(testFrame(1))
	surf.Draw(testFrame(2))

	resp, err = http.Get(ts.URL + "/frame.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, testFrame(2).Data, body)
}

func TestStream_DeliversNewFrames(t *testing.T) {
	_, surf, ts := newTestViewer(t, nil)
	surf.Draw(testFrame(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)

	mr := multipart.NewReader(resp.Body, params["boundary"])

	// A part only ends when the next boundary is written, so read exactly
	// Content-Length bytes.
	readPart := func() []byte {
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
		n, err := strconv.Atoi(part.Header.Get("Content-Length"))
		require.NoError(t, err)
		buf := make([]byte, n)
		_, err = io.ReadFull(part, buf)
		require.NoError(t, err)
		return buf
	}

	assert.Equal(t, testFrame(1).Data, readPart())
	surf.Draw(testFrame(2))
	assert.Equal(t, testFrame(2).Data, readPart())
}

func TestInput_ForwardsPointerEvents(t *testing.T) {
	v, surf, ts := newTestViewer(t, nil)

	events := make(chan input.PointerEvent, 4)
	surf.OnPointer(func(ev input.PointerEvent) { events <- ev })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/input", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return v.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`not json`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"wheel","x":1,"y":1}`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText,
		[]byte(`{"type":"down","x":100,"y":200,"button":0,"width":450,"height":768}`)))

	select {
	case ev := <-events:
		assert.Equal(t, input.PointerEvent{
			Kind: input.KindDown, X: 100, Y: 200, Button: 0,
			SurfaceWidth: 450, SurfaceHeight: 768,
		}, ev)
	case <-ctx.Done():
		t.Fatal("no pointer event forwarded")
	}

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return v.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	cases := []struct {
		name        string
		status      StatusFunc
		wantStatus  string
		wantSession bool
	}{
		{"no session", nil, "ok", false},
		{"not mounted", func(context.Context) (session.Snapshot, error) {
			return session.Snapshot{}, nil
		}, "ok", false},
		{"stopped", func(context.Context) (session.Snapshot, error) {
			return session.Snapshot{}, errors.New("loop stopped")
		}, "stopped", false},
		{"running", func(context.Context) (session.Snapshot, error) {
			return session.Snapshot{
				Mounted:    true,
				State:      session.StateConnected,
				Video:      session.VideoStats{Open: true, Pacer: pacer.State{TierIndex: 3, Outstanding: 1}, Frames: 12},
				Reconnects: 2,
			}, nil
		}, "ok", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, ts := newTestViewer(t, tc.status)
			resp, err := http.Get(ts.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()

			var body struct {
				Status  string         `json:"status"`
				Session *healthSession `json:"session"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

			assert.Equal(t, tc.wantStatus, body.Status)
			if !tc.wantSession {
				assert.Nil(t, body.Session)
				return
			}
			require.NotNil(t, body.Session)
			assert.Equal(t, "connected", body.Session.State)
			assert.Equal(t, 3, body.Session.Tier)
			assert.Equal(t, 1, body.Session.Outstanding)
			assert.Equal(t, 12, body.Session.Frames)
			assert.Equal(t, 2, body.Session.Reconnects)
		})
	}
}
