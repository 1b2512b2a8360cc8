package stream

import (
	"bytes"
	"image"
	"image/png"
	"math/rand"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/pipeline"
)

type fakeControls struct {
	mu    sync.Mutex
	on    bool
	calls int
}

func (c *fakeControls) SetColorCycle(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.on = on
	c.calls++
}

func (c *fakeControls) ToggleColorCycle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.on = !c.on
	c.calls++
	return c.on
}

func (c *fakeControls) state() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on, c.calls
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return h.Clients() == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastSendsHeaderThenPNG(t *testing.T) {
	h := NewHub(config.StreamConfig{Interval: 1, Width: 32}, nil)
	conn := dial(t, h)

	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	h.Publish(img, pipeline.Frame{Index: 4, Time: 0.5, ColorCycle: true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hdr Header
	if err := conn.ReadJSON(&hdr); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	if hdr.Type != "frame" || hdr.Frame != 4 || !hdr.ColorCycle {
		t.Errorf("header = %+v", hdr)
	}
	if hdr.Width != 32 || hdr.Height != 18 {
		t.Errorf("header size = %dx%d, want 32x18", hdr.Width, hdr.Height)
	}

	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", kind)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding png: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 32 || b.Dy() != 18 {
		t.Errorf("png size = %v, want 32x18", b)
	}
}

func TestPublishHonorsInterval(t *testing.T) {
	h := NewHub(config.StreamConfig{Interval: 3, Width: 16}, nil)
	conn := dial(t, h)

	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for i := uint64(1); i <= 3; i++ {
		h.Publish(img, pipeline.Frame{Index: i})
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hdr Header
	if err := conn.ReadJSON(&hdr); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	if hdr.Frame != 3 {
		t.Errorf("first broadcast frame = %d, want 3", hdr.Frame)
	}
}

func TestViewerControls(t *testing.T) {
	controls := &fakeControls{}
	h := NewHub(config.StreamConfig{Interval: 1}, controls)
	conn := dial(t, h)

	if err := conn.WriteJSON(map[string]any{"colorCycle": true}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { _, n := controls.state(); return n == 1 })
	if on, _ := controls.state(); !on {
		t.Error("colorCycle message did not enable cycling")
	}

	if err := conn.WriteJSON(map[string]any{"toggle": "color"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { _, n := controls.state(); return n == 2 })
	if on, _ := controls.state(); on {
		t.Error("toggle message did not flip cycling")
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	h := NewHub(config.StreamConfig{Interval: 1}, nil)
	conn := dial(t, h)

	conn.Close()
	waitFor(t, func() bool { return h.Clients() == 0 })
}

func noiseImage(w, h int, seed int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rand.New(rand.NewSource(seed)).Read(img.Pix)
	return img
}

func TestStalledViewerDoesNotBlockPublish(t *testing.T) {
	h := NewHub(config.StreamConfig{Interval: 1, WriteTimeout: 100 * time.Millisecond}, nil)
	dial(t, h) // never reads

	// Incompressible frames fill the socket buffers within a few publishes.
	img := noiseImage(512, 512, 1)
	deadline := time.Now().Add(10 * time.Second)
	var i uint64
	for h.Clients() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stalled viewer still connected after %d frames", i)
		}
		start := time.Now()
		h.Publish(img, pipeline.Frame{Index: i})
		if d := time.Since(start); d > time.Second {
			t.Fatalf("Publish of frame %d took %v while a viewer was stalled", i, d)
		}
		i++
	}
}

func TestStalledViewerDoesNotStarveOthers(t *testing.T) {
	h := NewHub(config.StreamConfig{Interval: 1, WriteTimeout: 100 * time.Millisecond}, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	stalled, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { stalled.Close() })
	reader, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { reader.Close() })
	waitFor(t, func() bool { return h.Clients() == 2 })

	var last atomic.Uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var hdr Header
			if err := reader.ReadJSON(&hdr); err != nil {
				return
			}
			if _, _, err := reader.ReadMessage(); err != nil {
				return
			}
			last.Store(hdr.Frame)
		}
	}()

	img := noiseImage(512, 512, 2)
	deadline := time.Now().Add(10 * time.Second)
	for i := uint64(1); h.Clients() > 1; i++ {
		if time.Now().After(deadline) {
			t.Fatal("stalled viewer was never dropped")
		}
		h.Publish(img, pipeline.Frame{Index: i})
		time.Sleep(10 * time.Millisecond)
	}

	// The reading viewer is still connected and receives what follows. Its
	// queue may be full, so keep publishing until the frame lands.
	const after = 1 << 20
	small := noiseImage(16, 16, 3)
	waitFor(t, func() bool {
		h.Publish(small, pipeline.Frame{Index: after})
		return last.Load() == after
	})
	select {
	case <-done:
		t.Error("reading viewer was disconnected")
	default:
	}
}

func TestDownscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))

	if got := downscale(img, 0); got != img {
		t.Error("width 0 should leave the image unchanged")
	}
	if got := downscale(img, 200); got != img {
		t.Error("upscaling should not happen")
	}
	if got := downscale(img, 40).Bounds(); got.Dx() != 40 || got.Dy() != 20 {
		t.Errorf("downscaled to %v, want 40x20", got)
	}
}
