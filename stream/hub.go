// Package stream broadcasts rendered frames to websocket viewers and accepts
// their color toggle.
//
// Each broadcast is a JSON header message followed by a binary PNG message.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/image/draw"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/pipeline"
)

// Controls is the part of the pipeline viewers may change.
type Controls interface {
	SetColorCycle(on bool)
	ToggleColorCycle() bool
}

// Header describes the PNG message that follows it.
type Header struct {
	Type       string  `json:"type"`
	Frame      uint64  `json:"frame"`
	Time       float64 `json:"time"`
	ColorCycle bool    `json:"colorCycle"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// queueSize is how many encoded frames may wait for a slow viewer before new
// frames are skipped for it.
const queueSize = 2

// defaultWriteTimeout bounds a single frame write when the config leaves it unset.
const defaultWriteTimeout = 2 * time.Second

// frame is one encoded broadcast, shared read-only by every viewer queue.
type frame struct {
	header Header
	png    []byte
}

// client is one viewer. Only its writer goroutine writes to conn.
type client struct {
	conn *websocket.Conn
	send chan frame
}

// Hub tracks connected viewers and fans frames out to them. Broadcasting
// never waits on a viewer: each has its own queue drained by a writer
// goroutine, and frames that do not fit are skipped for that viewer.
type Hub struct {
	cfg          config.StreamConfig
	controls     Controls
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client

	dropped atomic.Uint64

	server *http.Server
}

// NewHub creates a hub. controls may be nil to ignore viewer input.
func NewHub(cfg config.StreamConfig, controls Controls) *Hub {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Hub{
		cfg:      cfg,
		controls: controls,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		writeTimeout: timeout,
		clients:      make(map[*websocket.Conn]*client),
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many per-viewer frames were skipped because the
// viewer's queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// ServeHTTP upgrades the request and reads control messages until the viewer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan frame, queueSize)}
	h.clientsMu.Lock()
	h.clients[conn] = c
	h.clientsMu.Unlock()
	defer h.remove(c)
	go h.writeLoop(c)
	slog.Info("viewer connected", "remote", r.RemoteAddr)

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		h.handle(msg)
	}
}

func (h *Hub) handle(msg map[string]any) {
	if h.controls == nil {
		return
	}
	if on, ok := msg["colorCycle"].(bool); ok {
		h.controls.SetColorCycle(on)
		slog.Info("color cycle set by viewer", "enabled", on)
	}
	if toggle, ok := msg["toggle"].(string); ok && toggle == "color" {
		slog.Info("color cycle toggled by viewer", "enabled", h.controls.ToggleColorCycle())
	}
}

// Publish broadcasts img every Interval frames. It matches
// renderer.SoftwareRenderer.OnFrame.
func (h *Hub) Publish(img *image.RGBA, f pipeline.Frame) {
	if f.Index%uint64(max(h.cfg.Interval, 1)) != 0 || h.Clients() == 0 {
		return
	}
	if err := h.Broadcast(img, f); err != nil {
		slog.Warn("stream broadcast failed", "frame", f.Index, "error", err)
	}
}

// Broadcast downscales img to the configured width, encodes it and queues it
// for every viewer. It does not wait for delivery.
func (h *Hub) Broadcast(img *image.RGBA, f pipeline.Frame) error {
	scaled := downscale(img, h.cfg.Width)
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return fmt.Errorf("encoding frame %d: %w", f.Index, err)
	}
	msg := frame{
		header: Header{
			Type:       "frame",
			Frame:      f.Index,
			Time:       f.Time,
			ColorCycle: f.ColorCycle,
			Width:      scaled.Bounds().Dx(),
			Height:     scaled.Bounds().Dy(),
		},
		png: buf.Bytes(),
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// writeLoop sends queued frames to one viewer until its queue is closed or a
// write fails. A write that exceeds the timeout disconnects the viewer.
func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		err := c.conn.WriteJSON(msg.header)
		if err == nil {
			err = c.conn.WriteMessage(websocket.BinaryMessage, msg.png)
		}
		if err != nil {
			slog.Warn("websocket write failed, dropping viewer", "error", err)
			// Unblocks the read loop in ServeHTTP, which removes the client.
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

// remove unregisters a viewer and closes its queue. Safe to call twice.
func (h *Hub) remove(c *client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if h.clients[c.conn] != c {
		return
	}
	delete(h.clients, c.conn)
	close(c.send)
}

// downscale resizes img to width, keeping its aspect. Images already at most
// width wide are returned unchanged.
func downscale(img *image.RGBA, width int) *image.RGBA {
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		return img
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Start serves the hub on addr at /ws in the background.
func (h *Hub) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Surface immediate bind errors.
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("stream server: %w", err)
		}
	case <-time.After(100 * time.Millisecond):
	}
	slog.Info("stream server listening", "addr", addr)
	return nil
}

// Shutdown stops the server and disconnects viewers.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.clientsMu.RLock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clientsMu.RUnlock()
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
