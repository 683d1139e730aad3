package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// FrameSource is a display that fans out encoded frames.
type FrameSource interface {
	Watch() (<-chan []byte, func())
}

// StreamHandler serves the presented practice view as MJPEG.
type StreamHandler struct {
	source FrameSource
	ctx    context.Context
}

// NewStreamHandler creates a new StreamHandler. Streams end when ctx is done.
func NewStreamHandler(ctx context.Context, source FrameSource) *StreamHandler {
	return &StreamHandler{source: source, ctx: ctx}
}

// Serve streams frames to the client until it disconnects.
func (h *StreamHandler) Serve(c *gin.Context) {
	frames, cancel := h.source.Watch()
	defer cancel()

	w := c.Writer
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case jpeg := <-frames:
			if err := writeFrame(w, jpeg); err != nil {
				return
			}
			w.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}
