package display

import (
	"net/http"
)

// ServeHTTP streams the overlay to the browser as multipart JPEG frames
// until the client disconnects
func (o *Overlay) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	o.log.Infow("stream client connected", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	flusher, _ := w.(http.Flusher)
	var seq int64

	for {
		buf, next, err := o.Next(r.Context(), seq)

		if err != nil {
			o.log.Infow("stream client disconnected", "remote", r.RemoteAddr)
			return
		}

		seq = next

		w.Write([]byte("--frame\r\n"))
		w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
		w.Write(buf)

		if _, err := w.Write([]byte("\r\n")); err != nil {
			o.log.Debugw("stream write failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		if flusher != nil {
			flusher.Flush()
		}
	}
}
