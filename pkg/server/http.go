package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/downfa11-org/rill/pkg/controller"
	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
)

// CommandPath is the endpoint every HTTP command is posted to.
const CommandPath = "/command"

const contentType = "application/octet-stream"

type httpHandler struct {
	ch       *controller.CommandHandler
	maxBytes int
}

// NewHTTPHandler serves commands posted to CommandPath. The request body may
// be compressed with any encoding util.DecompressMessage understands; the
// response uses the same encoding.
func NewHTTPHandler(ch *controller.CommandHandler, maxCommandSize int) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(CommandPath, &httpHandler{ch: ch, maxBytes: maxCommandSize})
	return mux
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	encoding := r.Header.Get("Content-Encoding")
	if !util.ValidCompression(encoding) {
		http.Error(w, "unsupported content encoding", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(h.maxBytes)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.Header().Set("Connection", "close")
			h.write(w, "", protocol.Error(types.PayloadTooLarge(int(tooLarge.Limit)+1, h.maxBytes)))
			return
		}
		util.Warn("Failed to read command from %s: %v", r.RemoteAddr, err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	raw, err := util.DecompressMessage(body, encoding, h.maxBytes)
	if err != nil {
		w.Header().Set("Connection", "close")
		h.write(w, "", protocol.Error(types.InvalidCommand("%s body: %v", encoding, err)))
		return
	}

	resp, fatal := h.ch.Handle(r.Context(), controller.NewClientContext("http", r.RemoteAddr), raw)
	if fatal {
		w.Header().Set("Connection", "close")
	}
	h.write(w, encoding, resp)
}

func (h *httpHandler) write(w http.ResponseWriter, encoding string, resp []byte) {
	out, err := util.CompressMessage(resp, encoding)
	if err != nil {
		util.Error("Failed to compress response: %v", err)
		out, encoding = resp, ""
	}
	w.Header().Set("Content-Type", contentType)
	if encoding != "" && encoding != util.CompressionNone {
		w.Header().Set("Content-Encoding", encoding)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		util.Debug("Failed to write response: %v", err)
	}
}
