package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"gopkg.in/op/go-logging.v1"

	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/usecase"
)

// maxRecordBytes bounds a posted descriptor. A record is a few hundred
// bytes; anything past this is garbage.
const maxRecordBytes = 64 << 10

// DirectoryHandler serves the authority over HTTP: GET /directory hands
// out the signed document, POST /relays accepts descriptor registrations.
type DirectoryHandler struct {
	authority usecase.DirectoryAuthorityUseCase
	log       *logging.Logger
	metrics   http.Handler
}

// NewDirectoryHandler wires the authority usecase to HTTP. metrics may be
// nil, in which case /metrics is not served.
func NewDirectoryHandler(authority usecase.DirectoryAuthorityUseCase, log *logging.Logger, metrics http.Handler) *DirectoryHandler {
	return &DirectoryHandler{authority: authority, log: log, metrics: metrics}
}

func (h *DirectoryHandler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/directory", h.getDirectory)
	mux.HandleFunc("/relays", h.postRelay)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	return mux
}

func (h *DirectoryHandler) getDirectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc, err := h.authority.Document()
	if err != nil {
		h.log.Errorf("directory document: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	raw, err := vo.EncodeSignedDirectory(doc)
	if err != nil {
		h.log.Errorf("directory encode: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.Write(raw)
}

func (h *DirectoryHandler) postRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRecordBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	rec, err := vo.DecodeRelayRecord(raw)
	if err != nil {
		http.Error(w, "malformed record", http.StatusBadRequest)
		return
	}
	out, err := h.authority.Register(usecase.RegisterRelayInput{Record: rec})
	if err != nil {
		h.log.Infof("register rejected: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
