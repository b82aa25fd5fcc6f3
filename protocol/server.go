package protocol

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/chunkd/logging"
)

// MaxRequestSize bounds an RPC request body.
const MaxRequestSize = 32 << 20

// RPCPath is the route of the message endpoint.
const RPCPath = "/v1/rpc/{type}"

// Server exposes a Mux over HTTP.
type Server struct {
	mux    *Mux
	router *mux.Router
	log    logrus.FieldLogger
}

// NewServer builds the HTTP handler for m. Extra routes (metrics, chunk
// downloads) can be added through Router().
func NewServer(m *Mux, log logrus.FieldLogger) *Server {
	s := &Server{mux: m, router: mux.NewRouter(), log: logging.OrDiscard(log)}
	s.router.HandleFunc(RPCPath, s.handleRPC).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return s
}

// Router returns the underlying gorilla router.
func (s *Server) Router() *mux.Router { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	msgType := mux.Vars(r)["type"]

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestSize+1))
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, &Envelope{Error: NewError(CodeInvalidParams, err.Error())})
		return
	}
	if len(body) > MaxRequestSize {
		writeEnvelope(w, http.StatusRequestEntityTooLarge, &Envelope{Error: NewError(CodeInvalidParams, "request too large")})
		return
	}
	if !json.Valid(body) {
		writeEnvelope(w, http.StatusBadRequest, &Envelope{Error: NewError(CodeInvalidParams, "malformed JSON")})
		return
	}

	tuple, err := s.mux.Dispatch(r.Context(), msgType, body)
	if err != nil {
		writeEnvelope(w, http.StatusOK, &Envelope{Error: AsError(err)})
		return
	}
	encoded, err := encodeTuple(tuple)
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, &Envelope{Error: AsError(err)})
		return
	}
	writeEnvelope(w, http.StatusOK, &Envelope{Result: encoded})
}

func writeEnvelope(w http.ResponseWriter, status int, env *Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
