// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package httpadapter is the JSON façade in front of the connection pool:
// it accepts a POST of {name, amount, class}, checks out a connection,
// speaks the wire protocol, and maps the reply onto an HTTP status code
// and JSON body.
//
// The handler is one struct holding the server's shared state, with a
// sendReply/sendError pair producing JSON bodies tagged with a
// Content-Type and X-Content-Type-Options header. It has exactly one path
// and one method, so it is wired with net/http.ServeMux directly rather
// than any router library.
package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/bitmark-inc/logger"

	"github.com/stockvault/certissuer/connpool"
	"github.com/stockvault/certissuer/counter"
	"github.com/stockvault/certissuer/fault"
	"github.com/stockvault/certissuer/wire"
)

// unknownClassCacheTTL bounds how long a rejected class tag is remembered
// before the adapter will try the pool again, in case the engine's
// configuration is reloaded with a wider class set.
const unknownClassCacheTTL = 30 * time.Second

// Handler serves the issuance endpoint.
type Handler struct {
	pool        *connpool.Pool
	log         *logger.L
	companyName string

	unknownClasses *gocache.Cache
	requestCount   counter.Counter
}

// New constructs a Handler. companyName is echoed in every successful
// response body per the company-name supplemented feature.
func New(pool *connpool.Pool, companyName string, log *logger.L) *Handler {
	return &Handler{
		pool:           pool,
		log:            log,
		companyName:    companyName,
		unknownClasses: gocache.New(unknownClassCacheTTL, unknownClassCacheTTL*2),
	}
}

// Mux builds a ServeMux with the handler registered at "/", which accepts
// a grant request on any path as long as the method is POST.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.serveGrant)
	return mux
}

type grantRequest struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Class  string `json:"class"`
}

type grantResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Amount  int64  `json:"amount"`
	Class   string `json:"class"`
	Company string `json:"company"`
}

func (h *Handler) serveGrant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, fault.ReasonMalformed.String(), http.StatusMethodNotAllowed)
		return
	}

	h.requestCount.Increment()
	defer h.requestCount.Decrement()

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, fault.ReasonMalformed.String(), http.StatusBadRequest)
		return
	}

	if req.Amount <= 0 || req.Amount > 0xFFFFFFFF {
		sendError(w, fault.ReasonInvalidAmount.String(), http.StatusBadRequest)
		return
	}

	if _, cached := h.unknownClasses.Get(req.Class); cached {
		sendError(w, fault.ReasonUnknownClass.String(), http.StatusBadRequest)
		return
	}

	reply, err := h.grant(req.Class, req.Name, uint32(req.Amount))
	if err != nil {
		if h.log != nil {
			h.log.Warnf("grant request failed: %s", err)
		}
		sendError(w, "BACKEND_UNAVAILABLE", http.StatusServiceUnavailable)
		return
	}

	if reply.Reason != fault.ReasonOK {
		if reply.Reason == fault.ReasonUnknownClass {
			h.unknownClasses.Set(req.Class, struct{}{}, gocache.DefaultExpiration)
		}
		sendError(w, reply.Reason.String(), statusForReason(reply.Reason))
		return
	}

	sendReply(w, grantResponse{
		ID:      fmt.Sprintf("%s-%d", req.Class, reply.CertificateNumber),
		Name:    req.Name,
		Amount:  req.Amount,
		Class:   req.Class,
		Company: h.companyName,
	})
}

// grant checks out a pooled connection, performs one wire round trip, and
// returns the connection — healthy unless the round trip itself failed.
func (h *Handler) grant(class, holder string, amount uint32) (*wire.Reply, error) {
	conn, err := h.pool.Checkout()
	if err != nil {
		return nil, fault.ErrBackendUnavailable
	}

	payload, err := wire.EncodeRequest(&wire.Request{ClassTag: class, Amount: amount, HolderName: holder})
	if err != nil {
		h.pool.Return(conn, true)
		return nil, fault.ErrMalformedFrame
	}

	if err := wire.WriteFrame(conn, payload); err != nil {
		h.pool.Return(conn, false)
		return nil, fault.ErrBackendUnavailable
	}

	replyPayload, err := wire.ReadFrame(conn)
	if err != nil {
		h.pool.Return(conn, false)
		return nil, fault.ErrBackendUnavailable
	}

	reply, err := wire.DecodeReply(replyPayload)
	if err != nil {
		h.pool.Return(conn, false)
		return nil, fault.ErrMalformedFrame
	}

	h.pool.Return(conn, true)
	return reply, nil
}

// statusForReason maps an engine failure reason onto an HTTP status code.
func statusForReason(reason fault.Reason) int {
	switch reason {
	case fault.ReasonInsufficientShares:
		return http.StatusForbidden
	case fault.ReasonUnknownClass, fault.ReasonInvalidAmount, fault.ReasonMalformed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

func sendReply(w http.ResponseWriter, data interface{}) {
	text, err := json.Marshal(data)
	if err != nil {
		sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(text)
}

func sendError(w http.ResponseWriter, message string, code int) {
	text, err := json.Marshal(errorBody{Code: code, Error: message})
	if err != nil {
		http.Error(w, `{"code":500,"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	w.Write(text)
}
