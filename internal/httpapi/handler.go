// Package httpapi exposes the signing gateway over HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tradewind-labs/signing_service/internal/auth"
	"github.com/tradewind-labs/signing_service/internal/chain"
	"github.com/tradewind-labs/signing_service/internal/dispatch"
	"github.com/tradewind-labs/signing_service/internal/middleware"
	"github.com/tradewind-labs/signing_service/internal/permission"
	"github.com/tradewind-labs/signing_service/internal/wallet"
	"github.com/tradewind-labs/signing_service/pkg/logger"
)

// Handler serves the gateway routes.
type Handler struct {
	store      *auth.Store
	tokens     *auth.TokenService
	dispatcher *dispatch.Dispatcher
	registry   *wallet.Registry
	log        *logger.Logger
}

// Config configures the handler.
type Config struct {
	Store      *auth.Store
	Tokens     *auth.TokenService
	Dispatcher *dispatch.Dispatcher
	Registry   *wallet.Registry
	Log        *logger.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(cfg Config) *Handler {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{
		store:      cfg.Store,
		tokens:     cfg.Tokens,
		dispatcher: cfg.Dispatcher,
		registry:   cfg.Registry,
		log:        log,
	}
}

// RegisterRoutes attaches all gateway routes to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)

	r.HandleFunc("/order/sign", h.sign(decodeNewOrder)).Methods(http.MethodPost)
	r.HandleFunc("/order/broadcast", h.broadcast(decodeNewOrder)).Methods(http.MethodPost)
	r.HandleFunc("/order/cancel/sign", h.sign(decodeCancelOrder)).Methods(http.MethodPost)
	r.HandleFunc("/order/cancel/broadcast", h.broadcast(decodeCancelOrder)).Methods(http.MethodPost)
	r.HandleFunc("/transfer/sign", h.sign(decodeTransfer)).Methods(http.MethodPost)
	r.HandleFunc("/transfer/broadcast", h.broadcast(decodeTransfer)).Methods(http.MethodPost)
	r.HandleFunc("/freeze/sign", h.sign(decodeFreeze)).Methods(http.MethodPost)
	r.HandleFunc("/freeze/broadcast", h.broadcast(decodeFreeze)).Methods(http.MethodPost)
	r.HandleFunc("/unfreeze/sign", h.sign(decodeUnfreeze)).Methods(http.MethodPost)
	r.HandleFunc("/unfreeze/broadcast", h.broadcast(decodeUnfreeze)).Methods(http.MethodPost)

	r.HandleFunc("/wallet", h.handleListWallets).Methods(http.MethodGet)
	r.HandleFunc("/wallet/resync", h.handleResync).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{name}", h.handleGetWallet).Methods(http.MethodGet)
}

// SkipAuthPaths lists routes served without a bearer token.
func SkipAuthPaths() []string {
	return []string{"/healthz", "/metrics", "/auth/login"}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	user := h.store.Authenticate(req.Username, req.Password)
	if user == nil {
		writeError(w, http.StatusBadRequest, errors.New("incorrect username or password"))
		return
	}
	token, err := h.tokens.Issue(user.Username)
	if err != nil {
		h.log.WithError(err).Error("token issuance failed")
		writeError(w, http.StatusInternalServerError, errors.New("could not issue token"))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}

// msgDecoder parses the operation-specific msg body for one route.
type msgDecoder func(raw json.RawMessage) (chain.Msg, error)

func decodeNewOrder(raw json.RawMessage) (chain.Msg, error) {
	var m chain.NewOrderMsg
	if err := strictUnmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeCancelOrder(raw json.RawMessage) (chain.Msg, error) {
	var m chain.CancelOrderMsg
	if err := strictUnmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeTransfer(raw json.RawMessage) (chain.Msg, error) {
	var m chain.TransferMsg
	if err := strictUnmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeFreeze(raw json.RawMessage) (chain.Msg, error) {
	var m chain.FreezeMsg
	if err := strictUnmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeUnfreeze(raw json.RawMessage) (chain.Msg, error) {
	var m chain.UnfreezeMsg
	if err := strictUnmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type msgRequest struct {
	WalletName string          `json:"wallet_name"`
	Msg        json.RawMessage `json:"msg"`
	Sync       *bool           `json:"sync,omitempty"`
}

func (h *Handler) decodeMsgRequest(r *http.Request, decode msgDecoder) (dispatch.Request, error) {
	var body msgRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		return dispatch.Request{}, fmt.Errorf("invalid request body: %w", err)
	}
	if body.WalletName == "" {
		return dispatch.Request{}, errors.New("wallet_name is required")
	}
	if len(body.Msg) == 0 {
		return dispatch.Request{}, errors.New("msg is required")
	}
	msg, err := decode(body.Msg)
	if err != nil {
		return dispatch.Request{}, fmt.Errorf("invalid msg: %w", err)
	}
	sync := true
	if body.Sync != nil {
		sync = *body.Sync
	}
	return dispatch.Request{
		User:       middleware.UserFromContext(r.Context()),
		WalletName: body.WalletName,
		ClientIP:   middleware.ClientIP(r),
		Msg:        msg,
		Sync:       sync,
	}, nil
}

type signResponse struct {
	WalletName string `json:"wallet_name"`
	SignedMsg  string `json:"signed_msg"`
}

func (h *Handler) sign(decode msgDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.decodeMsgRequest(r, decode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		signed, err := h.dispatcher.Sign(r.Context(), req)
		if err != nil {
			h.writeDispatchError(w, req.WalletName, dispatch.CapabilityFor(req.Msg), err)
			return
		}
		writeJSON(w, http.StatusOK, signResponse{WalletName: req.WalletName, SignedMsg: signed})
	}
}

func (h *Handler) broadcast(decode msgDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.decodeMsgRequest(r, decode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := h.dispatcher.Broadcast(r.Context(), req)
		if err != nil {
			h.writeDispatchError(w, req.WalletName, dispatch.CapabilityFor(req.Msg), err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type resyncRequest struct {
	WalletName string `json:"wallet_name"`
}

type resyncResponse struct {
	WalletName string `json:"wallet_name"`
	Sequence   uint64 `json:"sequence"`
}

func (h *Handler) handleResync(w http.ResponseWriter, r *http.Request) {
	var body resyncRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.WalletName == "" {
		writeError(w, http.StatusBadRequest, errors.New("wallet_name is required"))
		return
	}
	user := middleware.UserFromContext(r.Context())
	seq, err := h.dispatcher.Resync(r.Context(), user, body.WalletName, middleware.ClientIP(r))
	if err != nil {
		h.writeDispatchError(w, body.WalletName, permission.Resync, err)
		return
	}
	writeJSON(w, http.StatusOK, resyncResponse{WalletName: body.WalletName, Sequence: seq})
}

type walletSummary struct {
	Name         string                  `json:"name"`
	Environment  string                  `json:"environment"`
	Address      string                  `json:"address"`
	Capabilities []permission.Capability `json:"capabilities"`
	Granted      []permission.Capability `json:"granted"`
}

type walletDetail struct {
	walletSummary
	ChainID       string `json:"chain_id"`
	AccountNumber uint64 `json:"account_number"`
	Sequence      uint64 `json:"sequence"`
}

// handleListWallets returns the wallets the caller holds at least one grant
// on. Wallets without a grant are omitted rather than shown as denied, so the
// listing leaks nothing about the rest of the pool.
func (h *Handler) handleListWallets(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	summaries := make([]walletSummary, 0)
	for _, name := range h.registry.Names() {
		granted, ok := user.Grants[name]
		if !ok || len(granted) == 0 {
			continue
		}
		wl := h.registry.Resolve(name)
		summaries = append(summaries, walletSummary{
			Name:         wl.Name(),
			Environment:  string(wl.Environment()),
			Address:      wl.Address(),
			Capabilities: wl.Capabilities().List(),
			Granted:      granted.List(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"wallets": summaries})
}

func (h *Handler) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	user := middleware.UserFromContext(r.Context())
	wl := h.registry.Resolve(name)
	granted := user.Grants[name]
	// unknown wallets and ungranted wallets produce the same denial
	if wl == nil || len(granted) == 0 {
		writeError(w, http.StatusForbidden, fmt.Errorf("user has no access to wallet %s", name))
		return
	}
	accountNumber, sequence, err := wl.Account(r.Context())
	if err != nil {
		h.log.WithError(err).WithField("wallet", name).Error("account query failed")
		writeError(w, http.StatusBadGateway, errors.New("could not query wallet account"))
		return
	}
	writeJSON(w, http.StatusOK, walletDetail{
		walletSummary: walletSummary{
			Name:         wl.Name(),
			Environment:  string(wl.Environment()),
			Address:      wl.Address(),
			Capabilities: wl.Capabilities().List(),
			Granted:      granted.List(),
		},
		ChainID:       wl.ChainID(),
		AccountNumber: accountNumber,
		Sequence:      sequence,
	})
}

// writeDispatchError maps dispatcher failures onto HTTP statuses. Unknown
// wallet names are rendered as a user-level denial so callers cannot tell a
// wallet that does not exist from one they merely lack access to.
func (h *Handler) writeDispatchError(w http.ResponseWriter, walletName string, capability permission.Capability, err error) {
	var forbidden *permission.Forbidden
	var validation *dispatch.ValidationError
	var signing *dispatch.SigningError
	var broadcast *dispatch.BroadcastError
	switch {
	case errors.Is(err, dispatch.ErrUnknownWallet):
		denied := &permission.Forbidden{Level: permission.UserLevel, Capability: capability, Wallet: walletName}
		writeError(w, http.StatusForbidden, denied)
	case errors.Is(err, dispatch.ErrIPNotAllowed):
		writeError(w, http.StatusForbidden, err)
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, forbidden)
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation)
	case errors.As(err, &signing):
		h.log.WithError(err).WithField("wallet", walletName).Error("signing failure")
		writeError(w, http.StatusInternalServerError, signing)
	case errors.As(err, &broadcast):
		resp := map[string]interface{}{"error": broadcast.Error()}
		if broadcast.Result != nil {
			resp["result"] = broadcast.Result
		}
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		h.log.WithError(err).WithField("wallet", walletName).Error("unhandled dispatch failure")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func strictUnmarshal(raw json.RawMessage, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
