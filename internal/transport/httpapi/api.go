// Package httpapi exposes game state, session issuance and the admin
// controls over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"arcanecycles.io/internal/auth"
	"arcanecycles.io/internal/persistence/snapshot"
	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/game"
)

type API struct {
	loop     *game.Loop
	issuer   *auth.Issuer
	adminKey string
	log      zerolog.Logger
}

// New builds the API. An empty adminKey disables admin sessions.
func New(loop *game.Loop, issuer *auth.Issuer, adminKey string, logger zerolog.Logger) *API {
	return &API{loop: loop, issuer: issuer, adminKey: adminKey, log: logger.With().Str("component", "httpapi").Logger()}
}

// Register mounts every route on r.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/state", a.handleState).Methods(http.MethodGet)
	v1.HandleFunc("/session", a.handleSession).Methods(http.MethodPost)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(a.issuer.Middleware, auth.RequireAdmin)
	admin.HandleFunc("/phase/advance", a.control(func(g *game.Game) error { return g.AdvancePhase() })).Methods(http.MethodPost)
	admin.HandleFunc("/phase/force", a.handleForce).Methods(http.MethodPost)
	admin.HandleFunc("/pause", a.control(func(g *game.Game) error { g.PauseGame(); return nil })).Methods(http.MethodPost)
	admin.HandleFunc("/resume", a.control(func(g *game.Game) error { return g.ResumeGame() })).Methods(http.MethodPost)
	admin.HandleFunc("/recover", a.handleRecover).Methods(http.MethodPost)
	admin.HandleFunc("/saves", a.handleListSaves).Methods(http.MethodGet)
	admin.HandleFunc("/saves/{slot}", a.handleSave).Methods(http.MethodPost)
	admin.HandleFunc("/saves/{slot}/load", a.handleLoad).Methods(http.MethodPost)
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	var v game.View
	if err := a.loop.Call(r.Context(), func(g *game.Game) { v = g.View() }); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type sessionRequest struct {
	PlayerID string `json:"player_id"`
	AdminKey string `json:"admin_key,omitempty"`
}

type sessionResponse struct {
	Token    string `json:"token"`
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Admin    bool   `json:"admin,omitempty"`
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.Validationf(protocol.ErrProtoBadRequest, "bad session request: %v", err))
		return
	}
	admin := req.AdminKey != ""
	if admin && (a.adminKey == "" || subtle.ConstantTimeCompare([]byte(req.AdminKey), []byte(a.adminKey)) != 1) {
		writeError(w, fault.Actionf(protocol.ErrUnauthorized, "bad admin key"))
		return
	}

	var gameID, name string
	known := false
	if err := a.loop.Call(r.Context(), func(g *game.Game) {
		gameID = g.ID()
		if p, ok := g.Registry().Player(req.PlayerID); ok {
			known, name = true, p.Name
		}
	}); err != nil {
		writeError(w, err)
		return
	}
	if admin && req.PlayerID == "" {
		req.PlayerID, known = "admin", true
	}
	if !known {
		writeError(w, fault.Validationf(protocol.ErrInvalidTarget, "unknown player %q", req.PlayerID))
		return
	}
	tok, err := a.issuer.Issue(gameID, req.PlayerID, name, admin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: tok, GameID: gameID, PlayerID: req.PlayerID, Admin: admin})
}

// control runs fn on the loop and answers with the resulting view.
func (a *API) control(fn func(g *game.Game) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			opErr error
			v     game.View
		)
		if err := a.loop.Call(r.Context(), func(g *game.Game) {
			opErr = fn(g)
			v = g.View()
		}); err != nil {
			writeError(w, err)
			return
		}
		if opErr != nil {
			writeError(w, opErr)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (a *API) handleForce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phase string `json:"phase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.Validationf(protocol.ErrProtoBadRequest, "bad request body: %v", err))
		return
	}
	a.control(func(g *game.Game) error { return g.ForceAdvanceToPhase(req.Phase) })(w, r)
}

func (a *API) handleRecover(w http.ResponseWriter, r *http.Request) {
	var cleared error
	a.control(func(g *game.Game) error {
		cleared = g.Recover()
		if cleared != nil {
			a.log.Warn().Err(cleared).Msg("fault cleared by admin")
		}
		return nil
	})(w, r)
}

func (a *API) handleListSaves(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	var (
		slots []string
		opErr error
	)
	if err := a.loop.Call(ctx, func(g *game.Game) { slots, opErr = g.Saves(ctx) }); err != nil {
		writeError(w, err)
		return
	}
	if opErr != nil {
		writeError(w, opErr)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (a *API) handleSave(w http.ResponseWriter, r *http.Request) {
	a.persist(w, r, (*game.Game).Save)
}

func (a *API) handleLoad(w http.ResponseWriter, r *http.Request) {
	a.persist(w, r, (*game.Game).Load)
}

func (a *API) persist(w http.ResponseWriter, r *http.Request, op func(*game.Game, context.Context, string) (snapshot.Header, error)) {
	slot := mux.Vars(r)["slot"]
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	var (
		hdr   snapshot.Header
		opErr error
	)
	if err := a.loop.Call(ctx, func(g *game.Game) { hdr, opErr = op(g, ctx, slot) }); err != nil {
		writeError(w, err)
		return
	}
	if opErr != nil {
		writeError(w, opErr)
		return
	}
	writeJSON(w, http.StatusOK, hdr)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, game.ErrLoopStopped) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: protocol.ErrInternal, Message: err.Error()})
		return
	}
	fe := fault.From(err)
	writeJSON(w, statusFor(fe), errorBody{Code: fe.Code, Message: fe.Error()})
}

func statusFor(fe *fault.Error) int {
	switch fe.Code {
	case protocol.ErrUnauthorized:
		return http.StatusUnauthorized
	case protocol.ErrNoPermission, protocol.ErrNotYourTurn:
		return http.StatusForbidden
	case protocol.ErrInvalidTarget:
		return http.StatusNotFound
	case protocol.ErrConflict, protocol.ErrGameEnded, protocol.ErrGamePaused:
		return http.StatusConflict
	case protocol.ErrRateLimit:
		return http.StatusTooManyRequests
	}
	switch fe.Kind {
	case fault.Validation, fault.Resource:
		return http.StatusBadRequest
	case fault.Action:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
