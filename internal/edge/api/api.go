// Package api implements the edge's control-plane HTTP surface: the six
// bearer-authenticated endpoints of spec.md §6, built on
// github.com/julienschmidt/httprouter the way gravitational/teleport's
// control plane does.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/tomasen/realip"

	"github.com/halcyonlabs/revtun/internal/edge"
	"github.com/halcyonlabs/revtun/internal/rpshare"
)

// API wires edge.State to the control-plane HTTP endpoints.
type API struct {
	logger     rpshare.Logger
	state      *edge.State
	workerPort uint16
}

// New builds an API. workerPort is the port the worker server is bound
// to, returned to clients by /connect.
func New(logger rpshare.Logger, state *edge.State, workerPort uint16) *API {
	return &API{logger: logger.Fork("api"), state: state, workerPort: workerPort}
}

// Router builds the httprouter.Router exposing the unauthenticated
// health endpoint and the six authenticated ones.
func (a *API) Router() *httprouter.Router {
	r := httprouter.New()
	r.GET("/api/v1/health", a.health)
	r.GET("/api/v1/check_authorization", a.auth(a.checkAuthorization))
	r.GET("/api/v1/connect", a.auth(a.connect))
	r.GET("/api/v1/goodbye", a.auth(a.goodbye))
	r.POST("/api/v1/edge", a.auth(a.createEdge))
	r.DELETE("/api/v1/edge", a.auth(a.deleteEdge))
	r.DELETE("/api/v1/edge/all", a.auth(a.deleteAllEdges))
	return r
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, token string)

// auth extracts the bearer token and rejects unknown secrets with 403
// before the wrapped handler runs.
func (a *API) auth(next handlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := bearerToken(r)
		if _, ok := a.state.Lookup(token); !ok {
			a.logger.WLogf("%s: forbidden (addr %s)", r.URL.Path, realip.FromRequest(r))
			writeJSON(w, http.StatusForbidden, map[string]string{"status": "forbidden"})
			return
		}
		next(w, r, ps, token)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (a *API) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) checkAuthorization(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) connect(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "worker": a.workerPort})
}

func (a *API) goodbye(w http.ResponseWriter, r *http.Request, _ httprouter.Params, token string) {
	if err := a.state.Goodbye(token); err != nil {
		a.logger.ELogf("goodbye: %s", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) createEdge(w http.ResponseWriter, r *http.Request, _ httprouter.Params, token string) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "malformed request"})
		return
	}
	name := r.FormValue("name")
	target := r.FormValue("target")
	protocol := edge.Protocol(r.FormValue("protocol"))
	mode := edge.Mode(r.FormValue("mode"))

	port, err := a.state.CreateTunnel(token, name, target, protocol, mode)
	if err != nil {
		status, body := statusAndBodyFor(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "port": port})
}

func (a *API) deleteEdge(w http.ResponseWriter, r *http.Request, _ httprouter.Params, token string) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "malformed request"})
		return
	}
	target := r.FormValue("target")
	if err := a.state.DeleteTunnel(token, target); err != nil {
		status, body := statusAndBodyFor(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) deleteAllEdges(w http.ResponseWriter, r *http.Request, _ httprouter.Params, token string) {
	if err := a.state.DeleteAllTunnels(token); err != nil {
		status, body := statusAndBodyFor(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusAndBodyFor maps the edge package's sentinel errors to the HTTP
// statuses and bodies of spec.md §6/§7.
func statusAndBodyFor(err error) (int, map[string]string) {
	switch err {
	case edge.ErrUnknownSecret:
		return http.StatusForbidden, map[string]string{"status": "forbidden"}
	case edge.ErrQuotaExceeded:
		return http.StatusTooManyRequests, map[string]string{"status": "too many tunnels"}
	case edge.ErrBindFailed:
		return http.StatusBadRequest, map[string]string{"status": "failed to reserve port"}
	case edge.ErrChannelSend:
		return http.StatusBadRequest, map[string]string{"status": "failed to request tunnel creation"}
	case edge.ErrNoSuchTunnel:
		return http.StatusBadRequest, map[string]string{"status": "no such tunnel"}
	default:
		return http.StatusBadRequest, map[string]string{"status": err.Error()}
	}
}
