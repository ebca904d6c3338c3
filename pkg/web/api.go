package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dbehnke/reflector-nexus/pkg/database"
	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

const (
	defaultPerPage = 25
	maxPerPage     = 200
	maxBodyBytes   = 4096
)

// statusModes is the order modes are listed in by /reflector/status
var statusModes = []report.Mode{report.ModeP25, report.ModeNXDN, report.ModeYSF, report.ModeM17}

// Reflectors is the management surface the API drives
type Reflectors interface {
	Lookup(mode string) (reflector.Controller, bool)
	Disconnect(mode, callsign string) bool
	Block(mode, callsign string) bool
	UnBlock(mode, callsign string) bool
}

// CallStore provides call history
type CallStore interface {
	GetRecentPaginated(mode string, page, perPage int) ([]database.Call, int64, error)
}

// API handles REST API endpoints
type API struct {
	reflectors Reflectors
	calls      CallStore
	auth       *Authenticator
	logger     *logger.Logger
}

// NewAPI creates a new API instance. calls may be nil when call history is
// disabled.
func NewAPI(reflectors Reflectors, calls CallStore, auth *Authenticator, log *logger.Logger) *API {
	return &API{
		reflectors: reflectors,
		calls:      calls,
		auth:       auth,
		logger:     log,
	}
}

// Register mounts the API routes on mux
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth", a.HandleAuth)
	mux.HandleFunc("POST /reflector/command", a.auth.Require(a.HandleCommand))
	mux.HandleFunc("GET /reflector/status", a.auth.Require(a.HandleAllStatus))
	mux.HandleFunc("GET /reflector/{mode}/status", a.auth.Require(a.HandleStatus))
	mux.HandleFunc("GET /reflector/{mode}/peers", a.auth.Require(a.HandlePeers))
	mux.HandleFunc("GET /api/calls", a.HandleCalls)
	mux.HandleFunc("GET /api/system", a.auth.Require(a.HandleSystem))
}

type authRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	Message string `json:"Message"`
	Token   string `json:"Token,omitempty"`
}

// HandleAuth exchanges the management password for a bearer token
func (a *API) HandleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusUnauthorized, authResponse{Message: "Invalid Credentials"})
		return
	}

	token, ok := a.auth.Login(req.Password)
	if !ok {
		a.logger.Warn("Rejected management login", logger.String("remote", r.RemoteAddr))
		a.writeJSON(w, http.StatusUnauthorized, authResponse{Message: "Invalid Credentials"})
		return
	}
	a.logger.Info("Management login", logger.String("remote", r.RemoteAddr))
	a.writeJSON(w, http.StatusOK, authResponse{Message: "Authenticated", Token: token})
}

type commandRequest struct {
	Action   string `json:"action"`
	Mode     string `json:"mode"`
	Callsign string `json:"callsign"`
}

type commandResponse struct {
	Success bool `json:"Success"`
}

type messageResponse struct {
	Message string `json:"Message"`
}

// HandleCommand runs disconnect, block or unblock against one reflector.
// Unknown actions and modes report Success false.
func (a *API) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil || req.Action == "" || req.Mode == "" || req.Callsign == "" {
		a.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request data"})
		return
	}

	var ok bool
	switch strings.ToLower(req.Action) {
	case "disconnect":
		ok = a.reflectors.Disconnect(req.Mode, req.Callsign)
	case "block":
		ok = a.reflectors.Block(req.Mode, req.Callsign)
	case "unblock":
		ok = a.reflectors.UnBlock(req.Mode, req.Callsign)
	}

	a.logger.Info("Management command",
		logger.String("action", req.Action),
		logger.String("mode", req.Mode),
		logger.String("callsign", req.Callsign),
		logger.Bool("success", ok))
	a.writeJSON(w, http.StatusOK, commandResponse{Success: ok})
}

type modeStatus struct {
	Mode   string      `json:"Mode"`
	Status interface{} `json:"Status"`
}

// HandleAllStatus lists the status of every protocol, "Not Found" for
// those that are not running
func (a *API) HandleAllStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make([]modeStatus, 0, len(statusModes))
	for _, mode := range statusModes {
		entry := modeStatus{Mode: mode.String(), Status: "Not Found"}
		if c, ok := a.reflectors.Lookup(mode.String()); ok {
			entry.Status = c.Status()
		}
		statuses = append(statuses, entry)
	}
	a.writeJSON(w, http.StatusOK, statuses)
}

// HandleStatus returns the status of one protocol
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	mode := r.PathValue("mode")
	c, ok := a.reflectors.Lookup(mode)
	if !ok {
		http.Error(w, "Reflector type '"+mode+"' not found", http.StatusNotFound)
		return
	}
	a.writeJSON(w, http.StatusOK, struct {
		Status reflector.Status `json:"Status"`
	}{Status: c.Status()})
}

type peerView struct {
	Callsign        string    `json:"callsign"`
	Address         string    `json:"address"`
	Module          string    `json:"module,omitempty"`
	ConnectedAt     time.Time `json:"connected_at"`
	ConnectedFor    string    `json:"connected_for"`
	LastActive      time.Time `json:"last_active"`
	LastHeard       string    `json:"last_heard"`
	Transmitting    bool      `json:"transmitting"`
	PacketsReceived uint64    `json:"packets_received"`
	PacketsSent     uint64    `json:"packets_sent"`
}

// HandlePeers lists the peers linked to one protocol
func (a *API) HandlePeers(w http.ResponseWriter, r *http.Request) {
	mode := r.PathValue("mode")
	c, ok := a.reflectors.Lookup(mode)
	if !ok {
		http.Error(w, "Reflector type '"+mode+"' not found", http.StatusNotFound)
		return
	}

	now := time.Now()
	infos := c.Peers()
	peers := make([]peerView, 0, len(infos))
	for _, p := range infos {
		peers = append(peers, peerView{
			Callsign:        p.Callsign,
			Address:         p.Address,
			Module:          p.Subchannel,
			ConnectedAt:     p.ConnectedAt,
			ConnectedFor:    strings.TrimSpace(humanize.RelTime(p.ConnectedAt, now, "", "")),
			LastActive:      p.LastActive,
			LastHeard:       humanize.RelTime(p.LastActive, now, "ago", "from now"),
			Transmitting:    p.Transmitting,
			PacketsReceived: p.PacketsReceived,
			PacketsSent:     p.PacketsSent,
		})
	}
	a.writeJSON(w, http.StatusOK, peers)
}

type callsResponse struct {
	Calls   []database.Call `json:"calls"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

// HandleCalls returns recent call history, newest first. Query parameters:
// mode, page and per_page.
func (a *API) HandleCalls(w http.ResponseWriter, r *http.Request) {
	if a.calls == nil {
		http.Error(w, "Call history is disabled", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	page := queryInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(q.Get("per_page"), defaultPerPage)
	if perPage < 1 {
		perPage = 1
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	mode := ""
	if name := q.Get("mode"); name != "" {
		m := report.ParseMode(name)
		if m == report.ModeUnknown {
			http.Error(w, "Unknown mode '"+name+"'", http.StatusBadRequest)
			return
		}
		mode = m.String()
	}

	calls, total, err := a.calls.GetRecentPaginated(mode, page, perPage)
	if err != nil {
		a.logger.Error("Failed to load call history", logger.Error(err))
		http.Error(w, "Failed to load call history", http.StatusInternalServerError)
		return
	}
	if calls == nil {
		calls = []database.Call{}
	}
	a.writeJSON(w, http.StatusOK, callsResponse{Calls: calls, Total: total, Page: page, PerPage: perPage})
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", logger.Error(err))
	}
}
