package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/traceon/traceond/pkg/actions"
	"github.com/traceon/traceond/pkg/auth"
	"github.com/traceon/traceond/pkg/device"
	"github.com/traceon/traceond/pkg/errdefs"
	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/metrics"
	"github.com/traceon/traceond/pkg/notify"
	"github.com/traceon/traceond/pkg/projection"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

// Options tunes a Server
type Options struct {
	OfflineAfter      time.Duration
	NotificationLimit int
	Debug             bool
}

// Server is the HTTP and websocket surface of the daemon
type Server struct {
	store    store.Store
	provider *auth.Provider
	resolver *auth.Resolver
	actions  *actions.Service
	hub      *Hub
	opts     Options
	logger   zerolog.Logger

	httpServer *http.Server
}

// NewServer wires the API around an open store
func NewServer(st store.Store, provider *auth.Provider, resolver *auth.Resolver, svc *actions.Service, opts Options) *Server {
	s := &Server{
		store:    st,
		provider: provider,
		resolver: resolver,
		actions:  svc,
		hub:      NewHub(),
		opts:     opts,
		logger:   log.WithComponent("api"),
	}

	router := mux.NewRouter()

	// operational endpoints, unauthenticated
	router.Handle("/metrics", metrics.Handler())
	router.HandleFunc("/health", metrics.HealthHandler())
	router.HandleFunc("/ready", metrics.ReadyHandler())
	router.HandleFunc("/live", metrics.LivenessHandler())

	router.HandleFunc("/api/auth/signup", s.handleSignUp).Methods("POST")
	router.HandleFunc("/api/auth/login", s.handleLogin).Methods("POST")

	// websocket stays off the instrumented chain, the status recorder
	// would break the connection hijack
	router.Handle("/ws", s.authMiddleware(http.HandlerFunc(s.handleStream)))

	api := router.PathPrefix("/api").Subrouter()
	api.Use(instrumentMiddleware)
	api.Use(s.authMiddleware)

	api.HandleFunc("/parcels", s.handleListParcels).Methods("GET")
	api.HandleFunc("/parcels", s.handleCreateParcel).Methods("POST")
	api.HandleFunc("/parcels/{id}/interest", s.handleExpressInterest).Methods("POST")
	api.HandleFunc("/parcels/{id}/assign", s.handleAssign).Methods("POST")
	api.HandleFunc("/parcels/{id}/status", s.handleUpdateStatus).Methods("POST")
	api.HandleFunc("/parcels/{id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/parcels/{id}", s.handleDeleteParcel).Methods("DELETE")

	api.HandleFunc("/devices", s.handleListDevices).Methods("GET")
	api.HandleFunc("/devices/{id}/history", s.handleDeviceHistory).Methods("GET")

	api.HandleFunc("/notifications", s.handleNotifications).Methods("GET")
	api.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods("POST")

	api.HandleFunc("/users", s.handleListUsers).Methods("GET")
	api.HandleFunc("/users/me", s.handleUpdateSettings).Methods("PUT")
	api.HandleFunc("/users/{id}/approve", s.handleApproveUser).Methods("POST")
	api.HandleFunc("/users/{id}/reject", s.handleRejectUser).Methods("POST")

	s.httpServer = &http.Server{
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve runs the HTTP server on addr until Shutdown
func (s *Server) Serve(addr string) error {
	s.httpServer.Addr = addr
	go s.hub.Run()

	metrics.RegisterComponent("api", true, "serving")
	s.logger.Info().Str("addr", addr).Msg("API listening")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown disconnects websocket clients and drains the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

// actor resolves the request identity into an acting principal. Every
// authenticated handler goes through here, so a ban or an approval
// revocation takes effect on the next request.
func (s *Server) actor(r *http.Request) (actions.Actor, error) {
	id, ok := r.Context().Value(identityContextKey).(auth.Identity)
	if !ok {
		return actions.Actor{}, errdefs.ErrAuthFailure
	}

	profile, err := s.resolver.Resolve(id)
	if err != nil {
		return actions.Actor{}, err
	}
	if profile == nil {
		return actions.Actor{}, errdefs.PermissionDenied("no profile for this account")
	}
	if profile.Banned {
		return actions.Actor{}, errdefs.PermissionDenied("account is banned")
	}
	if !profile.Verified {
		return actions.Actor{}, errdefs.PermissionDenied("account is awaiting approval")
	}

	return actions.Actor{
		ID:    id.ID,
		Email: id.Email,
		Name:  profile.Name,
		Role:  profile.Role,
	}, nil
}

type signUpRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     types.Role `json:"role"`
	Name     string     `json:"name"`
}

type authResponse struct {
	Token   string             `json:"token"`
	UserID  string             `json:"userId"`
	Profile *types.UserProfile `json:"profile,omitempty"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.provider.SignUp(req.Email, req.Password, req.Role, req.Name)
	if err != nil {
		writeActionError(w, err)
		return
	}

	token, err := s.provider.IssueToken(id)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, UserID: id.ID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.provider.Authenticate(req.Email, req.Password)
	if err != nil {
		writeActionError(w, err)
		return
	}

	profile, err := s.resolver.Resolve(id)
	if err != nil {
		writeActionError(w, err)
		return
	}

	token, err := s.provider.IssueToken(id)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, UserID: id.ID, Profile: profile})
}

func (s *Server) handleListParcels(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	snap, err := projection.Compute(s.store, projection.Viewer{
		Role: actor.Role, ID: actor.ID, Email: actor.Email,
	})
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type createParcelRequest struct {
	DeviceID            string            `json:"deviceId"`
	ProductDescription  string            `json:"productDescription"`
	Category            string            `json:"category"`
	Weight              float64           `json:"weight"`
	Dimensions          types.Dimensions  `json:"dimensions"`
	PickupLocation      string            `json:"pickupLocation"`
	Destination         string            `json:"destination"`
	OwnerName           string            `json:"ownerName"`
	OwnerEmail          string            `json:"ownerEmail"`
	OwnerPhone          string            `json:"ownerPhone"`
	Priority            types.Priority    `json:"priority"`
	SpecialInstructions string            `json:"specialInstructions"`
	Thresholds          *types.Thresholds `json:"thresholds,omitempty"`
}

func (s *Server) handleCreateParcel(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	var req createParcelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parcelID, err := s.actions.CreateParcel(actor, actions.CreateParcelForm{
		DeviceID:            req.DeviceID,
		ProductDescription:  req.ProductDescription,
		Category:            req.Category,
		Weight:              req.Weight,
		Dimensions:          req.Dimensions,
		PickupLocation:      req.PickupLocation,
		Destination:         req.Destination,
		OwnerName:           req.OwnerName,
		OwnerEmail:          req.OwnerEmail,
		OwnerPhone:          req.OwnerPhone,
		Priority:            req.Priority,
		SpecialInstructions: req.SpecialInstructions,
		Thresholds:          req.Thresholds,
	})
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"parcelId": parcelID})
}

func (s *Server) handleExpressInterest(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	var req struct {
		Note string `json:"note"`
		ETA  string `json:"eta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.actions.ExpressInterest(actor, mux.Vars(r)["id"], req.Note, req.ETA); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	var req struct {
		TransporterID string `json:"transporterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.actions.AssignTransporter(actor, mux.Vars(r)["id"], req.TransporterID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	var req struct {
		Status types.ParcelStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.actions.UpdateStatus(actor, mux.Vars(r)["id"], req.Status); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}
	if err := s.actions.CancelParcel(actor, mux.Vars(r)["id"]); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteParcel(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}
	if err := s.actions.DeleteParcel(actor, mux.Vars(r)["id"]); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	snap, err := device.List(s.store, actor.Role, device.Options{
		OfflineAfter: s.opts.OfflineAfter,
		Debug:        s.opts.Debug,
	})
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}
	if actor.Role == types.RoleTransporter {
		writeActionError(w, errdefs.PermissionDenied("transporters have no device view"))
		return
	}

	raw, err := s.store.Get(store.DeviceHistoryPath(mux.Vars(r)["id"]))
	if err != nil {
		writeActionError(w, err)
		return
	}
	history := make(map[string]types.Reading)
	if raw != nil {
		if err := store.Decode(raw, &history); err != nil {
			writeActionError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, device.SortedHistory(history))
}

// feedRecipient is where a role's notifications land: owners are
// addressed by email, staff roles by uid
func feedRecipient(actor actions.Actor) string {
	if actor.Role == types.RoleOwner {
		return actor.Email
	}
	return actor.ID
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	limit := s.opts.NotificationLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			limit = n
		}
	}

	feed, err := notify.Load(s.store, feedRecipient(actor), limit)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}
	if err := notify.MarkRead(s.store, feedRecipient(actor), mux.Vars(r)["id"]); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userRecord is a profile with its uid attached for the approvals view
type userRecord struct {
	ID string `json:"id"`
	types.UserProfile
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}
	if actor.Role != types.RoleAdmin {
		writeActionError(w, errdefs.PermissionDenied("role %q may not list users", actor.Role))
		return
	}

	raw, err := s.store.Get(store.UsersRoot)
	if err != nil {
		writeActionError(w, err)
		return
	}

	users := []userRecord{}
	collection, _ := raw.(map[string]any)
	for uid, entry := range collection {
		node, ok := entry.(map[string]any)
		if !ok || node["profile"] == nil {
			continue
		}
		var profile types.UserProfile
		if err := store.Decode(node["profile"], &profile); err != nil {
			s.logger.Error().Err(err).Str("user_id", uid).Msg("Skipping undecodable profile")
			continue
		}
		users = append(users, userRecord{ID: uid, UserProfile: profile})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	writeJSON(w, http.StatusOK, users)
}

type settingsRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	PhotoURL string `json:"photoURL"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.actions.UpdateSettings(actor, actions.SettingsForm{
		Name:     req.Name,
		Phone:    req.Phone,
		PhotoURL: req.PhotoURL,
	}); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleApproveUser(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}
	if err := s.actions.ApproveUser(actor, mux.Vars(r)["id"]); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRejectUser(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}
	if err := s.actions.RejectUser(actor, mux.Vars(r)["id"]); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeActionError maps the domain error taxonomy onto HTTP statuses
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errdefs.ErrAuthFailure):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, errdefs.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errdefs.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errdefs.ErrPrecondition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
