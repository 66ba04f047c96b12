package devicesim

import (
	"encoding/json"
	"net/http"

	"github.com/brporter/remoteview/internal/auth"
)

type projectInfo struct {
	ARN  string `json:"arn"`
	Name string `json:"name"`
}

type sessionConfiguration struct {
	BillingMethod string `json:"billingMethod"`
}

type sessionInfo struct {
	ARN           string               `json:"arn"`
	Name          string               `json:"name"`
	ProjectARN    string               `json:"projectArn"`
	DeviceARN     string               `json:"deviceArn"`
	Status        string               `json:"status"`
	Endpoint      string               `json:"endpoint,omitempty"`
	Configuration sessionConfiguration `json:"configuration"`
	Frames        int                  `json:"frames"`
}

func (s *Server) info(sess *Session, status string) sessionInfo {
	info := sessionInfo{
		ARN:           sess.ARN,
		Name:          sess.Name,
		ProjectARN:    sess.ProjectARN,
		DeviceARN:     sess.DeviceARN,
		Status:        status,
		Configuration: sessionConfiguration{BillingMethod: sess.BillingMethod},
		Frames:        sess.Frames(),
	}
	if status == StatusRunning {
		info.Endpoint = s.streamURL(sess.Token)
	}
	return info
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// ownedSession resolves {arn} to a session of the calling identity.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := auth.IdentityFromContext(r.Context())
	sess, ok := s.hub.Get(r.PathValue("arn"))
	if !ok || id == nil || sess.OwnerProvider != id.Provider || sess.OwnerSub != id.Sub {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// HandleCreateProject registers a project.
func (s *Server) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	arn := s.hub.CreateProject(req.Name)
	writeJSON(w, http.StatusOK, map[string]projectInfo{"project": {ARN: arn, Name: req.Name}})
}

// HandleCreateSession starts a PENDING remote access session.
func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string               `json:"name"`
		ProjectARN    string               `json:"projectArn"`
		DeviceARN     string               `json:"deviceArn"`
		Configuration sessionConfiguration `json:"configuration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceARN == "" {
		writeError(w, http.StatusBadRequest, "deviceArn is required")
		return
	}
	if !s.hub.HasProject(req.ProjectARN) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	id := auth.IdentityFromContext(r.Context())
	sess := NewSession(newARN("session"), s.logger)
	sess.Name = req.Name
	sess.ProjectARN = req.ProjectARN
	sess.DeviceARN = req.DeviceARN
	sess.BillingMethod = req.Configuration.BillingMethod
	if id != nil {
		sess.OwnerProvider = id.Provider
		sess.OwnerSub = id.Sub
	}
	s.hub.Register(sess)

	writeJSON(w, http.StatusOK, map[string]sessionInfo{"remoteAccessSession": s.info(sess, sess.Status())})
}

// HandleGetSession reports a session's status, counting it as a poll.
func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	status := sess.Poll(s.cfg.PendingPolls)
	writeJSON(w, http.StatusOK, map[string]sessionInfo{"remoteAccessSession": s.info(sess, status)})
}

// HandleListSessions returns the sessions owned by the authenticated user.
func (s *Server) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessions := s.hub.ListForOwner(id.Provider, id.Sub)
	infos := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, s.info(sess, sess.Status()))
	}
	writeJSON(w, http.StatusOK, map[string][]sessionInfo{"remoteAccessSessions": infos})
}

// HandleStopSession stops a session.
func (s *Server) HandleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	s.hub.Stop(sess.ARN, s.cfg.StopGrace)
	writeJSON(w, http.StatusOK, map[string]sessionInfo{"remoteAccessSession": s.info(sess, sess.Status())})
}

// HandleDrop cuts a session's connections on one path (?path=control by
// default) without ending the session.
func (s *Server) HandleDrop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "control"
	}
	n := sess.Drop(path)
	writeJSON(w, http.StatusOK, map[string]int{"dropped": n})
}
