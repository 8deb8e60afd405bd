package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ardaongl/hsdarena-backend/internal/app"
	"github.com/ardaongl/hsdarena-backend/internal/auth"
	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

// RESTHandler exposes the session lifecycle and team onboarding over plain
// HTTP. Organizer endpoints require an admin token; team join is open.
type RESTHandler struct {
	coord  *app.Coordinator
	tokens *auth.Service
}

func NewRESTHandler(coord *app.Coordinator, tokens *auth.Service) *RESTHandler {
	return &RESTHandler{coord: coord, tokens: tokens}
}

// Register attaches all REST routes to mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /sessions", h.requireAdmin(h.createSession))
	mux.HandleFunc("POST /sessions/{code}/join", h.joinSession)
	mux.HandleFunc("POST /sessions/{id}/start", h.requireAdmin(h.startSession))
	mux.HandleFunc("POST /sessions/{id}/end", h.requireAdmin(h.endSession))
	mux.HandleFunc("POST /sessions/{id}/questions/{questionId}/start", h.requireAdmin(h.startQuestion))
	mux.HandleFunc("GET /scoreboard/{code}", h.scoreboard)
}

func (h *RESTHandler) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, domain.BadRequestf("email and password are required"))
		return
	}
	token, err := h.tokens.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}

func (h *RESTHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QuizID string `json:"quizId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.QuizID == "" {
		writeError(w, domain.BadRequestf("quizId is required"))
		return
	}
	session, err := h.coord.CreateSession(r.Context(), body.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *RESTHandler) joinSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TeamName string `json:"teamName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TeamName == "" {
		writeError(w, domain.BadRequestf("teamName is required"))
		return
	}
	team, err := h.coord.RegisterTeam(r.Context(), r.PathValue("code"), body.TeamName)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.tokens.SignTeamToken(team.ID, team.SessionID)
	if err != nil {
		writeError(w, domain.Internalf(err, "sign team token"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"teamId": team.ID, "teamToken": token})
}

func (h *RESTHandler) startSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.coord.StartSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *RESTHandler) endSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.coord.EndSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *RESTHandler) startQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.StartQuestion(r.Context(), r.PathValue("id"), r.PathValue("questionId")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "broadcast"})
}

func (h *RESTHandler) scoreboard(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	session, err := h.coord.SessionByCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	leaderboard, err := h.coord.Leaderboard(r.Context(), session.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionCode": session.Code,
		"leaderboard": leaderboard,
	})
}

func (h *RESTHandler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.tokens.VerifyAdminToken(bearerToken(r)); err != nil {
			writeError(w, domain.Forbiddenf("admin token required"))
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindBadRequest:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
	}
	writeJSON(w, status, map[string]string{"message": err.Error()})
}
