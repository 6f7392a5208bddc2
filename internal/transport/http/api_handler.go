package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"challenge-engine/internal/app"
	"challenge-engine/internal/domain"
	"challenge-engine/internal/logger"
)

// APIHandler exposes the engine operations as a thin JSON API. The caller is
// identified by the X-User-ID header; authentication happens upstream.
type APIHandler struct {
	challenges    *app.ChallengeService
	participation *app.ParticipationService
	certificates  *app.CertificateService
	boards        *app.Leaderboards
	log           *logger.Logger
}

func NewAPIHandler(challenges *app.ChallengeService, participation *app.ParticipationService,
	certificates *app.CertificateService, boards *app.Leaderboards, log *logger.Logger) *APIHandler {
	return &APIHandler{
		challenges:    challenges,
		participation: participation,
		certificates:  certificates,
		boards:        boards,
		log:           logger.OrNop(log),
	}
}

// Register mounts every route on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /challenges", h.createChallenge)
	mux.HandleFunc("GET /challenges", h.listChallenges)
	mux.HandleFunc("GET /challenges/{id}", h.getChallenge)
	mux.HandleFunc("PATCH /challenges/{id}", h.updateChallenge)
	mux.HandleFunc("DELETE /challenges/{id}", h.deleteChallenge)
	mux.HandleFunc("POST /challenges/{id}/activate", h.activateChallenge)
	mux.HandleFunc("POST /challenges/{id}/deactivate", h.deactivateChallenge)
	mux.HandleFunc("POST /challenges/{id}/cancel", h.cancelChallenge)
	mux.HandleFunc("GET /challenges/{id}/eligibility", h.eligibility)
	mux.HandleFunc("GET /challenges/{id}/leaderboard", h.leaderboard)

	mux.HandleFunc("POST /challenges/{id}/join", h.join)
	mux.HandleFunc("POST /challenges/{id}/start", h.start)
	mux.HandleFunc("POST /challenges/{id}/responses", h.respond)
	mux.HandleFunc("POST /challenges/{id}/complete", h.complete)
	mux.HandleFunc("POST /challenges/{id}/abandon", h.abandon)
	mux.HandleFunc("GET /challenges/{id}/participation", h.participationStatus)

	mux.HandleFunc("POST /challenges/{id}/certificates", h.issueCertificate)
	mux.HandleFunc("GET /certificates", h.listCertificates)
	mux.HandleFunc("GET /certificates/verify/{code}", h.verifyCertificate)
	mux.HandleFunc("POST /certificates/{id}/download", h.downloadCertificate)
	mux.HandleFunc("POST /certificates/{id}/share", h.shareCertificate)
	mux.HandleFunc("POST /certificates/{id}/revoke", h.revokeCertificate)
}

type listResponse struct {
	Items []domain.Challenge `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

func (h *APIHandler) createChallenge(w http.ResponseWriter, r *http.Request) {
	var in app.CreateChallengeInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.log, err, nil)
		return
	}
	if caller := callerID(r); caller != "" {
		in.CreatedBy = caller
	}
	challenge, err := h.challenges.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, challenge)
}

func (h *APIHandler) listChallenges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := app.ChallengeFilter{
		Status:     domain.ChallengeStatus(q.Get("status")),
		Type:       q.Get("type"),
		Category:   q.Get("category"),
		Difficulty: q.Get("difficulty"),
		CreatedBy:  q.Get("createdBy"),
		PublicOnly: q.Get("public") == "true",
		SortBy:     q.Get("sort"),
		SortDesc:   strings.EqualFold(q.Get("order"), "desc"),
		Page:       atoiOr(q.Get("page"), 1),
		Limit:      atoiOr(q.Get("limit"), 20),
	}
	items, total, err := h.challenges.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit})
}

func (h *APIHandler) getChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.challenges.Get(r.Context(), r.PathValue("id"))
	h.reply(w, http.StatusOK, challenge, err)
}

func (h *APIHandler) updateChallenge(w http.ResponseWriter, r *http.Request) {
	var patch app.ChallengePatch
	if err := decode(r, &patch); err != nil {
		writeError(w, h.log, err, nil)
		return
	}
	challenge, err := h.challenges.Update(r.Context(), r.PathValue("id"), patch)
	h.reply(w, http.StatusOK, challenge, err)
}

func (h *APIHandler) deleteChallenge(w http.ResponseWriter, r *http.Request) {
	if err := h.challenges.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.log, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) activateChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.challenges.Activate(r.Context(), r.PathValue("id"))
	h.reply(w, http.StatusOK, challenge, err)
}

func (h *APIHandler) deactivateChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.challenges.Deactivate(r.Context(), r.PathValue("id"))
	h.reply(w, http.StatusOK, challenge, err)
}

func (h *APIHandler) cancelChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.challenges.Cancel(r.Context(), r.PathValue("id"))
	h.reply(w, http.StatusOK, challenge, err)
}

func (h *APIHandler) eligibility(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	result, err := h.challenges.CanParticipate(r.Context(), r.PathValue("id"), user)
	h.reply(w, http.StatusOK, result, err)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := atoiOr(r.URL.Query().Get("limit"), 0)
	lb, err := h.boards.Leaderboard(r.Context(), r.PathValue("id"), limit)
	h.reply(w, http.StatusOK, lb, err)
}

func (h *APIHandler) join(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	participant, err := h.participation.Join(r.Context(), r.PathValue("id"), user)
	h.reply(w, http.StatusCreated, participant, err)
}

func (h *APIHandler) start(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	participant, err := h.participation.StartAttempt(r.Context(), r.PathValue("id"), user)
	h.reply(w, http.StatusOK, participant, err)
}

func (h *APIHandler) respond(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	var in app.ResponseInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.log, err, nil)
		return
	}
	participant, err := h.participation.SubmitResponse(r.Context(), r.PathValue("id"), user, in)
	h.reply(w, http.StatusOK, participant, err)
}

func (h *APIHandler) complete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	var in app.CompleteInput
	if r.ContentLength != 0 {
		if err := decode(r, &in); err != nil {
			writeError(w, h.log, err, nil)
			return
		}
	}
	participant, err := h.participation.Complete(r.Context(), r.PathValue("id"), user, in)
	h.reply(w, http.StatusOK, participant, err)
}

func (h *APIHandler) abandon(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	participant, err := h.participation.Abandon(r.Context(), r.PathValue("id"), user)
	h.reply(w, http.StatusOK, participant, err)
}

func (h *APIHandler) participationStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	participant, err := h.participation.Get(r.Context(), r.PathValue("id"), user)
	h.reply(w, http.StatusOK, participant, err)
}

type issueRequest struct {
	ParticipantID string            `json:"participantId"`
	Template      map[string]string `json:"template,omitempty"`
}

func (h *APIHandler) issueCertificate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	var in issueRequest
	if err := decode(r, &in); err != nil {
		writeError(w, h.log, err, nil)
		return
	}
	cert, err := h.certificates.Issue(r.Context(), app.IssueInput{
		UserID:        user,
		ChallengeID:   r.PathValue("id"),
		ParticipantID: in.ParticipantID,
		Template:      in.Template,
	})
	if errors.Is(err, domain.ErrCertificateExists) && cert.CertificateID != "" {
		writeError(w, h.log, err, cert)
		return
	}
	h.reply(w, http.StatusCreated, cert, err)
}

func (h *APIHandler) listCertificates(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	certs, err := h.certificates.ListForUser(r.Context(), user)
	h.reply(w, http.StatusOK, certs, err)
}

func (h *APIHandler) verifyCertificate(w http.ResponseWriter, r *http.Request) {
	result, err := h.certificates.Verify(r.Context(), r.PathValue("code"))
	h.reply(w, http.StatusOK, result, err)
}

func (h *APIHandler) downloadCertificate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	link, err := h.certificates.Download(r.Context(), r.PathValue("id"), user)
	h.reply(w, http.StatusOK, link, err)
}

func (h *APIHandler) shareCertificate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	link, err := h.certificates.Share(r.Context(), r.PathValue("id"), user)
	h.reply(w, http.StatusOK, link, err)
}

func (h *APIHandler) revokeCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.certificates.Revoke(r.Context(), r.PathValue("id"))
	h.reply(w, http.StatusOK, cert, err)
}

func (h *APIHandler) reply(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		writeError(w, h.log, err, nil)
		return
	}
	writeJSON(w, status, data)
}

func (h *APIHandler) requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := callerID(r)
	if user == "" {
		writeError(w, h.log, domain.Validationf("request", "missing %s header", userHeader), nil)
		return "", false
	}
	return user, true
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

func atoiOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
