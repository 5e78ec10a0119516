package web

import (
	"fmt"
	"net/http"
	"strconv"

	"bookkeeper/internal/core"
)

// ── Team ──────────────────────────────────────────────────────────────────────

// apiListMembers handles GET /api/companies/{code}/members.
func (h *Handler) apiListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListMembers(r.Context(), companyCode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, members)
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required|in:owner,admin,accountant,viewer"`
}

// apiChangeMemberRole handles PATCH /api/companies/{code}/members/{id}.
func (h *Handler) apiChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	u, err := h.svc.ChangeMemberRole(r.Context(), companyCode(r), id, core.Role(req.Role))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, u)
}

// apiRemoveMember handles DELETE /api/companies/{code}/members/{id}.
func (h *Handler) apiRemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if claims := authFromContext(r.Context()); claims != nil && claims.UserID == id {
		writeError(w, r, "you cannot remove yourself", "CONFLICT", http.StatusConflict)
		return
	}
	if err := h.svc.RemoveMember(r.Context(), companyCode(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiListInvitations handles GET /api/companies/{code}/invitations?status=.
func (h *Handler) apiListInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.svc.ListInvitations(r.Context(), companyCode(r), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invs)
}

type inviteRequest struct {
	Email string `json:"email" validate:"required|email"`
	Role  string `json:"role" validate:"required|in:owner,admin,accountant,viewer"`
}

// apiInviteMember handles POST /api/companies/{code}/invitations. The response
// carries the token; delivering it to the invitee is up to the caller.
func (h *Handler) apiInviteMember(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	claims := authFromContext(r.Context())
	inv, err := h.svc.InviteMember(r.Context(), companyCode(r), claims.UserID, req.Email, core.Role(req.Role))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, inv)
}

// apiRevokeInvitation handles DELETE /api/companies/{code}/invitations/{id}.
func (h *Handler) apiRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RevokeInvitation(r.Context(), companyCode(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Referrals & feedback ──────────────────────────────────────────────────────

// apiReferralCode handles GET /api/companies/{code}/referral.
func (h *Handler) apiReferralCode(w http.ResponseWriter, r *http.Request) {
	rc, err := h.svc.GetReferralCode(r.Context(), companyCode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rc)
}

// apiReferralRedemptions handles GET /api/companies/{code}/referral/redemptions.
func (h *Handler) apiReferralRedemptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListReferralRedemptions(r.Context(), companyCode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, list)
}

type redeemRequest struct {
	Code string `json:"code" validate:"required|maxLen:32"`
}

// apiRedeemReferral handles POST /api/companies/{code}/referral/redeem; the
// company in the path is the one being referred.
func (h *Handler) apiRedeemReferral(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	red, err := h.svc.RedeemReferral(r.Context(), companyCode(r), req.Code)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, red)
}

type feedbackRequest struct {
	Category string `json:"category" validate:"required|in:bug,feature,other"`
	Message  string `json:"message" validate:"required|maxLen:4000"`
	Rating   *int   `json:"rating"`
}

// apiSubmitFeedback handles POST /api/companies/{code}/feedback.
func (h *Handler) apiSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	claims := authFromContext(r.Context())
	f, err := h.svc.SubmitFeedback(r.Context(), companyCode(r), claims.UserID, core.FeedbackInput{
		Category: req.Category,
		Message:  req.Message,
		Rating:   req.Rating,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, f)
}

// apiListFeedback handles GET /api/companies/{code}/feedback.
func (h *Handler) apiListFeedback(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListFeedback(r.Context(), companyCode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, list)
}

// ── Compliance & reminders ────────────────────────────────────────────────────

// apiListComplianceTasks handles GET /api/companies/{code}/compliance-tasks?status=.
func (h *Handler) apiListComplianceTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListComplianceTasks(r.Context(), companyCode(r), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, tasks)
}

// apiCreateComplianceTask handles POST /api/companies/{code}/compliance-tasks.
func (h *Handler) apiCreateComplianceTask(w http.ResponseWriter, r *http.Request) {
	var req core.ComplianceTaskInput
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := h.svc.CreateComplianceTask(r.Context(), companyCode(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, task)
}

type generateVATRequest struct {
	Year int `json:"year" validate:"required|min:2018|max:2100"`
}

// apiGenerateVATTasks handles POST /api/companies/{code}/compliance-tasks/generate-vat.
func (h *Handler) apiGenerateVATTasks(w http.ResponseWriter, r *http.Request) {
	var req generateVATRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	n, err := h.svc.GenerateVATTasks(r.Context(), companyCode(r), req.Year)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"created": n})
}

// apiCompleteComplianceTask handles POST /api/companies/{code}/compliance-tasks/{id}/complete.
func (h *Handler) apiCompleteComplianceTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.svc.CompleteComplianceTask(r.Context(), companyCode(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, task)
}

// apiDeleteComplianceTask handles DELETE /api/companies/{code}/compliance-tasks/{id}.
func (h *Handler) apiDeleteComplianceTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteComplianceTask(r.Context(), companyCode(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiListReminders handles GET /api/companies/{code}/reminders?unread=true.
func (h *Handler) apiListReminders(w http.ResponseWriter, r *http.Request) {
	unread := r.URL.Query().Get("unread") == "true"
	list, err := h.svc.ListReminders(r.Context(), companyCode(r), unread)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, list)
}

// apiMarkReminderRead handles POST /api/companies/{code}/reminders/{id}/read.
func (h *Handler) apiMarkReminderRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.MarkReminderRead(r.Context(), companyCode(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiRunReminders handles POST /api/companies/{code}/reminders/run?as_of=&lead_days=.
func (h *Handler) apiRunReminders(w http.ResponseWriter, r *http.Request) {
	lead := h.leadDays
	if v := r.URL.Query().Get("lead_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, "lead_days must be a non-negative integer", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		lead = n
	}
	n, err := h.svc.RunReminders(r.Context(), companyCode(r), r.URL.Query().Get("as_of"), lead)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"created": n})
}

// ── Backups ───────────────────────────────────────────────────────────────────

// apiListBackups handles GET /api/companies/{code}/backups.
func (h *Handler) apiListBackups(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListBackups(r.Context(), companyCode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, list)
}

// apiCreateBackup handles POST /api/companies/{code}/backups.
func (h *Handler) apiCreateBackup(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	b, err := h.svc.CreateBackup(r.Context(), companyCode(r), claims.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, b)
}

// apiDownloadBackup handles GET /api/companies/{code}/backups/{id}/download.
func (h *Handler) apiDownloadBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, payload, err := h.svc.DownloadBackup(r.Context(), companyCode(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="backup-%s-%d.json"`, companyCode(r), b.ID))
	w.Header().Set("X-Checksum-SHA256", b.Checksum)
	_, _ = w.Write(payload)
}

// apiDeleteBackup handles DELETE /api/companies/{code}/backups/{id}.
func (h *Handler) apiDeleteBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteBackup(r.Context(), companyCode(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
