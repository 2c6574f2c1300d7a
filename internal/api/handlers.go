package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/correction"
	"github.com/sells-group/teamresolve/internal/merge"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/quarantine"
	"github.com/sells-group/teamresolve/internal/review"
	"github.com/sells-group/teamresolve/internal/store"
)

// actorBody carries the operator performing a state transition.
type actorBody struct {
	Actor string `json:"actor"`
}

// Review queue.

func (h *handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	after, limit, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := model.ReviewFilter{
		Status:   model.ReviewStatus(q.Get("status")),
		Provider: q.Get("provider"),
		BatchID:  q.Get("batch_id"),
		AfterID:  after,
		Limit:    limit,
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, r, eris.Wrapf(errBadRequest, "invalid status %q", f.Status))
		return
	}
	out, err := h.Review.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) reviewCounts(w http.ResponseWriter, r *http.Request) {
	out, err := h.Review.CategoryCounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getReview(w http.ResponseWriter, r *http.Request) {
	e, err := h.Review.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handlers) approveReview(w http.ResponseWriter, r *http.Request) {
	var dec review.Decision
	if err := decode(r, &dec); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.Review.Approve(r.Context(), chi.URLParam(r, "id"), dec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handlers) rejectReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Resolver string `json:"resolver"`
		Note     string `json:"note,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.Review.Reject(r.Context(), chi.URLParam(r, "id"), body.Resolver, body.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handlers) bulkApprove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
		Resolver string `json:"resolver"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := review.ParseCategory(body.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Review.BulkApprove(r.Context(), c, body.Resolver)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Merges.

func (h *handlers) listMerges(w http.ResponseWriter, r *http.Request) {
	after, limit, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	out, err := h.Merges.List(r.Context(), store.MergeFilter{
		Status:  model.MergeStatus(q.Get("status")),
		TeamID:  q.Get("team_id"),
		AfterID: after,
		Limit:   limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) proposeMerge(w http.ResponseWriter, r *http.Request) {
	var p merge.Proposal
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.Merges.Propose(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handlers) previewMerge(w http.ResponseWriter, r *http.Request) {
	p, err := h.Merges.Preview(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) getMerge(w http.ResponseWriter, r *http.Request) {
	m, err := h.Merges.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handlers) executeMerge(w http.ResponseWriter, r *http.Request) {
	var body actorBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.Merges.Execute(r.Context(), chi.URLParam(r, "id"), body.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) revertMerge(w http.ResponseWriter, r *http.Request) {
	var body actorBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.Merges.Revert(r.Context(), chi.URLParam(r, "id"), body.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Corrections.

func (h *handlers) listCorrections(w http.ResponseWriter, r *http.Request) {
	after, limit, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	out, err := h.Corrections.List(r.Context(), store.CorrectionFilter{
		GameUID: q.Get("game_uid"),
		Status:  model.CorrectionStatus(q.Get("status")),
		AfterID: after,
		Limit:   limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) proposeCorrection(w http.ResponseWriter, r *http.Request) {
	var p correction.Proposal
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Corrections.Propose(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handlers) getCorrection(w http.ResponseWriter, r *http.Request) {
	c, err := h.Corrections.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handlers) applyCorrection(w http.ResponseWriter, r *http.Request) {
	h.correctionTransition(w, r, h.Corrections.Apply)
}

func (h *handlers) rejectCorrection(w http.ResponseWriter, r *http.Request) {
	h.correctionTransition(w, r, h.Corrections.Reject)
}

func (h *handlers) revertCorrection(w http.ResponseWriter, r *http.Request) {
	h.correctionTransition(w, r, h.Corrections.Revert)
}

type correctionFn func(ctx context.Context, id, actor string) (*model.GameCorrection, error)

func (h *handlers) correctionTransition(w http.ResponseWriter, r *http.Request, fn correctionFn) {
	var body actorBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := fn(r.Context(), chi.URLParam(r, "id"), body.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Quarantine.

func (h *handlers) listQuarantine(w http.ResponseWriter, r *http.Request) {
	after, limit, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := quarantine.Filter{BatchID: q.Get("batch_id"), AfterID: after, Limit: limit}
	if s := q.Get("reason"); s != "" {
		f.Reason, err = quarantine.ParseReason(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	out, err := h.Quarantine.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) quarantineCounts(w http.ResponseWriter, r *http.Request) {
	c, err := h.Quarantine.Counts(r.Context(), r.URL.Query().Get("batch_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handlers) deleteQuarantine(w http.ResponseWriter, r *http.Request) {
	if err := h.Quarantine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Graph.

func (h *handlers) listTeams(w http.ResponseWriter, r *http.Request) {
	after, limit, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := model.TeamFilter{Age: q.Get("age"), Region: q.Get("state"), AfterID: after, Limit: limit}
	if f.Gender, err = queryGender(q.Get("gender")); err != nil {
		writeError(w, r, err)
		return
	}
	if s := q.Get("include_deprecated"); s != "" {
		if f.IncludeDeprecated, err = strconv.ParseBool(s); err != nil {
			writeError(w, r, eris.Wrapf(errBadRequest, "invalid include_deprecated %q", s))
			return
		}
	}
	out, err := h.Store.ListTeams(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getTeam(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.GetTeam(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if t == nil {
		writeError(w, r, eris.Wrap(store.ErrNotFound, "team"))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) listGames(w http.ResponseWriter, r *http.Request) {
	after, limit, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := model.GameFilter{
		Age:      q.Get("age"),
		Region:   q.Get("state"),
		TeamID:   q.Get("team_id"),
		AfterUID: after,
		Limit:    limit,
	}
	if f.Gender, err = queryGender(q.Get("gender")); err != nil {
		writeError(w, r, err)
		return
	}
	if s := q.Get("finalized"); s != "" {
		if f.FinalizedOnly, err = strconv.ParseBool(s); err != nil {
			writeError(w, r, eris.Wrapf(errBadRequest, "invalid finalized %q", s))
			return
		}
	}
	out, err := h.Store.ListGames(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func queryGender(s string) (model.Gender, error) {
	if s == "" {
		return "", nil
	}
	g, ok := model.ParseGender(s)
	if !ok {
		return "", eris.Wrapf(errBadRequest, "invalid gender %q", s)
	}
	return g, nil
}
