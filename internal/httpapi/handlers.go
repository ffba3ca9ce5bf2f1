package httpapi

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/psycheos/screening-engine/internal/audit"
	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/report"
	"github.com/psycheos/screening-engine/internal/schema"
	"github.com/psycheos/screening-engine/internal/session"
)

// #endregion

// #region dto

type createRequest struct {
	SessionID string `json:"session_id"`
}

type submitRequest struct {
	Responses []schema.WeightedResponse `json:"responses"`
}

type listResponse struct {
	Sessions []string `json:"sessions"`
}

// stepResponse is the payload for every step of the walk: the updated
// session record plus whatever the orchestrator asks next.
type stepResponse struct {
	Session  *session.Record        `json:"session"`
	Action   orchestrator.Action    `json:"action"`
	Screen   *bank.Screen           `json:"screen,omitempty"`
	Question *orchestrator.Question `json:"question,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
}

// #endregion

// #region lifecycle

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	step, err := s.orch.Start(body.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rec := session.NewRecord(step.Snapshot, s.ttl)

	err = s.manager.WithLock(r.Context(), rec.ID, func(ctx context.Context) error {
		store := s.manager.Store()
		if _, err := store.Load(ctx, rec.ID); err == nil {
			return errSessionExists
		} else if !errors.Is(err, session.ErrSessionNotFound) {
			return err
		}
		return store.Save(ctx, rec)
	})
	if err != nil {
		writeStepError(w, err)
		return
	}

	log.Printf("[HTTP] create: session=%s", rec.ID)
	writeJSON(w, http.StatusCreated, stepResponse{
		Session: rec,
		Action:  step.Action,
		Screen:  step.Screen,
		Reason:  step.Reason,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.manager.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, listResponse{Sessions: ids})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Load(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStepError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	err := s.manager.WithLock(r.Context(), id, func(ctx context.Context) error {
		store := s.manager.Store()
		if _, err := store.Load(ctx, id); err != nil {
			return err
		}
		return store.Delete(ctx, id)
	})
	if err != nil {
		writeStepError(w, err)
		return
	}
	log.Printf("[HTTP] delete: session=%s", id)
	w.WriteHeader(http.StatusNoContent)
}

// #endregion

// #region walk

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Responses) == 0 {
		writeError(w, http.StatusBadRequest, "no responses submitted")
		return
	}

	var out stepResponse
	err := s.manager.WithLock(r.Context(), id, func(ctx context.Context) error {
		store := s.manager.Store()
		rec, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		snap := rec.Snapshot
		before := snap.Confidence
		prePhase := snap.Phase

		var step *orchestrator.StepResult
		if len(body.Responses) == 1 {
			step, err = s.orch.SubmitResponse(ctx, snap, body.Responses[0])
		} else {
			step, err = s.orch.SubmitScreenResponses(ctx, snap, body.Responses)
		}
		if err != nil {
			s.auditReject(snap, body.Responses, err)
			return err
		}

		rec.Update(step.Snapshot)
		if err := store.Save(ctx, rec); err != nil {
			return err
		}

		s.auditCommit(step)
		s.recordProbe(ctx, prePhase, before, snap, step)

		out = stepResponse{
			Session:  rec,
			Action:   step.Action,
			Screen:   step.Screen,
			Question: step.Question,
			Reason:   step.Reason,
		}
		return nil
	})
	if err != nil {
		writeStepError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var rec *session.Record
	err := s.manager.WithLock(r.Context(), id, func(ctx context.Context) error {
		store := s.manager.Store()
		var err error
		rec, err = store.Load(ctx, id)
		if err != nil {
			return err
		}
		next, err := s.orch.Complete(rec.Snapshot)
		if err != nil {
			return err
		}
		rec.Update(next)
		return store.Save(ctx, rec)
	})
	if err != nil {
		writeStepError(w, err)
		return
	}
	log.Printf("[HTTP] complete: session=%s", id)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Load(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStepError(w, err)
		return
	}
	phase := rec.Snapshot.Phase
	if phase != orchestrator.PhaseReport && phase != orchestrator.PhaseCompleted {
		writeError(w, http.StatusConflict, "session not finalized")
		return
	}

	rep := report.Build(rec.Snapshot)
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, report.RenderText(rep))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// #endregion

// #region recording

func (s *Server) auditCommit(step *orchestrator.StepResult) {
	if s.sqlite == nil {
		return
	}
	err := audit.LogDecision(s.sqlite.DB(), audit.Entry{
		SessionID: step.Snapshot.SessionID,
		Seq:       step.Snapshot.Seq,
		Phase:     string(step.Snapshot.Phase),
		Decision:  audit.DecisionCommit,
		Reason:    step.Reason,
	})
	if err != nil {
		log.Printf("[HTTP] audit write failed: %v", err)
	}
}

func (s *Server) auditReject(snap *orchestrator.SessionSnapshot, resps []schema.WeightedResponse, cause error) {
	if s.sqlite == nil {
		return
	}
	payload, _ := json.Marshal(resps)
	err := audit.LogDecision(s.sqlite.DB(), audit.Entry{
		SessionID:    snap.SessionID,
		Seq:          snap.Seq,
		Phase:        string(snap.Phase),
		Decision:     audit.DecisionReject,
		Reason:       cause.Error(),
		ResponseJSON: string(payload),
	})
	if err != nil {
		log.Printf("[HTTP] audit write failed: %v", err)
	}
}

// recordProbe credits the probe just answered with its confidence move.
// The node is the last one served before this submission, which is the
// tail of the pre-step probed list.
func (s *Server) recordProbe(ctx context.Context, prePhase orchestrator.Phase, before float64, preSnap *orchestrator.SessionSnapshot, step *orchestrator.StepResult) {
	if s.sqlite == nil {
		return
	}
	if prePhase != orchestrator.Phase2 && prePhase != orchestrator.Phase3 {
		return
	}
	if len(preSnap.ProbedNodes) == 0 {
		return
	}
	err := s.sqlite.RecordProbe(ctx, session.ProbeStat{
		SessionID:        step.Snapshot.SessionID,
		Seq:              step.Snapshot.Seq,
		Node:             preSnap.ProbedNodes[len(preSnap.ProbedNodes)-1],
		Phase:            prePhase.Number(),
		ConfidenceBefore: before,
		ConfidenceAfter:  step.Snapshot.Confidence,
	})
	if err != nil {
		log.Printf("[HTTP] probe stat write failed: %v", err)
	}
}

// #endregion
