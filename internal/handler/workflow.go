package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yunseol/pyeongeo/internal/export"
	"github.com/yunseol/pyeongeo/internal/llm"
	"github.com/yunseol/pyeongeo/internal/model"
	"github.com/yunseol/pyeongeo/internal/pdftext"
	"github.com/yunseol/pyeongeo/internal/session"
)

// resolveClient builds a model client from the user's stored settings merged
// over the server defaults. Settings are checked before any upload or
// generation work starts so a misconfigured user fails fast.
func (h *Handler) resolveClient(r *http.Request) (ModelClient, error) {
	user := model.UserFromContext(r.Context())
	stored, err := h.store.GetModelSettings(user.ID)
	if err != nil {
		return nil, err
	}
	return h.newClient(stored.Merge(h.config.DefaultModel))
}

func (h *Handler) respondClientError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, llm.ErrNotConfigured) {
		respondError(w, r, http.StatusConflict, "NotConfigured")
		return
	}
	slog.Error("failed to build model client", "error", err)
	respondError(w, r, http.StatusInternalServerError, "InternalError")
}

func (h *Handler) respondState(w http.ResponseWriter, sess *session.Session) {
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, h.userSession(r.Context()))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "UploadTooLarge")
			return
		}
		respondError(w, r, http.StatusBadRequest, "UploadInvalid")
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		respondError(w, r, http.StatusBadRequest, "UploadInvalid")
		return
	}

	client, err := h.resolveClient(r)
	if err != nil {
		h.respondClientError(w, r, err)
		return
	}

	rawText, err := h.extractor.Extract(r.Context(), file)
	if err != nil {
		if errors.Is(err, pdftext.ErrNoText) {
			respondError(w, r, http.StatusBadRequest, "PdfNoText")
			return
		}
		slog.Error("pdf text extraction failed", "file", header.Filename, "error", err)
		respondError(w, r, http.StatusInternalServerError, "ExtractionFailed")
		return
	}

	data, err := client.ExtractEvaluationData(r.Context(), rawText)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResult) {
			respondError(w, r, http.StatusUnprocessableEntity, "ExtractionEmpty")
			return
		}
		slog.Error("evaluation extraction failed", "file", header.Filename, "error", err)
		respondError(w, r, http.StatusBadGateway, "ExtractionFailed")
		return
	}

	sess := h.userSession(r.Context())
	if err := sess.BeginReview(data, rawText, header.Filename); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

// handleReanalyze reruns the extraction over the stored source text, keeping
// the uploaded file out of the loop.
func (h *Handler) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	sess := h.userSession(r.Context())
	rawText, err := sess.RawText()
	if err != nil {
		respondSessionError(w, r, err)
		return
	}

	client, err := h.resolveClient(r)
	if err != nil {
		h.respondClientError(w, r, err)
		return
	}

	data, err := client.ExtractEvaluationData(r.Context(), rawText)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResult) {
			respondError(w, r, http.StatusUnprocessableEntity, "ExtractionEmpty")
			return
		}
		slog.Error("re-analysis failed", "error", err)
		respondError(w, r, http.StatusBadGateway, "ExtractionFailed")
		return
	}

	if err := sess.BeginReview(data, rawText, sess.FileName()); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleConfirmReview(w http.ResponseWriter, r *http.Request) {
	sess := h.userSession(r.Context())
	if err := sess.ConfirmReview(); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess := h.userSession(r.Context())
	if err := sess.Restart(); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleStudentCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	sess := h.userSession(r.Context())
	if err := sess.SetStudentCount(req.Count); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	sess := h.userSession(r.Context())
	if err := sess.SetSubject(req.Subject); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func studentID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

type studentUpdate struct {
	StandardEvaluations *[]model.StandardEvaluation `json:"standard_evaluations,omitempty"`
	Comment             *string                     `json:"comment,omitempty"`
}

// handleUpdateStudent applies a partial edit: only the fields present in the
// request body are touched.
func (h *Handler) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	var req studentUpdate
	if err := decode(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	sess := h.userSession(r.Context())
	if req.StandardEvaluations != nil {
		if err := sess.SelectStandards(id, *req.StandardEvaluations); err != nil {
			respondSessionError(w, r, err)
			return
		}
	}
	if req.Comment != nil {
		if err := sess.SetComment(id, *req.Comment); err != nil {
			respondSessionError(w, r, err)
			return
		}
	}
	h.respondState(w, sess)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	client, err := h.resolveClient(r)
	if err != nil {
		h.respondClientError(w, r, err)
		return
	}

	sess := h.userSession(r.Context())
	if err := sess.Generate(r.Context(), id, client); err != nil {
		switch {
		case errors.Is(err, session.ErrWrongStep),
			errors.Is(err, session.ErrUnknownStudent),
			errors.Is(err, session.ErrNoSelection),
			errors.Is(err, session.ErrStudentBusy),
			errors.Is(err, session.ErrBulkRunning):
			respondSessionError(w, r, err)
		default:
			// The failure is already recorded on the student.
			slog.Error("comment generation failed", "student", id, "error", err)
			respondError(w, r, http.StatusBadGateway, "SynthesisFailed")
		}
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleConfirmStudent(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	sess := h.userSession(r.Context())
	if err := sess.Confirm(id); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleAutoSelect(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	sess := h.userSession(r.Context())
	if err := sess.AutoSelect(id); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleAutoSelectAll(w http.ResponseWriter, r *http.Request) {
	sess := h.userSession(r.Context())
	if err := sess.AutoSelectAll(); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleBulkDefaults(w http.ResponseWriter, r *http.Request) {
	var req session.BulkDefaults
	if err := decode(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	sess := h.userSession(r.Context())
	sess.SetBulkDefaults(req)
	h.respondState(w, sess)
}

func (h *Handler) handleBulkApply(w http.ResponseWriter, r *http.Request) {
	sess := h.userSession(r.Context())
	if err := sess.BulkApply(); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

// handleGenerateAll runs the sequential pass inline. Progress is observable
// through GET /api/state while this request is in flight.
func (h *Handler) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	client, err := h.resolveClient(r)
	if err != nil {
		h.respondClientError(w, r, err)
		return
	}
	sess := h.userSession(r.Context())
	if err := sess.GenerateAll(r.Context(), client); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleConfirmAll(w http.ResponseWriter, r *http.Request) {
	sess := h.userSession(r.Context())
	if err := sess.ConfirmAll(); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess := h.userSession(r.Context())
	students, err := sess.ConfirmedStudents()
	if err != nil {
		respondSessionError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(export.FileName))
	if _, err := w.Write([]byte(export.CSV(students))); err != nil {
		slog.Error("write csv", "error", err)
	}
}
