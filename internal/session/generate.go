package session

import (
	"context"
	"log/slog"

	"github.com/yunseol/pyeongeo/internal/model"
)

// Generate synthesizes one student's comment. Refuses while that student (or
// a bulk pass) is already generating; the guard lives here, not only in the
// UI, so concurrent regeneration resolves to a clean error instead of a race.
func (s *Session) Generate(ctx context.Context, id int, synth Synthesizer) error {
	s.mu.Lock()
	if s.step != model.StepGenerate || s.data == nil {
		s.mu.Unlock()
		return ErrWrongStep
	}
	if s.isGeneratingAll {
		s.mu.Unlock()
		return ErrBulkRunning
	}
	st := s.findLocked(id)
	if st == nil {
		s.mu.Unlock()
		return ErrUnknownStudent
	}
	if st.IsGenerating {
		s.mu.Unlock()
		return ErrStudentBusy
	}
	if len(st.StandardEvaluations) == 0 {
		s.mu.Unlock()
		return ErrNoSelection
	}
	student, data := s.beginGenerationLocked(st)
	s.mu.Unlock()

	return s.finishGeneration(ctx, id, student, data, synth)
}

// GenerateAll walks the roster in order and synthesizes a comment for every
// student that has selections and no comment yet. Strictly sequential: each
// call is awaited before the next starts, and the progress counter advances
// only on completion. A failure on one student records that student's error
// and moves on. The bulk flag clears only after every attempt has resolved.
func (s *Session) GenerateAll(ctx context.Context, synth Synthesizer) error {
	s.mu.Lock()
	if s.step != model.StepGenerate || s.data == nil {
		s.mu.Unlock()
		return ErrWrongStep
	}
	if s.isGeneratingAll {
		s.mu.Unlock()
		return ErrBulkRunning
	}
	var pending []int
	for _, st := range s.students {
		if len(st.StandardEvaluations) > 0 && st.Comment == "" {
			pending = append(pending, st.ID)
		}
	}
	s.isGeneratingAll = true
	s.progress = &Progress{Current: 0, Total: len(pending)}
	s.mu.Unlock()

	for i, id := range pending {
		s.generateOne(ctx, id, synth)

		s.mu.Lock()
		if s.progress != nil {
			s.progress.Current = i + 1
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.isGeneratingAll = false
	s.progress = nil
	s.mu.Unlock()
	return nil
}

// generateOne is the per-student body of a bulk pass. Students that vanished
// (roster resize) or got busy in the meantime are skipped.
func (s *Session) generateOne(ctx context.Context, id int, synth Synthesizer) {
	s.mu.Lock()
	st := s.findLocked(id)
	if st == nil || st.IsGenerating || len(st.StandardEvaluations) == 0 || s.data == nil {
		s.mu.Unlock()
		return
	}
	student, data := s.beginGenerationLocked(st)
	s.mu.Unlock()

	_ = s.finishGeneration(ctx, id, student, data, synth)
}

// beginGenerationLocked marks the student busy and snapshots the inputs the
// model call needs, so the lock can be released for its duration.
func (s *Session) beginGenerationLocked(st *model.StudentData) (model.StudentData, model.EvaluationData) {
	st.IsGenerating = true
	st.Error = ""
	st.IsConfirmed = false
	student := *st
	student.StandardEvaluations = append([]model.StandardEvaluation(nil), st.StandardEvaluations...)
	return student, *s.data
}

// finishGeneration runs the model call without the lock and folds the result
// back in. If the student disappeared while the call was in flight (restart,
// roster shrink) the result is dropped.
func (s *Session) finishGeneration(ctx context.Context, id int, student model.StudentData, data model.EvaluationData, synth Synthesizer) error {
	comment, err := synth.GenerateComment(ctx, student, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.findLocked(id)
	if st == nil {
		return err
	}
	st.IsGenerating = false
	if err != nil {
		slog.Error("comment generation failed", "student", id, "error", err)
		st.Error = err.Error()
		return err
	}
	st.Error = ""
	setComment(st, comment)
	return nil
}
