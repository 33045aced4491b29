// Package session owns the in-memory working state of one teacher's
// comment-generation workflow: the upload → review → generate step
// progression, the student roster, bulk defaults, and every derived
// enablement rule. All mutation goes through Session methods under one
// mutex; model calls are made with the lock released so a slow generation
// never blocks unrelated reads.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/yunseol/pyeongeo/internal/model"
)

var (
	ErrWrongStep      = errors.New("session: operation not allowed in current step")
	ErrNoSource       = errors.New("session: no source text to re-analyze")
	ErrUnknownStudent = errors.New("session: unknown student")
	ErrUnknownSubject = errors.New("session: unknown subject")
	ErrNoSelection    = errors.New("session: student has no selected standards")
	ErrNoComment      = errors.New("session: student has no comment to confirm")
	ErrStudentBusy    = errors.New("session: student generation already in progress")
	ErrBulkRunning    = errors.New("session: bulk generation in progress")
	ErrNotReady       = errors.New("session: comments not ready for download")
)

// Synthesizer produces one student's comment. Implemented by llm.Client;
// tests substitute fakes.
type Synthesizer interface {
	GenerateComment(ctx context.Context, student model.StudentData, data model.EvaluationData) (string, error)
}

// BulkDefaults are the level/attitude/focus values used by auto-select and
// bulk apply.
type BulkDefaults struct {
	AchievementLevel string `json:"achievement_level"`
	Attitude         string `json:"attitude"`
	GenerationFocus  string `json:"generation_focus"`
}

// Progress tracks a generate-all pass. Current counts completed students,
// not started ones.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// View is a point-in-time snapshot of the session for the API layer.
// Derived predicates are recomputed on every snapshot, never stored.
type View struct {
	Step            model.Step            `json:"step"`
	FileName        string                `json:"file_name,omitempty"`
	Data            *model.EvaluationData `json:"evaluation_data,omitempty"`
	CanReanalyze    bool                  `json:"can_reanalyze"`
	Students        []model.StudentData   `json:"students"`
	StudentCount    int                   `json:"student_count"`
	Subject         string                `json:"subject"`
	BulkDefaults    BulkDefaults          `json:"bulk_defaults"`
	AutoSelectCount int                   `json:"auto_select_count"`
	IsGeneratingAll bool                  `json:"is_generating_all"`
	Progress        *Progress             `json:"progress,omitempty"`
	CanDownload     bool                  `json:"can_download"`
	CanConfirmAll   bool                  `json:"can_confirm_all"`
}

// Session is one teacher's working state. Safe for concurrent use.
type Session struct {
	mu sync.Mutex

	step     model.Step
	data     *model.EvaluationData
	rawText  string
	fileName string

	students        []model.StudentData
	studentCount    int
	subject         string
	bulk            BulkDefaults
	autoSelectCount int

	isGeneratingAll bool
	progress        *Progress
}

// New creates a fresh session at the upload step.
func New() *Session {
	s := &Session{}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.step = model.StepUpload
	s.data = nil
	s.rawText = ""
	s.fileName = ""
	s.students = nil
	s.studentCount = 1
	s.subject = ""
	s.autoSelectCount = 2
	s.bulk = BulkDefaults{
		AchievementLevel: model.LevelHigh,
		Attitude:         model.AttitudeGood,
		GenerationFocus:  model.FocusBalanced,
	}
	s.isGeneratingAll = false
	s.progress = nil
}

// Snapshot returns the current view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Step:            s.step,
		FileName:        s.fileName,
		Data:            s.data,
		CanReanalyze:    s.rawText != "",
		Students:        cloneStudents(s.students),
		StudentCount:    s.studentCount,
		Subject:         s.subject,
		BulkDefaults:    s.bulk,
		AutoSelectCount: s.autoSelectCount,
		IsGeneratingAll: s.isGeneratingAll,
		CanDownload:     canDownload(s.students),
		CanConfirmAll:   canConfirmAll(s.students),
	}
	if s.progress != nil {
		p := *s.progress
		v.Progress = &p
	}
	return v
}

// BeginReview stores a fresh extraction result and moves to the review step.
// Valid from upload (first analysis) and from review (re-analysis); the
// previous EvaluationData is replaced wholesale and any roster state derived
// from it is discarded.
func (s *Session) BeginReview(data model.EvaluationData, rawText, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isGeneratingAll {
		return ErrBulkRunning
	}
	s.step = model.StepReview
	s.data = &data
	s.rawText = rawText
	s.fileName = fileName
	s.students = nil
	s.subject = ""
	return nil
}

// RawText returns the stored source text for re-analysis.
func (s *Session) RawText() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rawText == "" {
		return "", ErrNoSource
	}
	return s.rawText, nil
}

// Data returns the current evaluation data.
func (s *Session) Data() (model.EvaluationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return model.EvaluationData{}, ErrWrongStep
	}
	return *s.data, nil
}

// FileName returns the analyzed file's name.
func (s *Session) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// ConfirmReview advances review → generate and builds the initial roster.
func (s *Session) ConfirmReview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != model.StepReview || s.data == nil {
		return ErrWrongStep
	}
	s.step = model.StepGenerate
	if s.subject == "" && len(s.data.Subjects) > 0 {
		s.subject = s.data.Subjects[0]
	}
	s.resizeLocked()
	return nil
}

// Restart discards everything and returns to the upload step.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isGeneratingAll {
		return ErrBulkRunning
	}
	s.resetLocked()
	return nil
}

// SetStudentCount resizes the roster. Existing students keep their state by
// id; growth appends fresh students; shrinking truncates from the high end.
func (s *Session) SetStudentCount(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != model.StepGenerate {
		return ErrWrongStep
	}
	if s.isGeneratingAll {
		return ErrBulkRunning
	}
	if n < 1 {
		n = 1
	}
	s.studentCount = n
	s.resizeLocked()
	return nil
}

func (s *Session) resizeLocked() {
	roster := make([]model.StudentData, 0, s.studentCount)
	for id := 1; id <= s.studentCount; id++ {
		if existing := s.findLocked(id); existing != nil {
			roster = append(roster, *existing)
			continue
		}
		roster = append(roster, model.StudentData{ID: id, Subject: s.subject})
	}
	s.students = roster
}

// SetSubject switches every student to the new subject. Standards are
// subject-scoped, so all selections, comments, errors, and confirmations are
// cleared.
func (s *Session) SetSubject(subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != model.StepGenerate || s.data == nil {
		return ErrWrongStep
	}
	if s.isGeneratingAll {
		return ErrBulkRunning
	}
	if !slices.Contains(s.data.Subjects, subject) {
		return ErrUnknownSubject
	}
	s.subject = subject
	for i := range s.students {
		st := &s.students[i]
		st.Subject = subject
		st.StandardEvaluations = nil
		st.Comment = ""
		st.Error = ""
		st.IsConfirmed = false
	}
	return nil
}

// SetBulkDefaults replaces the level/attitude/focus defaults.
func (s *Session) SetBulkDefaults(bd BulkDefaults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bd.AchievementLevel != "" {
		s.bulk.AchievementLevel = bd.AchievementLevel
	}
	if bd.Attitude != "" {
		s.bulk.Attitude = bd.Attitude
	}
	if bd.GenerationFocus != "" {
		s.bulk.GenerationFocus = bd.GenerationFocus
	}
}

// SetAutoSelectCount sets how many standards auto-select samples.
func (s *Session) SetAutoSelectCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.autoSelectCount = n
}

// SelectStandards replaces one student's selections. Order of the given
// evaluations is the selection order.
func (s *Session) SelectStandards(id int, evals []model.StandardEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.editableLocked(id)
	if err != nil {
		return err
	}
	st.StandardEvaluations = slices.Clone(evals)
	return nil
}

// SetComment replaces one student's comment text (manual edit). Any change
// drops the confirmation lock; writing the identical text leaves it alone.
func (s *Session) SetComment(id int, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.editableLocked(id)
	if err != nil {
		return err
	}
	setComment(st, comment)
	return nil
}

// setComment applies the confirmation-invalidation invariant.
func setComment(st *model.StudentData, comment string) {
	if st.Comment == comment {
		return
	}
	st.Comment = comment
	st.IsConfirmed = false
}

// Confirm locks one student's comment for export.
func (s *Session) Confirm(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.editableLocked(id)
	if err != nil {
		return err
	}
	if st.Comment == "" {
		return ErrNoComment
	}
	st.IsConfirmed = true
	return nil
}

// ConfirmAll locks every commented, unconfirmed student.
func (s *Session) ConfirmAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != model.StepGenerate {
		return ErrWrongStep
	}
	for i := range s.students {
		st := &s.students[i]
		if st.Comment != "" && !st.IsConfirmed {
			st.IsConfirmed = true
		}
	}
	return nil
}

// AutoSelect overwrites one student's selections with a uniform random
// sample of their subject's standards, configured with the bulk defaults.
func (s *Session) AutoSelect(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.editableLocked(id)
	if err != nil {
		return err
	}
	if s.data == nil {
		return ErrWrongStep
	}
	if evals := s.sampleLocked(st.Subject); evals != nil {
		st.StandardEvaluations = evals
	}
	return nil
}

// AutoSelectAll runs auto-select for every student, with an independent
// random draw per student.
func (s *Session) AutoSelectAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != model.StepGenerate || s.data == nil {
		return ErrWrongStep
	}
	if s.isGeneratingAll {
		return ErrBulkRunning
	}
	for i := range s.students {
		st := &s.students[i]
		if evals := s.sampleLocked(st.Subject); evals != nil {
			st.StandardEvaluations = evals
		}
	}
	return nil
}

// sampleLocked draws autoSelectCount standards without replacement from the
// subject's catalog: uniform shuffle, take the prefix. Nil when the subject
// has no standards.
func (s *Session) sampleLocked(subject string) []model.StandardEvaluation {
	catalog := s.data.StandardsFor(subject)
	if len(catalog) == 0 {
		return nil
	}
	shuffled := slices.Clone(catalog)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	k := min(s.autoSelectCount, len(shuffled))
	evals := make([]model.StandardEvaluation, 0, k)
	for _, standard := range shuffled[:k] {
		evals = append(evals, model.StandardEvaluation{
			StandardID:       standard.ID,
			AchievementLevel: s.bulk.AchievementLevel,
			Attitude:         s.bulk.Attitude,
			GenerationFocus:  s.bulk.GenerationFocus,
		})
	}
	return evals
}

// BulkApply overwrites level, attitude, and focus on every existing
// selection of every student that has at least one. Notes and the selected
// set itself stay untouched; touched students lose their confirmation.
func (s *Session) BulkApply() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != model.StepGenerate {
		return ErrWrongStep
	}
	if s.isGeneratingAll {
		return ErrBulkRunning
	}
	for i := range s.students {
		st := &s.students[i]
		if len(st.StandardEvaluations) == 0 {
			continue
		}
		for j := range st.StandardEvaluations {
			se := &st.StandardEvaluations[j]
			se.AchievementLevel = s.bulk.AchievementLevel
			se.Attitude = s.bulk.Attitude
			se.GenerationFocus = s.bulk.GenerationFocus
		}
		st.IsConfirmed = false
	}
	return nil
}

// ConfirmedStudents returns commented-and-confirmed students in roster order.
func (s *Session) ConfirmedStudents() ([]model.StudentData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canDownload(s.students) {
		return nil, ErrNotReady
	}
	var out []model.StudentData
	for _, st := range s.students {
		if st.Comment != "" && st.IsConfirmed {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Session) findLocked(id int) *model.StudentData {
	for i := range s.students {
		if s.students[i].ID == id {
			return &s.students[i]
		}
	}
	return nil
}

// editableLocked resolves a student for mutation, rejecting edits outside the
// generate step or while a bulk pass owns the roster.
func (s *Session) editableLocked(id int) (*model.StudentData, error) {
	if s.step != model.StepGenerate {
		return nil, ErrWrongStep
	}
	if s.isGeneratingAll {
		return nil, ErrBulkRunning
	}
	st := s.findLocked(id)
	if st == nil {
		return nil, ErrUnknownStudent
	}
	return st, nil
}

func canDownload(students []model.StudentData) bool {
	commented := 0
	for _, st := range students {
		if st.Comment == "" {
			continue
		}
		commented++
		if !st.IsConfirmed {
			return false
		}
	}
	return commented > 0
}

func canConfirmAll(students []model.StudentData) bool {
	for _, st := range students {
		if st.Comment != "" && !st.IsConfirmed {
			return true
		}
	}
	return false
}

func cloneStudents(students []model.StudentData) []model.StudentData {
	out := slices.Clone(students)
	for i := range out {
		out[i].StandardEvaluations = slices.Clone(out[i].StandardEvaluations)
	}
	return out
}
