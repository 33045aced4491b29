package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/yunseol/pyeongeo/internal/model"
)

func testData() model.EvaluationData {
	return model.EvaluationData{
		Subjects: []string{"국어", "수학"},
		Standards: map[string][]model.AchievementStandard{
			"국어": {
				{ID: "[2국01-01]", Text: "상황에 어울리는 인사말을 주고받는다."},
				{ID: "[2국01-02]", Text: "바르고 고운 말을 사용한다."},
				{ID: "[2국02-01]", Text: "글자, 낱말, 문장을 소리 내어 읽는다."},
				{ID: "[2국03-01]", Text: "주변의 사람이나 사물에 대해 짧은 글을 쓴다."},
			},
			"수학": {
				{ID: "[2수01-01]", Text: "세 자리 수를 읽고 쓴다."},
				{ID: "[2수02-01]", Text: "여러 가지 도형을 분류한다."},
				{ID: "[2수01-02]", Text: "받아올림이 있는 덧셈을 한다."},
			},
		},
	}
}

func newGenerateSession(t *testing.T) *Session {
	t.Helper()
	s := New()
	if err := s.BeginReview(testData(), "원본 텍스트", "평가계획.pdf"); err != nil {
		t.Fatalf("BeginReview: %v", err)
	}
	if err := s.ConfirmReview(); err != nil {
		t.Fatalf("ConfirmReview: %v", err)
	}
	return s
}

func selectOne(t *testing.T, s *Session, id int, standardID string) {
	t.Helper()
	err := s.SelectStandards(id, []model.StandardEvaluation{{
		StandardID:       standardID,
		AchievementLevel: model.LevelHigh,
		Attitude:         model.AttitudeGood,
		GenerationFocus:  model.FocusBalanced,
	}})
	if err != nil {
		t.Fatalf("SelectStandards(%d): %v", id, err)
	}
}

type fakeSynth struct {
	calls    []int
	observed []Progress
	comment  func(st model.StudentData) (string, error)
	session  *Session
}

func (f *fakeSynth) GenerateComment(_ context.Context, st model.StudentData, _ model.EvaluationData) (string, error) {
	f.calls = append(f.calls, st.ID)
	if f.session != nil {
		if p := f.session.Snapshot().Progress; p != nil {
			f.observed = append(f.observed, *p)
		}
	}
	if f.comment != nil {
		return f.comment(st)
	}
	return "성실히 참여함.", nil
}

func TestStepProgression(t *testing.T) {
	s := New()
	if got := s.Snapshot().Step; got != model.StepUpload {
		t.Fatalf("fresh session step = %q", got)
	}
	if err := s.ConfirmReview(); !errors.Is(err, ErrWrongStep) {
		t.Errorf("ConfirmReview before review: expected ErrWrongStep, got %v", err)
	}

	if err := s.BeginReview(testData(), "텍스트", "plan.pdf"); err != nil {
		t.Fatalf("BeginReview: %v", err)
	}
	v := s.Snapshot()
	if v.Step != model.StepReview || v.Data == nil || !v.CanReanalyze {
		t.Errorf("after BeginReview: step=%q data=%v canReanalyze=%v", v.Step, v.Data, v.CanReanalyze)
	}

	// Re-analysis is a review self-loop replacing the data wholesale.
	replacement := model.EvaluationData{
		Subjects:  []string{"통합교과"},
		Standards: map[string][]model.AchievementStandard{"통합교과": {{ID: "t-1", Text: "텍스트"}}},
	}
	if err := s.BeginReview(replacement, "텍스트", "plan.pdf"); err != nil {
		t.Fatalf("re-analysis BeginReview: %v", err)
	}
	v = s.Snapshot()
	if v.Step != model.StepReview || len(v.Data.Subjects) != 1 || v.Data.Subjects[0] != "통합교과" {
		t.Errorf("re-analysis did not replace data: %+v", v.Data)
	}

	if err := s.ConfirmReview(); err != nil {
		t.Fatalf("ConfirmReview: %v", err)
	}
	v = s.Snapshot()
	if v.Step != model.StepGenerate {
		t.Errorf("expected generate step, got %q", v.Step)
	}
	if len(v.Students) != 1 || v.Students[0].ID != 1 || v.Students[0].Subject != "통합교과" {
		t.Errorf("initial roster wrong: %+v", v.Students)
	}

	if err := s.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	v = s.Snapshot()
	if v.Step != model.StepUpload || v.Data != nil || len(v.Students) != 0 || v.Subject != "" || v.CanReanalyze {
		t.Errorf("restart did not clear session: %+v", v)
	}
}

func TestResizePreservesIdentity(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.SetStudentCount(3); err != nil {
		t.Fatalf("SetStudentCount: %v", err)
	}
	selectOne(t, s, 2, "[2국01-01]")
	if err := s.SetComment(2, "바르게 인사함."); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	before := s.Snapshot().Students

	if err := s.SetStudentCount(5); err != nil {
		t.Fatalf("grow: %v", err)
	}
	after := s.Snapshot().Students
	if len(after) != 5 {
		t.Fatalf("expected 5 students, got %d", len(after))
	}
	if !reflect.DeepEqual(before, after[:3]) {
		t.Errorf("existing students changed across resize:\nbefore %+v\nafter  %+v", before, after[:3])
	}
	for i, st := range after[3:] {
		wantID := 4 + i
		if st.ID != wantID || st.Subject != "국어" || len(st.StandardEvaluations) != 0 || st.Comment != "" || st.IsConfirmed {
			t.Errorf("fresh student %d not default: %+v", wantID, st)
		}
	}

	if err := s.SetStudentCount(2); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	after = s.Snapshot().Students
	if len(after) != 2 {
		t.Fatalf("expected 2 students, got %d", len(after))
	}
	if !reflect.DeepEqual(before[:2], after) {
		t.Errorf("shrink should truncate from the high end only")
	}
}

func TestSubjectSwitchClearsDerivedState(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.SetStudentCount(2); err != nil {
		t.Fatalf("SetStudentCount: %v", err)
	}
	selectOne(t, s, 1, "[2국01-01]")
	if err := s.SetComment(1, "잘함."); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	if err := s.Confirm(1); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if err := s.SetSubject("영어"); !errors.Is(err, ErrUnknownSubject) {
		t.Errorf("unknown subject: expected ErrUnknownSubject, got %v", err)
	}

	if err := s.SetSubject("수학"); err != nil {
		t.Fatalf("SetSubject: %v", err)
	}
	for _, st := range s.Snapshot().Students {
		if st.Subject != "수학" {
			t.Errorf("student %d subject = %q", st.ID, st.Subject)
		}
		if len(st.StandardEvaluations) != 0 || st.Comment != "" || st.Error != "" || st.IsConfirmed {
			t.Errorf("student %d derived state not cleared: %+v", st.ID, st)
		}
	}
}

func TestConfirmationInvalidation(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.SetComment(1, "처음 평어"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	if err := s.Confirm(1); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	// Writing the identical text keeps the lock.
	if err := s.SetComment(1, "처음 평어"); err != nil {
		t.Fatalf("SetComment same: %v", err)
	}
	if !s.Snapshot().Students[0].IsConfirmed {
		t.Error("unchanged comment should keep confirmation")
	}

	// Any change drops it.
	if err := s.SetComment(1, "고친 평어"); err != nil {
		t.Fatalf("SetComment changed: %v", err)
	}
	if s.Snapshot().Students[0].IsConfirmed {
		t.Error("changed comment should drop confirmation")
	}
}

func TestConfirmRequiresComment(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.Confirm(1); !errors.Is(err, ErrNoComment) {
		t.Errorf("expected ErrNoComment, got %v", err)
	}
	if err := s.Confirm(7); !errors.Is(err, ErrUnknownStudent) {
		t.Errorf("expected ErrUnknownStudent, got %v", err)
	}
}

func TestDownloadGating(t *testing.T) {
	tests := []struct {
		name     string
		students []model.StudentData
		want     bool
	}{
		{"no students", nil, false},
		{"no comments", []model.StudentData{{ID: 1}}, false},
		{"commented unconfirmed", []model.StudentData{{ID: 1, Comment: "a"}}, false},
		{"commented confirmed", []model.StudentData{{ID: 1, Comment: "a", IsConfirmed: true}}, true},
		{"uncommented student ignored", []model.StudentData{
			{ID: 1, Comment: "a", IsConfirmed: true},
			{ID: 2},
		}, true},
		{"one unconfirmed blocks", []model.StudentData{
			{ID: 1, Comment: "a", IsConfirmed: true},
			{ID: 2, Comment: "b"},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canDownload(tt.students); got != tt.want {
				t.Errorf("canDownload = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanConfirmAll(t *testing.T) {
	tests := []struct {
		name     string
		students []model.StudentData
		want     bool
	}{
		{"empty", nil, false},
		{"nothing commented", []model.StudentData{{ID: 1}}, false},
		{"all confirmed", []model.StudentData{{ID: 1, Comment: "a", IsConfirmed: true}}, false},
		{"one pending", []model.StudentData{
			{ID: 1, Comment: "a", IsConfirmed: true},
			{ID: 2, Comment: "b"},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canConfirmAll(tt.students); got != tt.want {
				t.Errorf("canConfirmAll = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAutoSelectSampling(t *testing.T) {
	s := newGenerateSession(t)
	catalog := map[string]bool{}
	for _, std := range testData().Standards["국어"] {
		catalog[std.ID] = true
	}

	// Repeated draws: always exactly 2 distinct in-catalog ids with the
	// current bulk defaults and empty notes.
	for range 20 {
		if err := s.AutoSelect(1); err != nil {
			t.Fatalf("AutoSelect: %v", err)
		}
		evals := s.Snapshot().Students[0].StandardEvaluations
		if len(evals) != 2 {
			t.Fatalf("expected 2 selections, got %d", len(evals))
		}
		if evals[0].StandardID == evals[1].StandardID {
			t.Fatalf("sample with replacement: %q twice", evals[0].StandardID)
		}
		for _, se := range evals {
			if !catalog[se.StandardID] {
				t.Errorf("selected id %q not in subject catalog", se.StandardID)
			}
			if se.AchievementLevel != model.LevelHigh || se.Attitude != model.AttitudeGood || se.GenerationFocus != model.FocusBalanced {
				t.Errorf("selection missing bulk defaults: %+v", se)
			}
			if se.AdditionalInfo != "" {
				t.Errorf("auto-selected note should be empty, got %q", se.AdditionalInfo)
			}
		}
	}
}

func TestAutoSelectCountCapsAtCatalog(t *testing.T) {
	s := newGenerateSession(t)
	s.SetAutoSelectCount(10)
	if err := s.AutoSelect(1); err != nil {
		t.Fatalf("AutoSelect: %v", err)
	}
	if got := len(s.Snapshot().Students[0].StandardEvaluations); got != 4 {
		t.Errorf("expected full catalog (4), got %d", got)
	}
}

func TestAutoSelectAll(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.SetStudentCount(4); err != nil {
		t.Fatalf("SetStudentCount: %v", err)
	}
	if err := s.AutoSelectAll(); err != nil {
		t.Fatalf("AutoSelectAll: %v", err)
	}
	for _, st := range s.Snapshot().Students {
		if len(st.StandardEvaluations) != 2 {
			t.Errorf("student %d: expected 2 selections, got %d", st.ID, len(st.StandardEvaluations))
		}
	}
}

func TestBulkApplyScope(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.SetStudentCount(3); err != nil {
		t.Fatalf("SetStudentCount: %v", err)
	}
	err := s.SelectStandards(1, []model.StandardEvaluation{
		{StandardID: "[2국01-01]", AchievementLevel: model.LevelLow, Attitude: model.AttitudePoor, GenerationFocus: model.FocusAttitude, AdditionalInfo: "발표를 잘함"},
		{StandardID: "[2국01-02]", AchievementLevel: model.LevelLow, Attitude: model.AttitudePoor, GenerationFocus: model.FocusAttitude},
	})
	if err != nil {
		t.Fatalf("SelectStandards: %v", err)
	}
	if err := s.SetComment(1, "평어"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	if err := s.Confirm(1); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	before2 := s.Snapshot().Students[1]

	s.SetBulkDefaults(BulkDefaults{
		AchievementLevel: model.LevelMiddle,
		Attitude:         model.AttitudeAverage,
		GenerationFocus:  model.FocusAchievement,
	})
	if err := s.BulkApply(); err != nil {
		t.Fatalf("BulkApply: %v", err)
	}

	st := s.Snapshot().Students[0]
	if len(st.StandardEvaluations) != 2 {
		t.Fatalf("selection set changed: %d", len(st.StandardEvaluations))
	}
	for _, se := range st.StandardEvaluations {
		if se.AchievementLevel != model.LevelMiddle || se.Attitude != model.AttitudeAverage || se.GenerationFocus != model.FocusAchievement {
			t.Errorf("bulk values not applied: %+v", se)
		}
	}
	if st.StandardEvaluations[0].AdditionalInfo != "발표를 잘함" {
		t.Error("bulk apply must not touch notes")
	}
	if st.IsConfirmed {
		t.Error("bulk apply must drop confirmation on touched students")
	}

	// Students without selections are untouched entirely.
	after2 := s.Snapshot().Students[1]
	if !reflect.DeepEqual(before2, after2) {
		t.Errorf("student without selections was touched: %+v -> %+v", before2, after2)
	}
}

func TestGenerateSetsComment(t *testing.T) {
	s := newGenerateSession(t)
	selectOne(t, s, 1, "[2국01-01]")
	synth := &fakeSynth{comment: func(model.StudentData) (string, error) {
		return "  상황에 어울리는 인사말을 바르게 주고받음.  ", nil
	}}

	// llm.Client trims; the session stores what the synthesizer returns.
	if err := s.Generate(context.Background(), 1, synth); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	st := s.Snapshot().Students[0]
	if st.Comment == "" || st.IsGenerating || st.Error != "" {
		t.Errorf("unexpected student state: %+v", st)
	}
	if st.IsConfirmed {
		t.Error("fresh generation must not be confirmed")
	}
}

func TestGenerateGuards(t *testing.T) {
	s := newGenerateSession(t)
	synth := &fakeSynth{}

	if err := s.Generate(context.Background(), 1, synth); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
	if err := s.Generate(context.Background(), 9, synth); !errors.Is(err, ErrUnknownStudent) {
		t.Errorf("expected ErrUnknownStudent, got %v", err)
	}

	// Regeneration while the same student is mid-flight is refused at the
	// state layer.
	selectOne(t, s, 1, "[2국01-01]")
	reentrant := &fakeSynth{}
	reentrant.comment = func(st model.StudentData) (string, error) {
		if err := s.Generate(context.Background(), st.ID, reentrant); !errors.Is(err, ErrStudentBusy) {
			t.Errorf("expected ErrStudentBusy for concurrent regenerate, got %v", err)
		}
		return "평어", nil
	}
	if err := s.Generate(context.Background(), 1, reentrant); err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestGenerateFailureRecordsErrorOnly(t *testing.T) {
	s := newGenerateSession(t)
	selectOne(t, s, 1, "[2국01-01]")
	synthErr := errors.New("model unreachable")
	synth := &fakeSynth{comment: func(model.StudentData) (string, error) { return "", synthErr }}

	if err := s.Generate(context.Background(), 1, synth); !errors.Is(err, synthErr) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	st := s.Snapshot().Students[0]
	if st.Error == "" || st.Comment != "" || st.IsGenerating {
		t.Errorf("unexpected student state after failure: %+v", st)
	}
}

func TestGenerateAllSequentialOrderAndProgress(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.SetStudentCount(4); err != nil {
		t.Fatalf("SetStudentCount: %v", err)
	}
	selectOne(t, s, 1, "[2국01-01]")
	selectOne(t, s, 2, "[2국01-02]")
	selectOne(t, s, 3, "[2국02-01]")
	// Student 4 already has a comment and must be skipped.
	selectOne(t, s, 4, "[2국03-01]")
	if err := s.SetComment(4, "이미 생성됨"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}

	synth := &fakeSynth{session: s}
	if err := s.GenerateAll(context.Background(), synth); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	if !reflect.DeepEqual(synth.calls, []int{1, 2, 3}) {
		t.Errorf("expected roster-order calls 1,2,3, got %v", synth.calls)
	}
	// Progress observed while student k runs counts k-1 completions of 3.
	want := []Progress{{0, 3}, {1, 3}, {2, 3}}
	if !reflect.DeepEqual(synth.observed, want) {
		t.Errorf("progress during pass = %v, want %v", synth.observed, want)
	}

	v := s.Snapshot()
	if v.IsGeneratingAll || v.Progress != nil {
		t.Errorf("bulk flags not cleared: generatingAll=%v progress=%v", v.IsGeneratingAll, v.Progress)
	}
	for _, st := range v.Students[:3] {
		if st.Comment == "" {
			t.Errorf("student %d missing comment", st.ID)
		}
	}
	if v.Students[3].Comment != "이미 생성됨" {
		t.Error("student with existing comment must not be regenerated")
	}
}

func TestGenerateAllContinuesAfterFailure(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.SetStudentCount(3); err != nil {
		t.Fatalf("SetStudentCount: %v", err)
	}
	for id := 1; id <= 3; id++ {
		selectOne(t, s, id, "[2국01-01]")
	}
	synth := &fakeSynth{comment: func(st model.StudentData) (string, error) {
		if st.ID == 2 {
			return "", errors.New("model unreachable")
		}
		return "성실히 참여함.", nil
	}}

	if err := s.GenerateAll(context.Background(), synth); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	students := s.Snapshot().Students
	if students[0].Comment == "" || students[2].Comment == "" {
		t.Error("failure on one student must not block the others")
	}
	if students[1].Error == "" || students[1].Comment != "" {
		t.Errorf("failed student state: %+v", students[1])
	}
	if !reflect.DeepEqual(synth.calls, []int{1, 2, 3}) {
		t.Errorf("all students should be attempted, got %v", synth.calls)
	}
}

func TestRosterEditsBlockedDuringBulkPass(t *testing.T) {
	s := newGenerateSession(t)
	selectOne(t, s, 1, "[2국01-01]")
	synth := &fakeSynth{}
	synth.comment = func(st model.StudentData) (string, error) {
		if err := s.Generate(context.Background(), st.ID, synth); !errors.Is(err, ErrBulkRunning) {
			t.Errorf("expected ErrBulkRunning, got %v", err)
		}
		if err := s.BulkApply(); !errors.Is(err, ErrBulkRunning) {
			t.Errorf("BulkApply during pass: expected ErrBulkRunning, got %v", err)
		}
		if err := s.Restart(); !errors.Is(err, ErrBulkRunning) {
			t.Errorf("Restart during pass: expected ErrBulkRunning, got %v", err)
		}
		return "평어", nil
	}
	if err := s.GenerateAll(context.Background(), synth); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
}

func TestConfirmAllAndConfirmedStudents(t *testing.T) {
	s := newGenerateSession(t)
	if err := s.SetStudentCount(3); err != nil {
		t.Fatalf("SetStudentCount: %v", err)
	}
	if err := s.SetComment(1, "첫째 평어"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	if err := s.SetComment(3, "셋째 평어"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}

	if _, err := s.ConfirmedStudents(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady before confirm-all, got %v", err)
	}

	if err := s.ConfirmAll(); err != nil {
		t.Fatalf("ConfirmAll: %v", err)
	}
	confirmed, err := s.ConfirmedStudents()
	if err != nil {
		t.Fatalf("ConfirmedStudents: %v", err)
	}
	if len(confirmed) != 2 || confirmed[0].ID != 1 || confirmed[1].ID != 3 {
		t.Errorf("unexpected confirmed set: %+v", confirmed)
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	a := m.Get(1)
	if a == nil || m.Get(1) != a {
		t.Error("Get should return the same session per user")
	}
	if m.Get(2) == a {
		t.Error("sessions must be per-user")
	}
	m.Drop(1)
	if m.Get(1) == a {
		t.Error("Drop should discard the session")
	}
}
