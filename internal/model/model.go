package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleTeacher is a regular teacher account.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin account.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Step is the main workflow step.
type Step string

const (
	StepUpload   Step = "upload"
	StepReview   Step = "review"
	StepGenerate Step = "generate"
)

// AchievementStandard is a curriculum achievement standard (성취기준).
// The ID is a bracketed curriculum code when the source document carries one
// (e.g. [2슬01-01]), otherwise a short model-assigned identifier. Identity is
// scoped to the subject the standard belongs to.
type AchievementStandard struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// EvaluationData is the structured result of analyzing one evaluation plan.
// Subjects keeps the order the model returned; Standards maps each subject to
// its standards in document order. Replaced wholesale on re-analysis, never
// patched.
type EvaluationData struct {
	Subjects  []string                         `json:"subjects"`
	Standards map[string][]AchievementStandard `json:"standards"`
}

// StandardsFor returns the standards for a subject (nil if unknown).
func (d EvaluationData) StandardsFor(subject string) []AchievementStandard {
	return d.Standards[subject]
}

// FindStandard resolves a standard id, searching the given subject's catalog
// first and then every other subject. Returns nil when the id is unknown.
func (d EvaluationData) FindStandard(subject, id string) *AchievementStandard {
	for _, s := range d.Standards[subject] {
		if s.ID == id {
			return &s
		}
	}
	for subj, standards := range d.Standards {
		if subj == subject {
			continue
		}
		for _, s := range standards {
			if s.ID == id {
				return &s
			}
		}
	}
	return nil
}

// Achievement level options (성취 수준), as shown to the teacher.
const (
	LevelHigh        = "상 (매우 잘함)"
	LevelMiddle      = "중 (잘함)"
	LevelLow         = "하 (보통)"
	LevelNeedsEffort = "노력 요함"
)

// Attitude options (태도).
const (
	AttitudeGood    = "좋음"
	AttitudeAverage = "보통"
	AttitudePoor    = "미흡함"
)

// Generation focus options (생성 중심), controlling how the synthesized
// sentence weighs achievement against attitude.
const (
	FocusBalanced    = "성취 수준 & 태도 같은 비율"
	FocusAchievement = "성취 수준 중심"
	FocusAttitude    = "태도 중심"
)

// StandardEvaluation is one student's configuration for one selected standard.
// It exists only while the standard stays selected for that student.
type StandardEvaluation struct {
	StandardID       string `json:"standard_id"`
	AchievementLevel string `json:"achievement_level"`
	Attitude         string `json:"attitude"`
	GenerationFocus  string `json:"generation_focus"`
	AdditionalInfo   string `json:"additional_info"`
}

// StudentData is one student's working state in the generate step.
// IDs are dense 1..N and reassigned on roster resize.
type StudentData struct {
	ID                  int                  `json:"id"`
	Subject             string               `json:"subject"`
	StandardEvaluations []StandardEvaluation `json:"standard_evaluations"`
	Comment             string               `json:"comment"`
	IsGenerating        bool                 `json:"is_generating"`
	Error               string               `json:"error,omitempty"`
	IsConfirmed         bool                 `json:"is_confirmed"`
}

// ModelSettings holds the generative-model endpoint configuration.
// Settings are stored per user; empty fields fall back to server defaults.
type ModelSettings struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

// Configured reports whether a model call can be attempted at all.
func (m ModelSettings) Configured() bool {
	return m.APIKey != "" && m.Model != ""
}

// Merge overlays the non-empty fields of m on top of def.
func (m ModelSettings) Merge(def ModelSettings) ModelSettings {
	out := def
	if m.BaseURL != "" {
		out.BaseURL = m.BaseURL
	}
	if m.APIKey != "" {
		out.APIKey = m.APIKey
	}
	if m.Model != "" {
		out.Model = m.Model
	}
	return out
}

// SavedEvaluation is a stored analysis snapshot.
type SavedEvaluation struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	FileName  string         `json:"file_name"`
	Data      EvaluationData `json:"evaluation_data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	SecureCookies  bool          // Set Secure flag on cookies (disable for local dev)
	MaxUploadBytes int64         // Upload size cap for PDF files
	DefaultModel   ModelSettings // Fallback when a user has no stored settings
}
