package models

// Domain models matching the database schema in db/migrations/0001_init.sql

type QuestionType string

const (
	QuestionText     QuestionType = "text"
	QuestionTextarea QuestionType = "textarea"
	QuestionAudio    QuestionType = "audio"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionTextarea, QuestionAudio:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusRevision Status = "revision"
)

type Question struct {
	ID       string       `json:"id" db:"id"`
	Text     string       `json:"text" db:"text"`
	Type     QuestionType `json:"type" db:"type"`
	Required bool         `json:"required" db:"required"`
	Order    int          `json:"order" db:"sort_order"`
	Created  int64        `json:"created_at" db:"created"`
}

type Application struct {
	ID                  string   `json:"id" db:"id"`
	ApplicantID         string   `json:"applicant_id" db:"applicant_id"`
	ApplicantName       string   `json:"applicant_name" db:"applicant_name"`
	ApplicantAvatar     *string  `json:"applicant_avatar,omitempty" db:"applicant_avatar"`
	Status              Status   `json:"status" db:"status"`
	DenialReason        *string  `json:"denial_reason" db:"denial_reason"`
	RevisionReason      *string  `json:"revision_reason" db:"revision_reason"`
	RevisionQuestionIDs []string `json:"revision_question_ids" db:"-"`
	RevisedQuestionIDs  []string `json:"revised_question_ids" db:"-"`
	ReviewedBy          *string  `json:"reviewed_by" db:"reviewed_by"`
	ReviewedByID        *string  `json:"reviewed_by_id" db:"reviewed_by_id"`
	ReviewedAt          *int64   `json:"reviewed_at" db:"reviewed_at"`
	Created             int64    `json:"created_at" db:"created"`
	Updated             int64    `json:"updated_at" db:"updated"`
	Answers             []Answer `json:"answers,omitempty" db:"-"`
}

type Answer struct {
	ID            string    `json:"id" db:"id"`
	ApplicationID string    `json:"application_id" db:"application_id"`
	QuestionID    string    `json:"question_id" db:"question_id"`
	TextAnswer    *string   `json:"text_answer" db:"text_answer"`
	AudioURL      *string   `json:"audio_url" db:"audio_url"`
	Created       int64     `json:"created_at" db:"created"`
	Updated       int64     `json:"updated_at" db:"updated"`
	Question      *Question `json:"question,omitempty" db:"-"`
}

// HasContent reports whether the answer carries text or audio.
func (a Answer) HasContent() bool {
	return (a.TextAnswer != nil && *a.TextAnswer != "") || (a.AudioURL != nil && *a.AudioURL != "")
}
