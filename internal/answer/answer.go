package answer

import (
	"time"
)

// Response is what the question-answering backend returns. Answer holds the
// raw markdown; the other fields echo the request.
type Response struct {
	Answer        string `json:"answer" validate:"required"`
	Subject       string `json:"subject"`
	Level         string `json:"level"`
	LearningStyle string `json:"learning_style"`
	Language      string `json:"language"`
}

type Question struct {
	Subject       string `json:"subject" validate:"required"`
	Level         string `json:"level" validate:"required"`
	LearningStyle string `json:"learning_style" validate:"required"`
	Language      string `json:"language" validate:"required"`
	Question      string `json:"question" validate:"required"`
}

type Options struct {
	Subjects       []string `json:"subjects"`
	Levels         []string `json:"levels"`
	LearningStyles []string `json:"learning_styles"`
	Languages      []string `json:"languages"`
}

// FallbackOptions is substituted whenever the option lookups fail.
func FallbackOptions() Options {
	return Options{
		Subjects:       []string{"Mathematics", "Science", "Physics", "Chemistry", "Biology", "Computer Science", "History", "Literature"},
		Levels:         []string{"Beginner", "Elementary", "Intermediate", "Advanced", "Expert"},
		LearningStyles: []string{"Visual", "Auditory", "Kinesthetic", "Reading/Writing", "Logical"},
		Languages:      []string{"English", "Spanish", "French", "German", "Chinese", "Other"},
	}
}

// Profile fields come from the identity provider and are passed through as-is.
type Profile struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Age    *int   `json:"age,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type HistoryEntry struct {
	ID            int64     `json:"id" db:"id"`
	Subject       string    `json:"subject" db:"subject"`
	Level         string    `json:"level" db:"level"`
	LearningStyle string    `json:"learning_style" db:"learning_style"`
	Language      string    `json:"language" db:"language"`
	Question      string    `json:"question" db:"question"`
	Answer        string    `json:"answer" db:"answer"`
	Timestamp     time.Time `json:"timestamp" db:"created_at"`
}

// NewHistoryEntry pairs the question with the answer it produced.
func NewHistoryEntry(q Question, r Response, at time.Time) HistoryEntry {
	return HistoryEntry{
		Subject:       q.Subject,
		Level:         q.Level,
		LearningStyle: q.LearningStyle,
		Language:      q.Language,
		Question:      q.Question,
		Answer:        r.Answer,
		Timestamp:     at,
	}
}

// Response rebuilds the AnswerResponse shown when a history item is selected.
func (e HistoryEntry) Response() Response {
	return Response{
		Answer:        e.Answer,
		Subject:       e.Subject,
		Level:         e.Level,
		LearningStyle: e.LearningStyle,
		Language:      e.Language,
	}
}
