package voice

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
)

// Recording languages.
const (
	LangEnglish   = "en"
	LangMalayalam = "ml"
)

// Acoustic task types a recording may capture.
const (
	TaskProlongedVowel         = "prolonged_vowel"
	TaskMaximumPhonation       = "maximum_phonation"
	TaskRainbowPassage         = "rainbow_passage"
	TaskPitchGlides            = "pitch_glides"
	TaskLoudness               = "loudness_task"
	TaskFreeSpeech             = "free_speech"
	TaskRespirationObservation = "respiration_observation"
	TaskReflexCough            = "reflex_cough"
	TaskVoluntaryCough         = "voluntary_cough"
	TaskBreathSounds           = "breath_sounds"
	TaskMalayalamVowels        = "malayalam_vowels"
	TaskMalayalamConsonants    = "malayalam_consonants"
	TaskMalayalamWords         = "malayalam_words"
	TaskMalayalamPassage       = "malayalam_passage"
)

// TaskTypes lists every accepted task type in protocol order.
var TaskTypes = []string{
	TaskProlongedVowel, TaskMaximumPhonation, TaskRainbowPassage, TaskPitchGlides,
	TaskLoudness, TaskFreeSpeech, TaskRespirationObservation, TaskReflexCough,
	TaskVoluntaryCough, TaskBreathSounds, TaskMalayalamVowels, TaskMalayalamConsonants,
	TaskMalayalamWords, TaskMalayalamPassage,
}

func validTaskType(t string) bool {
	for _, v := range TaskTypes {
		if v == t {
			return true
		}
	}
	return false
}

func validLanguage(l string) bool {
	return l == LangEnglish || l == LangMalayalam
}

// -- Recordings --

// Recording is the metadata row of one captured audio sample. The audio itself
// lives in the blob store under AudioFilePath.
type Recording struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"userId"`
	SessionID       string    `json:"sessionId"`
	TaskType        string    `json:"taskType"`
	Language        string    `json:"language"`
	AudioFilePath   string    `json:"audioFilePath"`
	OriginalName    string    `json:"originalName,omitempty"`
	FileSize        int64     `json:"fileSize"`
	FileHash        string    `json:"fileHash,omitempty"`
	DurationSeconds float64   `json:"durationSeconds"`
	RecordingDate   time.Time `json:"recordingDate"`
	CreatedAt       time.Time `json:"createdAt"`

	// ParticipantName is filled by admin searches that join the patient.
	ParticipantName string `json:"participantName,omitempty"`
}

// RecordingUpload is a multipart recording submission.
type RecordingUpload struct {
	UserID          string
	SessionID       string
	TaskType        string
	Language        string
	DurationSeconds float64
	FileName        string
	Content         io.Reader
}

// RecordingQuery filters the admin recordings list.
type RecordingQuery struct {
	UserID        string
	TaskType      string
	PatientSearch string
	From          time.Time
	To            time.Time
	SortBy        string
	SortOrder     string
}

// -- Task assignments --

const (
	ConditionOralCancer        = "oral_cancer"
	ConditionLarynxHypopharynx = "larynx_hypopharynx"
	ConditionPharynxCancer     = "pharynx_cancer"
	ConditionOther             = "other"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Task is one acoustic task to record in a given language.
type Task struct {
	Type     string `json:"type"`
	Language string `json:"language"`
	Optional bool   `json:"optional,omitempty"`
}

type CompletedTask struct {
	Type        string    `json:"type"`
	Language    string    `json:"language"`
	CompletedAt time.Time `json:"completedAt"`
}

type taskSet struct {
	required []Task
	optional []Task
}

var taskConfig = map[string]taskSet{
	ConditionOralCancer: {
		required: []Task{{Type: TaskProlongedVowel, Language: LangEnglish}, {Type: TaskRainbowPassage, Language: LangEnglish}},
		optional: []Task{{Type: TaskMalayalamPassage, Language: LangMalayalam}},
	},
	ConditionLarynxHypopharynx: {
		required: []Task{{Type: TaskMaximumPhonation, Language: LangEnglish}, {Type: TaskFreeSpeech, Language: LangEnglish}},
	},
	ConditionPharynxCancer: {
		required: []Task{{Type: TaskProlongedVowel, Language: LangEnglish}, {Type: TaskMalayalamWords, Language: LangMalayalam}},
		optional: []Task{{Type: TaskPitchGlides, Language: LangEnglish}},
	},
}

// TasksFor returns the tasks assigned for a condition: required tasks first,
// then optional ones. "other" gets the union of every condition's required
// tasks, in first-seen order. ok is false for an unknown condition.
func TasksFor(condition string) (tasks []Task, ok bool) {
	if condition == ConditionOther {
		seen := map[Task]bool{}
		for _, c := range []string{ConditionOralCancer, ConditionLarynxHypopharynx, ConditionPharynxCancer} {
			for _, t := range taskConfig[c].required {
				if !seen[t] {
					seen[t] = true
					tasks = append(tasks, t)
				}
			}
		}
		return tasks, true
	}
	set, ok := taskConfig[condition]
	if !ok {
		return nil, false
	}
	tasks = append(tasks, set.required...)
	for _, t := range set.optional {
		t.Optional = true
		tasks = append(tasks, t)
	}
	return tasks, true
}

// TaskAssignment is the per-session list of acoustic tasks for a patient.
type TaskAssignment struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"userId"`
	SessionID      string          `json:"sessionId"`
	Condition      string          `json:"condition"`
	AssignedTasks  []Task          `json:"assignedTasks"`
	CompletedTasks []CompletedTask `json:"completedTasks"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (a *TaskAssignment) isDone(taskType, language string) bool {
	for _, c := range a.CompletedTasks {
		if c.Type == taskType && c.Language == language {
			return true
		}
	}
	return false
}

// markCompleted records a finished task and recomputes the status. It reports
// false when the task was already recorded.
func (a *TaskAssignment) markCompleted(taskType, language string, at time.Time) bool {
	if a.isDone(taskType, language) {
		return false
	}
	a.CompletedTasks = append(a.CompletedTasks, CompletedTask{Type: taskType, Language: language, CompletedAt: at})
	a.Status = a.deriveStatus()
	return true
}

// deriveStatus is pending with nothing completed, completed once every
// assigned task is done, and in_progress otherwise.
func (a *TaskAssignment) deriveStatus() string {
	if len(a.CompletedTasks) == 0 {
		return StatusPending
	}
	for _, t := range a.AssignedTasks {
		if !a.isDone(t.Type, t.Language) {
			return StatusInProgress
		}
	}
	return StatusCompleted
}

type AssignmentRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Condition string `json:"condition"`
}

type CompleteTaskRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	TaskType  string `json:"taskType"`
	Language  string `json:"language"`
}

// -- Session progress --

// SessionProgress is the resumable wizard state of one session.
type SessionProgress struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"userId"`
	SessionID    string          `json:"sessionId"`
	CurrentPage  string          `json:"currentPage"`
	ProgressData json.RawMessage `json:"progressData"`
	IsComplete   bool            `json:"isComplete"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type ProgressRequest struct {
	UserID       string          `json:"userId"`
	SessionID    string          `json:"sessionId"`
	CurrentPage  string          `json:"currentPage"`
	ProgressData json.RawMessage `json:"progressData"`
}

type SessionKey struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// -- Session feedback --

const (
	RatingMin = 1
	RatingMax = 5
)

type SessionFeedback struct {
	ID                uuid.UUID `json:"id"`
	AssignmentID      uuid.UUID `json:"assignmentId"`
	ClarityRating     *int      `json:"clarityRating,omitempty"`
	UsabilityRating   *int      `json:"usabilityRating,omitempty"`
	FatigueRating     *int      `json:"fatigueRating,omitempty"`
	EngagementRating  *int      `json:"engagementRating,omitempty"`
	Comments          string    `json:"comments,omitempty"`
	AssistanceNeeded  bool      `json:"assistanceNeeded"`
	AssistanceDetails string    `json:"assistanceDetails,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type FeedbackRequest struct {
	AssignmentID      string `json:"assignmentId"`
	ClarityRating     *int   `json:"clarityRating,omitempty"`
	UsabilityRating   *int   `json:"usabilityRating,omitempty"`
	FatigueRating     *int   `json:"fatigueRating,omitempty"`
	EngagementRating  *int   `json:"engagementRating,omitempty"`
	Comments          string `json:"comments,omitempty"`
	AssistanceNeeded  bool   `json:"assistanceNeeded"`
	AssistanceDetails string `json:"assistanceDetails,omitempty"`
}
