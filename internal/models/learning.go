package models

import "time"

type LearningProgress struct {
	CompletedLessons []string              `bson:"completedLessons" json:"completedLessons"`
	Progress         map[string]float64    `bson:"progress" json:"progress"`
	QuizResults      map[string]QuizResult `bson:"quizResults" json:"quizResults"`
}

type QuizResult struct {
	Correct   int       `bson:"correct" json:"correct"`
	Total     int       `bson:"total" json:"total"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Course struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Lessons     []Lesson `json:"lessons"`
}

type Lesson struct {
	ID      int            `json:"id"`
	Title   string         `json:"title"`
	Content string         `json:"content"` // markdown
	Quiz    []QuizQuestion `json:"quiz,omitempty"`
}

type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}
