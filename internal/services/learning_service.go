package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/souta-pqr/money-suppli/internal/content"
	"github.com/souta-pqr/money-suppli/internal/models"
	"github.com/souta-pqr/money-suppli/internal/store"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrLessonNotFound = errors.New("lesson not found")
	ErrNoQuiz         = errors.New("lesson has no quiz")
	ErrAnswerCount    = errors.New("answer count does not match the quiz")
)

// LessonKey identifies a lesson in the completed set and quiz results.
func LessonKey(courseID, lessonID int) string {
	return fmt.Sprintf("%d-%d", courseID, lessonID)
}

// CourseSummary is a course without lesson bodies.
type CourseSummary struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	LessonCount int     `json:"lessonCount"`
	Progress    float64 `json:"progress"`
}

type LessonSummary struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	HasQuiz   bool   `json:"hasQuiz"`
	Completed bool   `json:"completed"`
}

type CourseDetail struct {
	CourseSummary
	Lessons []LessonSummary `json:"lessons"`
}

// QuizQuestionView is a quiz question without its answer.
type QuizQuestionView struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type LessonView struct {
	CourseID     int                `json:"courseId"`
	CourseTitle  string             `json:"courseTitle"`
	ID           int                `json:"id"`
	Title        string             `json:"title"`
	Markdown     string             `json:"markdown"`
	HTML         string             `json:"html"`
	Quiz         []QuizQuestionView `json:"quiz"`
	Completed    bool               `json:"completed"`
	PreviousID   int                `json:"previousLessonId,omitempty"`
	NextID       int                `json:"nextLessonId,omitempty"`
	LastAttempts *models.QuizResult `json:"lastQuizResult,omitempty"`
}

type QuestionResult struct {
	Selected    int    `json:"selected"`
	Answer      int    `json:"answer"`
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation,omitempty"`
}

type QuizOutcome struct {
	Correct   int              `json:"correct"`
	Total     int              `json:"total"`
	Passed    bool             `json:"passed"`
	Results   []QuestionResult `json:"results"`
	Completed bool             `json:"completed"`
	Progress  float64          `json:"courseProgress"`
}

// LearningService serves the course catalog and records lesson progress.
type LearningService struct {
	users *UserService
	store store.UserStore
	md    goldmark.Markdown
	locks userLocks
	log   *logrus.Logger
}

func NewLearningService(users *UserService, st store.UserStore, log *logrus.Logger) *LearningService {
	return &LearningService{
		users: users,
		store: st,
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		log:   log,
	}
}

// Courses lists the catalog. With a nil progress every course is at 0.
func (s *LearningService) Courses(progress *models.LearningProgress) []CourseSummary {
	courses := content.Courses()
	out := make([]CourseSummary, 0, len(courses))
	for _, c := range courses {
		out = append(out, summarize(c, progress))
	}
	return out
}

func summarize(c models.Course, progress *models.LearningProgress) CourseSummary {
	sum := CourseSummary{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Image:       c.Image,
		LessonCount: len(c.Lessons),
	}
	if progress != nil {
		sum.Progress = courseProgress(c, progress.CompletedLessons)
	}
	return sum
}

func (s *LearningService) Course(courseID int, progress *models.LearningProgress) (CourseDetail, error) {
	c, ok := content.FindCourse(courseID)
	if !ok {
		return CourseDetail{}, ErrCourseNotFound
	}

	detail := CourseDetail{CourseSummary: summarize(c, progress)}
	for _, l := range c.Lessons {
		detail.Lessons = append(detail.Lessons, LessonSummary{
			ID:        l.ID,
			Title:     l.Title,
			HasQuiz:   len(l.Quiz) > 0,
			Completed: progress != nil && completed(progress.CompletedLessons, LessonKey(c.ID, l.ID)),
		})
	}
	return detail, nil
}

// Lesson renders a lesson for display. Quiz answers are withheld.
func (s *LearningService) Lesson(courseID, lessonID int, progress *models.LearningProgress) (LessonView, error) {
	c, l, ok := content.FindLesson(courseID, lessonID)
	if !ok {
		if c.ID == 0 {
			return LessonView{}, ErrCourseNotFound
		}
		return LessonView{}, ErrLessonNotFound
	}

	html, err := s.RenderMarkdown(l.Content)
	if err != nil {
		return LessonView{}, err
	}

	view := LessonView{
		CourseID:    c.ID,
		CourseTitle: c.Title,
		ID:          l.ID,
		Title:       l.Title,
		Markdown:    l.Content,
		HTML:        html,
		Quiz:        make([]QuizQuestionView, 0, len(l.Quiz)),
	}
	for _, q := range l.Quiz {
		view.Quiz = append(view.Quiz, QuizQuestionView{Question: q.Question, Options: q.Options})
	}
	for i, other := range c.Lessons {
		if other.ID != l.ID {
			continue
		}
		if i > 0 {
			view.PreviousID = c.Lessons[i-1].ID
		}
		if i < len(c.Lessons)-1 {
			view.NextID = c.Lessons[i+1].ID
		}
	}
	if progress != nil {
		key := LessonKey(c.ID, l.ID)
		view.Completed = completed(progress.CompletedLessons, key)
		if r, ok := progress.QuizResults[key]; ok {
			view.LastAttempts = &r
		}
	}
	return view, nil
}

// RenderMarkdown converts lesson markdown (GitHub flavored) to HTML.
func (s *LearningService) RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render lesson: %w", err)
	}
	return buf.String(), nil
}

// ViewLesson records that the user opened a lesson. A lesson without a quiz
// is completed by viewing it; lessons with a quiz are left to SubmitQuiz.
func (s *LearningService) ViewLesson(ctx context.Context, userID string, courseID, lessonID int) (models.LearningProgress, error) {
	_, l, ok := content.FindLesson(courseID, lessonID)
	if !ok {
		return models.LearningProgress{}, ErrLessonNotFound
	}
	if len(l.Quiz) > 0 {
		u, err := s.users.Load(ctx, userID)
		if err != nil {
			return models.LearningProgress{}, err
		}
		return u.Learning, nil
	}
	return s.CompleteLesson(ctx, userID, courseID, lessonID)
}

// GradeQuiz compares answers with the quiz. answers[i] is the selected option
// index of question i.
func GradeQuiz(quiz []models.QuizQuestion, answers []int) (int, []QuestionResult, error) {
	if len(answers) != len(quiz) {
		return 0, nil, ErrAnswerCount
	}
	correct := 0
	results := make([]QuestionResult, len(quiz))
	for i, q := range quiz {
		ok := answers[i] == q.Answer
		if ok {
			correct++
		}
		results[i] = QuestionResult{Selected: answers[i], Answer: q.Answer, Correct: ok, Explanation: q.Explanation}
	}
	return correct, results, nil
}

// SubmitQuiz grades and stores the result. The lesson completes only when
// every answer is correct.
func (s *LearningService) SubmitQuiz(ctx context.Context, userID string, courseID, lessonID int, answers []int) (QuizOutcome, error) {
	c, l, ok := content.FindLesson(courseID, lessonID)
	if !ok {
		return QuizOutcome{}, ErrLessonNotFound
	}
	if len(l.Quiz) == 0 {
		return QuizOutcome{}, ErrNoQuiz
	}
	correct, results, err := GradeQuiz(l.Quiz, answers)
	if err != nil {
		return QuizOutcome{}, err
	}

	outcome := QuizOutcome{
		Correct: correct,
		Total:   len(l.Quiz),
		Passed:  correct == len(l.Quiz),
		Results: results,
	}

	key := LessonKey(courseID, lessonID)
	err = s.store.Update(ctx, userID, store.Fields{
		"learning.quizResults." + key: models.QuizResult{
			Correct:   correct,
			Total:     len(l.Quiz),
			Timestamp: s.users.now(),
		},
	})
	if err != nil {
		return QuizOutcome{}, fmt.Errorf("failed to save quiz result: %w", err)
	}

	var progress models.LearningProgress
	if outcome.Passed {
		progress, err = s.CompleteLesson(ctx, userID, courseID, lessonID)
	} else {
		var u *models.User
		if u, err = s.users.Load(ctx, userID); err == nil {
			progress = u.Learning
		}
	}
	if err != nil {
		return QuizOutcome{}, err
	}

	outcome.Completed = completed(progress.CompletedLessons, key)
	outcome.Progress = courseProgress(c, progress.CompletedLessons)
	return outcome, nil
}

// CompleteLesson adds the lesson to the completed set, if not there yet, and
// recomputes the course's progress percentage.
func (s *LearningService) CompleteLesson(ctx context.Context, userID string, courseID, lessonID int) (models.LearningProgress, error) {
	c, _, ok := content.FindLesson(courseID, lessonID)
	if !ok {
		return models.LearningProgress{}, ErrLessonNotFound
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	u, err := s.users.loadForUpdate(ctx, userID)
	if err != nil {
		return models.LearningProgress{}, err
	}
	learning := u.Learning
	key := LessonKey(courseID, lessonID)
	if completed(learning.CompletedLessons, key) {
		return learning, nil
	}

	learning.CompletedLessons = append(learning.CompletedLessons, key)
	pct := courseProgress(c, learning.CompletedLessons)
	learning.Progress[strconv.Itoa(courseID)] = pct

	err = s.store.Update(ctx, userID, store.Fields{
		"learning.completedLessons":                   learning.CompletedLessons,
		"learning.progress." + strconv.Itoa(courseID): pct,
	})
	if err != nil {
		return models.LearningProgress{}, fmt.Errorf("failed to save lesson progress: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"lesson":   key,
		"progress": pct,
	}).Info("Lesson completed")
	return learning, nil
}

// courseProgress is the share of the course's lessons that are completed,
// in percent.
func courseProgress(c models.Course, completedKeys []string) float64 {
	if len(c.Lessons) == 0 {
		return 0
	}
	done := 0
	for _, l := range c.Lessons {
		if completed(completedKeys, LessonKey(c.ID, l.ID)) {
			done++
		}
	}
	return float64(done) / float64(len(c.Lessons)) * 100
}

func completed(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
