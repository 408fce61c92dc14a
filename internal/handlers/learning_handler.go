package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/models"
	"github.com/souta-pqr/money-suppli/internal/services"
)

type LearningHandler struct {
	learning *services.LearningService
	users    *services.UserService
	log      *logrus.Logger
}

func NewLearningHandler(learning *services.LearningService, users *services.UserService, log *logrus.Logger) *LearningHandler {
	return &LearningHandler{learning: learning, users: users, log: log}
}

type QuizRequest struct {
	Answers []int `json:"answers" binding:"required"`
}

// progress loads the caller's learning progress, or nil for anonymous
// requests.
func (h *LearningHandler) progress(c *gin.Context) (*models.LearningProgress, error) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, nil
	}
	u, err := h.users.Load(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return &u.Learning, nil
}

func (h *LearningHandler) Courses(c *gin.Context) {
	progress, err := h.progress(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": h.learning.Courses(progress)})
}

func (h *LearningHandler) Course(c *gin.Context) {
	courseID, err := strconv.Atoi(c.Param("courseId"))
	if err != nil {
		badRequest(c, err)
		return
	}
	progress, err := h.progress(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	course, err := h.learning.Course(courseID, progress)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *LearningHandler) Lesson(c *gin.Context) {
	courseID, lessonID, ok := lessonParams(c)
	if !ok {
		return
	}
	progress, err := h.progress(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	lesson, err := h.learning.Lesson(courseID, lessonID, progress)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, lesson)
}

func (h *LearningHandler) ViewLesson(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	courseID, lessonID, ok := lessonParams(c)
	if !ok {
		return
	}

	progress, err := h.learning.ViewLesson(c.Request.Context(), userID, courseID, lessonID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"learning": progress})
}

func (h *LearningHandler) SubmitQuiz(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	courseID, lessonID, ok := lessonParams(c)
	if !ok {
		return
	}

	var req QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := h.learning.SubmitQuiz(c.Request.Context(), userID, courseID, lessonID, req.Answers)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func lessonParams(c *gin.Context) (int, int, bool) {
	courseID, err := strconv.Atoi(c.Param("courseId"))
	if err != nil {
		badRequest(c, err)
		return 0, 0, false
	}
	lessonID, err := strconv.Atoi(c.Param("lessonId"))
	if err != nil {
		badRequest(c, err)
		return 0, 0, false
	}
	return courseID, lessonID, true
}
