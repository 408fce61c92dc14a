package content

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourses_LessonCounts(t *testing.T) {
	counts := map[int]int{1: 7, 2: 6, 3: 3}
	for _, c := range Courses() {
		assert.Equal(t, counts[c.ID], len(c.Lessons), "course %d", c.ID)
	}
}

func TestCourses_QuizAnswersInRange(t *testing.T) {
	for _, c := range Courses() {
		for _, l := range c.Lessons {
			assert.NotEmpty(t, l.Content, "lesson %d has no content", l.ID)
			for i, q := range l.Quiz {
				name := fmt.Sprintf("%d/%d", l.ID, i)
				require.NotEmpty(t, q.Options, name)
				assert.GreaterOrEqual(t, q.Answer, 0, name)
				assert.Less(t, q.Answer, len(q.Options), name)
			}
		}
	}
}

func TestFindLesson(t *testing.T) {
	c, l, ok := FindLesson(2, 201)
	require.True(t, ok)
	assert.Equal(t, "投資戦略入門", c.Title)
	assert.Equal(t, "リスクとリターンの関係", l.Title)

	_, _, ok = FindLesson(2, 101)
	assert.False(t, ok)

	_, _, ok = FindLesson(9, 101)
	assert.False(t, ok)
}

func TestInstruments_ReturnsCopy(t *testing.T) {
	a := Instruments()
	a[0].Price = a[0].Price.Mul(a[0].Price)

	b := Instruments()
	assert.False(t, a[0].Price.Equal(b[0].Price))

	inst, ok := FindInstrument(b[0].ID)
	require.True(t, ok)
	assert.True(t, inst.Price.Equal(b[0].Price))
}
