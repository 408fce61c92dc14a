// Package content holds the static course catalog and the mock market's
// instrument list.
package content

import (
	"embed"
	"fmt"

	"github.com/souta-pqr/money-suppli/internal/models"
)

//go:embed lessons/*.md
var lessonFS embed.FS

var courses = []models.Course{
	{
		ID:          1,
		Title:       "基礎知識コース",
		Description: "金融の基礎となる概念や用語について学びます。お金の流れや投資の基本を理解し、健全な資産形成の第一歩を踏み出しましょう。",
		Image:       "basics.jpg",
		Lessons: []models.Lesson{
			lesson(101, "お金の役割と流れ", nil),
			lesson(102, "貯蓄と投資の違い", []models.QuizQuestion{
				{
					Question:    "元本割れの可能性がほとんどないのはどれですか？",
					Options:     []string{"株式", "預金", "投資信託"},
					Answer:      1,
					Explanation: "預金は元本が守られる代わりに金利が低く抑えられています。",
				},
			}),
			lesson(103, "金利と複利の力", []models.QuizQuestion{
				{
					Question: "年利6%で運用した資産が約2倍になるのは何年後ですか？（72の法則）",
					Options:  []string{"6年", "12年", "24年"},
					Answer:   1,
				},
				{
					Question: "元本と利息の合計に利息がつく計算方法はどれですか？",
					Options:  []string{"単利", "複利"},
					Answer:   1,
				},
			}),
			lesson(104, "株式とは何か", []models.QuizQuestion{
				{
					Question: "会社の利益の一部を株主が受け取るものは何ですか？",
					Options:  []string{"利子", "配当", "手数料"},
					Answer:   1,
				},
			}),
			lesson(105, "債券の基本", []models.QuizQuestion{
				{
					Question:    "市場金利が上がると、既存の債券価格はどうなりますか？",
					Options:     []string{"上がる", "下がる", "変わらない"},
					Answer:      1,
					Explanation: "金利と債券価格は逆方向に動きます。",
				},
			}),
			lesson(106, "投資信託とETF", nil),
			lesson(107, "NISAと税金の基本", []models.QuizQuestion{
				{
					Question: "NISA口座以外で株式の売却益にかかる税率の合計は？",
					Options:  []string{"10.21%", "20.315%", "30%"},
					Answer:   1,
				},
				{
					Question: "NISA口座で得た売却益にかかる税金は？",
					Options:  []string{"非課税", "5%", "20.315%"},
					Answer:   0,
				},
			}),
		},
	},
	{
		ID:          2,
		Title:       "投資戦略入門",
		Description: "効果的な投資戦略と資産管理の基本を学びます。長期投資、分散投資、リスク調整などの重要な概念を理解し、自分に合った投資方法を見つけましょう。",
		Image:       "strategy.jpg",
		Lessons: []models.Lesson{
			lesson(201, "リスクとリターンの関係", []models.QuizQuestion{
				{
					Question: "一般的に、高いリターンが期待できる投資のリスクはどうなりますか？",
					Options:  []string{"低い", "高い", "関係ない"},
					Answer:   1,
				},
				{
					Question:    "分散投資で軽減できるリスクはどれですか？",
					Options:     []string{"市場リスク", "個別リスク"},
					Answer:      1,
					Explanation: "市場全体のリスクは分散投資では排除できません。",
				},
			}),
			lesson(202, "分散投資", []models.QuizQuestion{
				{
					Question: "「卵を一つのカゴに盛るな」が表す考え方は？",
					Options:  []string{"集中投資", "分散投資", "短期売買"},
					Answer:   1,
				},
			}),
			lesson(203, "長期投資とドルコスト平均法", []models.QuizQuestion{
				{
					Question: "ドルコスト平均法では、価格が安いときの購入量はどうなりますか？",
					Options:  []string{"少なくなる", "多くなる", "変わらない"},
					Answer:   1,
				},
			}),
			lesson(204, "アセットアロケーション", nil),
			lesson(205, "手数料とコストの影響", []models.QuizQuestion{
				{
					Question: "少額の取引で割高になりやすい手数料体系は？",
					Options:  []string{"定率制", "無料"},
					Answer:   0,
				},
			}),
			lesson(206, "ポートフォリオのリバランス", nil),
		},
	},
	{
		ID:          3,
		Title:       "リスク管理の基本",
		Description: "投資リスクを理解し、効果的に管理する方法を学びます。",
		Image:       "risk.jpg",
		Lessons: []models.Lesson{
			lesson(301, "リスクの種類", []models.QuizQuestion{
				{
					Question: "外貨建て資産が円高で目減りするリスクは？",
					Options:  []string{"信用リスク", "為替リスク", "流動性リスク"},
					Answer:   1,
				},
			}),
			lesson(302, "損切りと利益確定", nil),
			lesson(303, "リスク指標: 標準偏差とシャープレシオ", []models.QuizQuestion{
				{
					Question: "リスク1単位あたりの超過リターンを示す指標は？",
					Options:  []string{"標準偏差", "シャープレシオ", "最大ドローダウン"},
					Answer:   1,
				},
			}),
		},
	},
}

func lesson(id int, title string, quiz []models.QuizQuestion) models.Lesson {
	body, err := lessonFS.ReadFile(fmt.Sprintf("lessons/%d.md", id))
	if err != nil {
		panic(fmt.Sprintf("content: missing lesson %d: %v", id, err))
	}
	return models.Lesson{ID: id, Title: title, Content: string(body), Quiz: quiz}
}

// Courses returns the catalog.
func Courses() []models.Course {
	return courses
}

// FindCourse looks up a course by id.
func FindCourse(id int) (models.Course, bool) {
	for _, c := range courses {
		if c.ID == id {
			return c, true
		}
	}
	return models.Course{}, false
}

// FindLesson looks up a lesson within a course.
func FindLesson(courseID, lessonID int) (models.Course, models.Lesson, bool) {
	c, ok := FindCourse(courseID)
	if !ok {
		return models.Course{}, models.Lesson{}, false
	}
	for _, l := range c.Lessons {
		if l.ID == lessonID {
			return c, l, true
		}
	}
	return c, models.Lesson{}, false
}
