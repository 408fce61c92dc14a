package content

import (
	"github.com/shopspring/decimal"

	"github.com/souta-pqr/money-suppli/internal/models"
)

type instrumentSeed struct {
	id       string
	name     string
	category models.Category
	sector   string
	price    int64
	dividend int64 // yen per share per year
}

var instrumentSeeds = []instrumentSeed{
	{"7203", "トヨタ自動車", models.CategoryStock, "自動車", 2850, 75},
	{"6758", "ソニーグループ", models.CategoryStock, "テクノロジー", 3200, 20},
	{"9984", "ソフトバンクグループ", models.CategoryStock, "テクノロジー", 8900, 44},
	{"8306", "三菱UFJフィナンシャル・グループ", models.CategoryStock, "金融", 1650, 50},
	{"9983", "ファーストリテイリング", models.CategoryStock, "小売", 45000, 400},
	{"4502", "武田薬品工業", models.CategoryStock, "医薬品", 4200, 196},
	{"9202", "ANAホールディングス", models.CategoryStock, "航空", 3000, 50},
	{"9020", "JR東日本", models.CategoryStock, "運輸", 2800, 55},
	{"4452", "花王", models.CategoryStock, "消費財", 6300, 150},
	{"5401", "日本製鉄", models.CategoryStock, "素材", 3400, 160},
	{"6501", "日立製作所", models.CategoryStock, "製造", 3800, 38},
	{"1306", "TOPIX連動型上場投資信託", models.CategoryETF, "全セクター", 2900, 55},
	{"1321", "日経225連動型上場投資信託", models.CategoryETF, "全セクター", 40000, 600},
	{"2558", "MAXIS米国株式(S&P500)上場投信", models.CategoryETF, "輸出", 24000, 250},
	{"F001", "eMAXIS Slim 全世界株式", models.CategoryFund, "全セクター", 25000, 0},
	{"F002", "ひふみ投信", models.CategoryFund, "テクノロジー", 78000, 0},
}

// Instruments returns a fresh copy of the market at its opening prices.
// Callers may mutate the result.
func Instruments() []models.Instrument {
	out := make([]models.Instrument, 0, len(instrumentSeeds))
	for _, s := range instrumentSeeds {
		out = append(out, s.instrument())
	}
	return out
}

// FindInstrument returns an instrument at its opening price.
func FindInstrument(id string) (models.Instrument, bool) {
	for _, s := range instrumentSeeds {
		if s.id == id {
			return s.instrument(), true
		}
	}
	return models.Instrument{}, false
}

func (s instrumentSeed) instrument() models.Instrument {
	return models.Instrument{
		ID:               s.id,
		Name:             s.name,
		Category:         s.category,
		Sector:           s.sector,
		Price:            decimal.NewFromInt(s.price),
		DividendPerShare: decimal.NewFromInt(s.dividend),
	}
}
