package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/souta-pqr/money-suppli/internal/content"
	"github.com/souta-pqr/money-suppli/internal/services"
)

var commands = []subcommands.Command{
	&coursesCmd{},
	&lessonCmd{},
	&commissionCmd{},
	&taxCmd{},
	&compoundCmd{},
}

type coursesCmd struct{}

func (*coursesCmd) Name() string     { return "courses" }
func (*coursesCmd) Synopsis() string { return "list courses and their lessons" }
func (*coursesCmd) Usage() string {
	return `lessonctl courses

  Prints every course with its lesson ids. Lessons with a quiz are marked.
`
}
func (*coursesCmd) SetFlags(*flag.FlagSet) {}

func (*coursesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	writeCourses(os.Stdout)
	return subcommands.ExitSuccess
}

func writeCourses(w io.Writer) {
	for _, c := range content.Courses() {
		fmt.Fprintf(w, "%d  %s\n", c.ID, c.Title)
		for _, l := range c.Lessons {
			mark := " "
			if len(l.Quiz) > 0 {
				mark = "?"
			}
			fmt.Fprintf(w, "   %s %d  %s\n", mark, l.ID, l.Title)
		}
	}
}

type lessonCmd struct {
	plain bool
	width int
}

func (*lessonCmd) Name() string     { return "lesson" }
func (*lessonCmd) Synopsis() string { return "render a lesson in the terminal" }
func (*lessonCmd) Usage() string {
	return `lessonctl lesson [-plain] [-width <n>] <course_id> <lesson_id>

  Renders the lesson markdown and lists its quiz questions.
`
}

func (p *lessonCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&p.plain, "plain", false, "Print the raw markdown instead of rendering it.")
	f.IntVar(&p.width, "width", 80, "Word wrap width for rendered output.")
}

func (p *lessonCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "lesson requires <course_id> <lesson_id>")
		return subcommands.ExitUsageError
	}
	var courseID, lessonID int
	if _, err := fmt.Sscan(f.Arg(0), &courseID); err != nil {
		fmt.Fprintf(os.Stderr, "invalid course id: %v\n", err)
		return subcommands.ExitUsageError
	}
	if _, err := fmt.Sscan(f.Arg(1), &lessonID); err != nil {
		fmt.Fprintf(os.Stderr, "invalid lesson id: %v\n", err)
		return subcommands.ExitUsageError
	}

	md, err := lessonMarkdown(courseID, lessonID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if p.plain {
		fmt.Print(md)
		return subcommands.ExitSuccess
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(p.width))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}

// lessonMarkdown returns the lesson body followed by its quiz, without the
// answers.
func lessonMarkdown(courseID, lessonID int) (string, error) {
	course, lesson, ok := content.FindLesson(courseID, lessonID)
	if !ok {
		if course.ID == 0 {
			return "", fmt.Errorf("course %d not found", courseID)
		}
		return "", fmt.Errorf("lesson %d not found in %s", lessonID, course.Title)
	}

	var b strings.Builder
	b.WriteString(lesson.Content)
	if len(lesson.Quiz) > 0 {
		b.WriteString("\n\n## 確認クイズ\n\n")
		for i, q := range lesson.Quiz {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q.Question)
			for j, o := range q.Options {
				fmt.Fprintf(&b, "   - (%d) %s\n", j, o)
			}
		}
	}
	return b.String(), nil
}

type commissionCmd struct {
	broker string
}

func (*commissionCmd) Name() string     { return "commission" }
func (*commissionCmd) Synopsis() string { return "compute the trade commission for an amount" }
func (*commissionCmd) Usage() string {
	return `lessonctl commission [-broker standard|discount|app] <amount>
`
}

func (p *commissionCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.broker, "broker", services.BrokerStandard, "Fee schedule to use.")
}

func (p *commissionCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	amount, status := amountArg(f)
	if status != subcommands.ExitSuccess {
		return status
	}
	if !services.ValidBroker(p.broker) {
		fmt.Fprintf(os.Stderr, "unknown broker %q\n", p.broker)
		return subcommands.ExitUsageError
	}
	fee := services.CalculateCommission(amount, p.broker)
	fmt.Printf("%s  手数料 %s  合計 %s\n", services.FormatYen(amount), services.FormatYen(fee), services.FormatYen(amount.Add(fee)))
	return subcommands.ExitSuccess
}

type taxCmd struct {
	nisa bool
}

func (*taxCmd) Name() string     { return "tax" }
func (*taxCmd) Synopsis() string { return "compute the capital gains tax on a profit" }
func (*taxCmd) Usage() string {
	return `lessonctl tax [-nisa] <profit>
`
}

func (p *taxCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&p.nisa, "nisa", false, "Treat the profit as earned in a NISA account.")
}

func (p *taxCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	profit, status := amountArg(f)
	if status != subcommands.ExitSuccess {
		return status
	}
	t := services.CalculateJapaneseTax(profit, p.nisa)
	fmt.Printf("所得税 %s\n住民税 %s\n合計 %s\n税引後 %s\n",
		services.FormatYen(t.IncomeTax), services.FormatYen(t.ResidentTax),
		services.FormatYen(t.Total), services.FormatYen(t.ProfitAfterTax))
	return subcommands.ExitSuccess
}

type compoundCmd struct {
	rate      float64
	years     float64
	frequency int
}

func (*compoundCmd) Name() string     { return "compound" }
func (*compoundCmd) Synopsis() string { return "project compound growth of a principal" }
func (*compoundCmd) Usage() string {
	return `lessonctl compound [-rate <percent>] [-years <n>] [-frequency <n>] <principal>
`
}

func (p *compoundCmd) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&p.rate, "rate", 5, "Annual rate in percent.")
	f.Float64Var(&p.years, "years", 10, "Number of years.")
	f.IntVar(&p.frequency, "frequency", 1, "Compounding periods per year.")
}

func (p *compoundCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	principal, status := amountArg(f)
	if status != subcommands.ExitSuccess {
		return status
	}
	r := services.CalculateCompoundInterest(principal, p.rate, p.years, p.frequency)
	fmt.Printf("%g年後 %s (利息 %s)\n", r.Years, services.FormatYen(r.FinalAmount), services.FormatYen(r.Interest))
	return subcommands.ExitSuccess
}

func amountArg(f *flag.FlagSet) (decimal.Decimal, subcommands.ExitStatus) {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one amount")
		return decimal.Zero, subcommands.ExitUsageError
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(f.Arg(0), ",", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid amount: %v\n", err)
		return decimal.Zero, subcommands.ExitUsageError
	}
	return d, subcommands.ExitSuccess
}
