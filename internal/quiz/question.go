package quiz

import (
	"fmt"
	"math/rand"
	"time"
)

// Operator is the closed set of arithmetic operators a question may
// use. Statements are evaluated over this enum; no runtime expression
// evaluation is involved anywhere in question generation.
type Operator int

const (
	OpAdd Operator = iota
	OpSub
	OpMul
	OpDiv
)

func (op Operator) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	default:
		return "/"
	}
}

// apply evaluates a op b. Division is only ever generated with a as an
// exact multiple of a non-zero b, so the integer quotient is lossless.
func (op Operator) apply(a, b int) int {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	default:
		return a / b
	}
}

// Statement is one generated question: an arithmetic expression and the
// result shown to the player, which is deliberately wrong for deceptive
// questions. The player answers whether the displayed equality holds.
type Statement struct {
	A, B    int
	Op      Operator
	HasTail bool
	TailOp  Operator
	C       int
	Shown   int

	actual int
}

// Truthful reports whether the displayed result equals the true result.
func (s Statement) Truthful() bool {
	return s.Shown == s.actual
}

// String renders the statement the way the player sees it.
func (s Statement) String() string {
	if s.HasTail {
		return fmt.Sprintf("%d %s %d %s %d = %d", s.A, s.Op, s.B, s.TailOp, s.C, s.Shown)
	}
	return fmt.Sprintf("%d %s %d = %d", s.A, s.Op, s.B, s.Shown)
}

const (
	// ChapterSize is the number of levels per difficulty cycle; tier
	// tables key on level mod ChapterSize.
	ChapterSize = 50

	// allOperatorsLevel is the level at which mul/div join the pool.
	allOperatorsLevel = 20

	// GracePeriod is added uniformly to every armed deadline to absorb
	// network and render latency.
	GracePeriod = 1500 * time.Millisecond
)

// operandMin returns the tier's minimum operand magnitude.
func operandMin(tier int) int {
	switch {
	case tier < 10:
		return 1
	case tier < 20:
		return 10
	case tier < 30:
		return 1
	default:
		return 10
	}
}

// operandMax returns the tier's maximum operand magnitude.
func operandMax(tier int) int {
	switch {
	case tier < 10:
		return 10
	case tier < 30:
		return 20
	case tier < 40:
		return 30
	case tier < 50:
		return 60
	default:
		return 100
	}
}

// QuestionTime returns the answer window for a level, excluding grace.
// Coarser tiers get shorter windows as operand ranges widen.
func QuestionTime(level int) time.Duration {
	tier := level % ChapterSize
	switch {
	case tier < 10:
		return 3000 * time.Millisecond
	case tier < 20:
		return 2500 * time.Millisecond
	case tier < 30:
		return 3000 * time.Millisecond
	case tier < 40:
		return 2500 * time.Millisecond
	default:
		return 2000 * time.Millisecond
	}
}

// Generator produces questions as a pure function of level, the
// deceptive flag and its own random source.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator. A nil source gets a time seed;
// tests pass a fixed seed.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng}
}

// between draws an integer in [min, max], both ends inclusive.
func (g *Generator) between(min, max int) int {
	return min + g.rng.Intn(max-min+1)
}

// Generate produces the question for a level. When deceptive is set the
// displayed result is perturbed until it differs from the true result.
func (g *Generator) Generate(level int, deceptive bool) Statement {
	tier := level % ChapterSize
	lo, hi := operandMin(tier), operandMax(tier)

	st := Statement{
		A: g.between(lo, hi),
		B: g.between(lo, hi),
	}

	if level < allOperatorsLevel {
		st.Op = []Operator{OpAdd, OpSub}[g.rng.Intn(2)]
	} else {
		st.Op = []Operator{OpAdd, OpSub, OpMul, OpDiv}[g.rng.Intn(4)]
	}

	switch st.Op {
	case OpMul:
		for st.A == 0 {
			st.A = g.between(-10, 10)
		}
		for st.B == 0 {
			st.B = g.between(-10, 10)
		}
	case OpDiv:
		// Divisor must be non-zero; the dividend is forced to an exact
		// multiple so the quotient is an integer.
		for st.B == 0 {
			st.B = g.between(-10, 10)
		}
		st.A = st.B * g.between(-10, 10)
	}

	st.actual = st.Op.apply(st.A, st.B)
	st.Shown = st.actual

	if deceptive {
		switch st.Op {
		case OpDiv:
			st.Shown += g.between(1, 3)
		case OpMul:
			if st.B > st.A {
				st.Shown += st.A * g.between(1, 3)
			} else {
				st.Shown += st.B * g.between(1, 3)
			}
		default:
			for st.Shown == st.actual {
				st.Shown += g.between(-10, 10)
			}
		}
	}

	// Past the first full cycle, half the questions grow a second term.
	if level >= ChapterSize && g.rng.Intn(2) == 0 {
		st.HasTail = true
		st.C = g.between(lo, hi)
		st.TailOp = []Operator{OpAdd, OpSub}[g.rng.Intn(2)]
		st.actual = st.TailOp.apply(st.actual, st.C)
		st.Shown = st.actual
		if deceptive {
			for st.Shown == st.actual {
				st.Shown += g.between(-10, 10)
			}
		}
	}

	return st
}
