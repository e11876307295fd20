package op

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpString(t *testing.T) {
	for o := Op(0); o < maxOp; o++ {
		if o.String() == "" || strings.HasPrefix(o.String(), "illegal") {
			t.Errorf("missing string representation of op %d", o)
		}
	}
	require.Equal(t, "illegal op (255)", Op(255).String())
}

func TestArityTables(t *testing.T) {
	for o := Op(0); o < maxOp; o++ {
		require.GreaterOrEqual(t, NumArg(o), 0, "%s", o)
		require.LessOrEqual(t, NumArg(o), 6, "%s", o)
		require.GreaterOrEqual(t, NumRes(o), 0, "%s", o)
		require.LessOrEqual(t, NumRes(o), 2, "%s", o)
	}
	// two-result ops carry a companion in the slot below the primary
	for _, o := range []Op{Sin, Cos, Tan, Asin, Acos, Atan, Sinh, Cosh, Tanh, Asinh, Acosh, Atanh} {
		require.True(t, HasCompanion(o), "%s", o)
	}
	for _, o := range []Op{Neg, Abs, Sign, Sqrt, Exp, Log, AddVV, VecLoad} {
		require.False(t, HasCompanion(o), "%s", o)
	}
}

func TestArgIsVariable(t *testing.T) {
	cases := []struct {
		o    Op
		args []int
		want uint
	}{
		{AddVV, []int{3, 4}, 0b11},
		{AddPV, []int{0, 4}, 0b10},
		{SubVP, []int{3, 0}, 0b01},
		{Sqrt, []int{3}, 0b1},
		{Par, []int{0}, 0},
		{Eq, []int{0b01, 3, 0, 1}, 0b010},
		{Lt, []int{0b11, 3, 4, 0}, 0b110},
		{CondExpLt, []int{0b1010, 0, 3, 0, 4}, 0b10100},
		{VecLoad, []int{0, 1, 3}, 0b100},
		{VecLoad, []int{0, 0, 2}, 0},
		{VecStore, []int{0, 0b11, 3, 4}, 0b1100},
		{VecStore, []int{0, 0b10, 1, 4}, 0b1000},
		{User, []int{0, 2, 1}, 0},
		{UsrAv, []int{7}, 0b1},
		{UsrAp, []int{2}, 0},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ArgIsVariable(c.o, c.args), "%s %v", c.o, c.args)
	}
}

func TestClassPredicates(t *testing.T) {
	require.True(t, IsCompare(Lt))
	require.False(t, IsCompare(CondExpLt))
	require.True(t, IsCondExp(CondExpGt))
	require.False(t, IsCondExp(Lt))
	require.True(t, IsUser(UsrRv))
	require.False(t, IsUser(End))
}
