package maincmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/difftape/difftape/ad/fun"
	"github.com/difftape/difftape/ad/record"
	"github.com/mna/mainer"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// A demoFn is a built-in function that can be recorded and replayed from
// the command line.
type demoFn struct {
	desc  string
	x     []float64
	build func(xs []record.Num) []record.Num
}

var demos = map[string]demoFn{
	"rosenbrock": {
		desc: "(1-x0)^2 + 100*(x1-x0^2)^2, the banana valley",
		x:    []float64{-1.2, 1},
		build: func(xs []record.Num) []record.Num {
			a := record.C(1).Sub(xs[0])
			b := xs[1].Sub(xs[0].Mul(xs[0]))
			return []record.Num{a.Mul(a).Add(record.C(100).Mul(b.Mul(b)))}
		},
	},
	"mix": {
		desc: "(x0*x2, x1+x2), a partially coupled pair",
		x:    []float64{1, 2, 3},
		build: func(xs []record.Num) []record.Num {
			return []record.Num{xs[0].Mul(xs[2]), xs[1].Add(xs[2])}
		},
	},
	"waves": {
		desc: "(sin(x0)*cos(x1), tan(x0/4)), trigonometric mix",
		x:    []float64{0.7, 0.3},
		build: func(xs []record.Num) []record.Num {
			return []record.Num{
				record.Sin(xs[0]).Mul(record.Cos(xs[1])),
				record.Tan(xs[0].Div(record.C(4))),
			}
		},
	},
	"rational": {
		desc: "exp(x0)/(1+x1^2), a rational-exponential blend",
		x:    []float64{0.5, 1.5},
		build: func(xs []record.Num) []record.Num {
			return []record.Num{
				record.Exp(xs[0]).Div(record.C(1).Add(xs[1].Mul(xs[1]))),
			}
		},
	},
}

func demoNames() []string {
	names := make([]string, 0, len(demos))
	for n := range demos {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func recordDemo(name string) (*fun.Fun, demoFn, error) {
	d, ok := demos[name]
	if !ok {
		return nil, demoFn{}, errors.Errorf("unknown demo: %s", name)
	}
	r, xs, err := record.Independent(d.x)
	if err != nil {
		return nil, demoFn{}, err
	}
	t, err := r.Stop(d.build(xs))
	if err != nil {
		return nil, demoFn{}, err
	}
	return fun.New(t), d, nil
}

func (c *Cmd) Demo(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if len(args) == 0 {
		tw := tablewriter.NewWriter(stdio.Stdout)
		tw.SetHeader([]string{"Demo", "Description"})
		for _, n := range demoNames() {
			tw.Append([]string{n, demos[n].desc})
		}
		tw.Render()
		return nil
	}

	for _, name := range args {
		f, d, err := recordDemo(name)
		if err != nil {
			return printError(stdio, err)
		}
		y, err := f.Forward(0, d.x)
		if err != nil {
			return printError(stdio, err)
		}
		jac, err := f.Jacobian(d.x)
		if err != nil {
			return printError(stdio, err)
		}

		fmt.Fprintf(stdio.Stdout, "%s at x = %v\n", name, d.x)
		n, m := f.Domain(), f.Range()
		tw := tablewriter.NewWriter(stdio.Stdout)
		hdr := []string{"", "y"}
		for j := 0; j < n; j++ {
			hdr = append(hdr, "dy/dx"+strconv.Itoa(j))
		}
		tw.SetHeader(hdr)
		for i := 0; i < m; i++ {
			row := []string{"y" + strconv.Itoa(i), formatF(y[i])}
			for j := 0; j < n; j++ {
				row = append(row, formatF(jac[i*n+j]))
			}
			tw.Append(row)
		}
		tw.Render()
	}
	return nil
}

func formatF(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
