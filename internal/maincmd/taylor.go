package maincmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mna/mainer"
	"github.com/olekukonko/tablewriter"
)

// Taylor prints the Taylor coefficients of the named demos along the first
// coordinate direction, one forward sweep per order.
func (c *Cmd) Taylor(ctx context.Context, stdio mainer.Stdio, args []string) error {
	for _, name := range args {
		f, d, err := recordDemo(name)
		if err != nil {
			return printError(stdio, err)
		}

		n, m := f.Domain(), f.Range()
		coef := make([][]float64, 0, c.Order+1)
		u := make([]float64, n)

		copy(u, d.x)
		y, err := f.Forward(0, u)
		if err != nil {
			return printError(stdio, err)
		}
		coef = append(coef, y)

		for k := 1; k <= c.Order; k++ {
			for j := range u {
				u[j] = 0
			}
			if k == 1 {
				u[0] = 1
			}
			y, err := f.Forward(k, u)
			if err != nil {
				return printError(stdio, err)
			}
			coef = append(coef, y)
		}

		fmt.Fprintf(stdio.Stdout, "%s at x = %v, direction e0\n", name, d.x)
		tw := tablewriter.NewWriter(stdio.Stdout)
		hdr := []string{"Order"}
		for i := 0; i < m; i++ {
			hdr = append(hdr, "y"+strconv.Itoa(i))
		}
		tw.SetHeader(hdr)
		for k, y := range coef {
			row := []string{strconv.Itoa(k)}
			for i := 0; i < m; i++ {
				row = append(row, formatF(y[i]))
			}
			tw.Append(row)
		}
		tw.Render()
	}
	return nil
}
