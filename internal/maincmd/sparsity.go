package maincmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/difftape/difftape/ad/subgraph"
	"github.com/mna/mainer"
	"github.com/olekukonko/tablewriter"
)

// Sparsity prints the forward Jacobian sparsity pattern and the dependency
// pattern computed by the subgraph analyzer for the named demos.
func (c *Cmd) Sparsity(ctx context.Context, stdio mainer.Stdio, args []string) error {
	for _, name := range args {
		f, _, err := recordDemo(name)
		if err != nil {
			return printError(stdio, err)
		}
		n, m := f.Domain(), f.Range()

		// identity seed: column k of the pattern tracks independent k
		px := make([]bool, n*n)
		for j := 0; j < n; j++ {
			px[j*n+j] = true
		}
		py, err := f.ForSparseJac(n, px)
		if err != nil {
			return printError(stdio, err)
		}

		fmt.Fprintf(stdio.Stdout, "%s jacobian sparsity\n", name)
		tw := tablewriter.NewWriter(stdio.Stdout)
		hdr := []string{""}
		for j := 0; j < n; j++ {
			hdr = append(hdr, "x"+strconv.Itoa(j))
		}
		tw.SetHeader(hdr)
		for i := 0; i < m; i++ {
			row := []string{"y" + strconv.Itoa(i)}
			for j := 0; j < n; j++ {
				if py[i*n+j] {
					row = append(row, "X")
				} else {
					row = append(row, ".")
				}
			}
			tw.Append(row)
		}
		tw.Render()

		all := func(k int) []bool {
			b := make([]bool, k)
			for i := range b {
				b[i] = true
			}
			return b
		}
		rows, cols, err := subgraph.DepSparsity(f.Tape(), all(n), all(m))
		if err != nil {
			return printError(stdio, err)
		}
		fmt.Fprintf(stdio.Stdout, "dependency pairs (dependent, independent):")
		for k := range rows {
			fmt.Fprintf(stdio.Stdout, " (%d,%d)", rows[k], cols[k])
		}
		fmt.Fprintln(stdio.Stdout)
	}
	return nil
}
