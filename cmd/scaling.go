/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/notargets/gopcd/InputParameters"
)

// ScalingCmd represents the scaling command
var ScalingCmd = &cobra.Command{
	Use:   "scaling",
	Short: "Iteration counts of the channel problem under uniform refinement",
	Long: `
Solves the channel problem on successively refined grids, doubling Nx and Ny
at each level, and reports the outer iteration counts. Iteration counts that
stay flat under refinement show mesh independence of the preconditioner.

gopcd scaling -I input.yaml --levels 4`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		icFile, _ := cmd.Flags().GetString("inputConditionsFile")
		levels, _ := cmd.Flags().GetInt("levels")
		csvFile, _ := cmd.Flags().GetString("csv")
		ip := processInput(icFile)
		ip.Print()
		var cw *csv.Writer
		if len(csvFile) != 0 {
			var f *os.File
			if f, err = os.Create(csvFile); err != nil {
				panic(err)
			}
			defer f.Close()
			cw = csv.NewWriter(f)
		}
		if err = RunScaling(ip, levels, os.Stdout, cw); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(ScalingCmd)
	ScalingCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters, Nx and Ny give the coarsest grid")
	ScalingCmd.Flags().IntP("levels", "l", 3, "number of refinement levels")
	ScalingCmd.Flags().String("csv", "", "also write the table as CSV, the input of tools/iterGrowth")
}

// RunScaling prints one table row per level to w, and a CSV row to cw when not nil
func RunScaling(ip *InputParameters.PCDParameters, levels int, w io.Writer, cw *csv.Writer) (err error) {
	if levels < 1 {
		return fmt.Errorf("need at least one level, have %d", levels)
	}
	ctx, err := newContext()
	if err != nil {
		return
	}
	nx, ny := ip.Nx, ip.Ny
	fmt.Fprintf(w, "%10s %10s %10s %8s %8s %12s\n", "ndofs", "ndofs_u", "ndofs_p", "picard", "krylov", "time")
	title := ip.PCDVariant + "/" + ip.Factorization
	if cw != nil {
		defer cw.Flush()
		if err = cw.Write([]string{"title", "ndofs", "ndofs_u", "ndofs_p", "picard", "krylov", "seconds"}); err != nil {
			return
		}
	}
	for l := 0; l < levels; l++ {
		lp := *ip
		lp.Nx, lp.Ny = nx<<l, ny<<l
		var res ChannelResult
		if res, err = SolveChannel(ctx, &lp); err != nil {
			return
		}
		if !res.Stats.Converged {
			fmt.Fprintf(w, "level %d did not converge: %s\n", l, res.Stats)
		}
		fmt.Fprintf(w, "%10d %10d %10d %8d %8d %12v\n", res.Nu+res.Np, res.Nu, res.Np,
			res.Stats.Iterations, res.Stats.KrylovIterations, res.Runtime)
		if cw != nil {
			if err = cw.Write([]string{title,
				strconv.Itoa(res.Nu + res.Np), strconv.Itoa(res.Nu), strconv.Itoa(res.Np),
				strconv.Itoa(res.Stats.Iterations), strconv.Itoa(res.Stats.KrylovIterations),
				strconv.FormatFloat(res.Runtime.Seconds(), 'g', 6, 64)}); err != nil {
				return
			}
		}
	}
	return
}
