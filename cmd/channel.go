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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gopcd/InputParameters"
	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/fieldsplit"
	"github.com/notargets/gopcd/krylov"
	"github.com/notargets/gopcd/model_problems/Channel2D"
	"github.com/notargets/gopcd/utils"
)

type ModelChannel struct {
	ICFile  string
	Profile string
	Perf    bool
}

// ChannelCmd represents the channel command
var ChannelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Channel flow solved with a PCD preconditioned Krylov method",
	Long: `
Solves Stokes or, with Picard: true, Navier-Stokes flow through a unit
height channel with a parabolic inflow and a free outflow.

gopcd channel -I input.yaml --profile cpu`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			mc  = &ModelChannel{}
		)
		mc.ICFile, _ = cmd.Flags().GetString("inputConditionsFile")
		mc.Profile, _ = cmd.Flags().GetString("profile")
		mc.Perf, _ = cmd.Flags().GetBool("perf")
		ip := processInput(mc.ICFile)
		ip.Print()
		if err = RunChannel(mc, ip, os.Stdout); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(ChannelCmd)
	ChannelCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- Nx, Ny, Viscosity\n\t- PCDVariant, Factorization")
	ChannelCmd.Flags().String("profile", "", "write a pprof profile to the current directory, one of cpu, mem")
	ChannelCmd.Flags().Bool("perf", false, "count instructions with hardware performance counters (linux)")
}

// processInput reads the parameter file over the defaults. A missing file
// name runs the defaults and shows an example file.
func processInput(icFile string) (ip *InputParameters.PCDParameters) {
	var (
		err  error
		data []byte
	)
	ip = InputParameters.NewPCDParameters()
	if len(icFile) == 0 {
		fmt.Printf("no input parameters file (-I, --inputConditionsFile), using defaults\n")
		fmt.Printf("Example File:%s\n", InputParameters.ExampleFile)
		return
	}
	if data, err = os.ReadFile(icFile); err != nil {
		panic(err)
	}
	if err = ip.Parse(data); err != nil {
		panic(err)
	}
	return
}

type ChannelResult struct {
	Nu, Np  int
	Stats   Channel2D.PicardStats // One iteration for Stokes
	Inflow  float64
	Outflow float64
	Runtime time.Duration
}

// SolveChannel builds the channel and the preconditioner from ip and solves
func SolveChannel(ctx *comm.Context, ip *InputParameters.PCDParameters) (res ChannelResult, err error) {
	var (
		cfg   fieldsplit.Config
		pc    *fieldsplit.Preconditioner
		x     utils.BlockVector
		start = time.Now()
	)
	if err = ip.Validate(); err != nil {
		return
	}
	if cfg, err = ip.ToConfig(); err != nil {
		return
	}
	c := Channel2D.NewChannel2D(ctx, ip.Nx, ip.Ny, ip.Length, ip.Viscosity)
	if pc, err = fieldsplit.New(ctx, c, cfg); err != nil {
		return
	}
	defer pc.Destroy()
	res.Nu, res.Np = c.Nu, c.Np
	res.Inflow = c.InflowFlux()
	if ip.Picard {
		if x, res.Stats, err = c.Picard(pc, ip.PicardSettings()); err != nil {
			return
		}
	} else {
		var ls krylov.Stats
		if err = pc.Assemble(); err != nil {
			return
		}
		if x, ls, err = c.Oseen(pc, ip.KrylovSettings()); err != nil {
			return
		}
		res.Stats = Channel2D.PicardStats{
			Iterations:       1,
			KrylovIterations: ls.Iterations,
			Residual:         ls.ResidualNorm,
			Converged:        ls.Converged,
			Linear:           []krylov.Stats{ls},
		}
	}
	res.Outflow = c.OutflowFlux(x)
	res.Runtime = time.Since(start)
	res.Stats.Runtime = res.Runtime
	return
}

func RunChannel(mc *ModelChannel, ip *InputParameters.PCDParameters, w io.Writer) (err error) {
	var (
		ctx *comm.Context
		res ChannelResult
	)
	if ctx, err = newContext(); err != nil {
		return
	}
	switch mc.Profile {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile %s, choose from [cpu mem]", mc.Profile)
	}
	solve := func() (err error) {
		res, err = SolveChannel(ctx, ip)
		return
	}
	if mc.Perf {
		var (
			count uint64
			ok    bool
		)
		if count, ok, err = countInstructions(solve); err != nil {
			return
		}
		if ok {
			fmt.Fprintf(w, "instructions (driver thread) = %d\n", count)
		} else {
			fmt.Fprintf(w, "hardware counters unavailable\n")
		}
	} else if err = solve(); err != nil {
		return
	}
	fmt.Fprintf(w, "ndofs = %d, ndofs_u = %d, ndofs_p = %d\n", res.Nu+res.Np, res.Nu, res.Np)
	fmt.Fprintf(w, "%s\n", res.Stats)
	fmt.Fprintf(w, "inflow = %8.5f, outflow = %8.5f\n", res.Inflow, res.Outflow)
	return
}
