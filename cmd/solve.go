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
	"context"
	"fmt"
	"io"
	"log"
	"math/cmplx"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gobloch/InputParameters"
	"github.com/notargets/gobloch/btpde"
	"github.com/notargets/gobloch/utils"
)

type SolveOptions struct {
	PlotDir    string
	PrintEvery int
}

// ExperimentResult is the outcome of one (b-value, direction) solve.
type ExperimentResult struct {
	Experiment  InputParameters.Experiment
	Signal      complex128
	Attenuation float64
	Compartment []complex128
	Result      btpde.Result
	Elapsed     time.Duration
	Err         error
}

// SolveCmd represents the solve command
var SolveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the Bloch-Torrey PDE for every b-value and gradient direction",
	Long: `
Assembles the finite element matrices once, then integrates the Bloch-Torrey PDE
for every (b-value, direction) pair of the input file concurrently and reports
the normalized signals and the apparent diffusion coefficient per direction,

gobloch solve -I input.yaml [-F mesh.neu] [--plot dir]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		icFile, _ := cmd.Flags().GetString("inputConditionsFile")
		gridFile, _ := cmd.Flags().GetString("gridFile")
		so := SolveOptions{}
		so.PlotDir, _ = cmd.Flags().GetString("plot")
		so.PrintEvery, _ = cmd.Flags().GetInt("printEvery")
		ctx := commandContext(cmd)
		pr, err := setupProblem(ctx, icFile, gridFile)
		if err != nil {
			return err
		}
		results, err := RunExperiments(ctx, pr, so)
		if err != nil {
			return err
		}
		printResults(cmd.OutOrStdout(), results)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(SolveCmd)
	SolveCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters")
	SolveCmd.Flags().StringP("gridFile", "F", "", "Grid file to read in Gambit (.neu) format, overrides the input file")
	SolveCmd.Flags().String("plot", "", "directory receiving one signal attenuation plot per experiment")
	SolveCmd.Flags().Int("printEvery", 0, "log the signal every N time steps, 0 disables")
}

// RunExperiments solves all experiments concurrently over the shared matrices.
// A failed experiment does not stop the others; cancellation does.
func RunExperiments(ctx context.Context, pr *Problem, so SolveOptions) (results []ExperimentResult, err error) {
	var (
		experiments []InputParameters.Experiment
		opts        btpde.Options
		xi0         []complex128
	)
	if experiments, err = pr.Input.Experiments(); err != nil {
		return
	}
	if opts, err = pr.Input.SolverOptions(); err != nil {
		return
	}
	opts.Verbose = viper.GetBool("verbose")
	if xi0, err = btpde.InitialMagnetization(pr.Mats, pr.Input.Rho(pr.Mats.NCompartments())); err != nil {
		return
	}
	var (
		n  = len(experiments)
		s0 = cmplx.Abs(btpde.Signal(pr.Mats.M, xi0))
		np = utils.ParallelDegree(pr.Input.Parallelism, n)
		pm = utils.NewPartitionMap(np, n)
	)
	// each worker fills its own bucket, gathered in experiment order below
	buckets := make([][]ExperimentResult, pm.ParallelDegree)
	pm.ForEachBucket(func(bucket, _, _ int) {
		local := make([]ExperimentResult, pm.GetBucketDimension(bucket))
		for kLocal := range local {
			var (
				k         = pm.GetGlobalK(kLocal, bucket)
				ex        = experiments[k]
				callbacks []btpde.Callback
				start     = time.Now()
			)
			if so.PlotDir != "" {
				path := filepath.Join(so.PlotDir, fmt.Sprintf("signal_%03d.png", k))
				callbacks = append(callbacks, btpde.NewSignalPlotter(ex.String(), path, pr.Mats))
			}
			if so.PrintEvery > 0 {
				callbacks = append(callbacks, btpde.NewPrinter(ex.String(), pr.Mats.M, so.PrintEvery))
			}
			res, err := btpde.Solve(ctx, pr.Mats, ex.Gradient, xi0, opts, callbacks...)
			r := ExperimentResult{Experiment: ex, Result: res, Err: err, Elapsed: time.Since(start)}
			if err == nil && res.Status == btpde.Completed {
				r.Signal = btpde.Signal(pr.Mats.M, res.Xi)
				r.Compartment = btpde.CompartmentSignals(pr.Mats, res.Xi)
				if s0 != 0 {
					r.Attenuation = cmplx.Abs(r.Signal) / s0
				}
			}
			if err != nil {
				log.Printf("%s: %v", ex, err)
			}
			local[kLocal] = r
		}
		buckets[bucket] = local
	})
	results = make([]ExperimentResult, n)
	for k := range results {
		kLocal, _, bn := pm.GetLocalK(k)
		results[k] = buckets[bn][kLocal]
	}
	if cause := ctx.Err(); cause != nil {
		return results, fmt.Errorf("solve cancelled: %w", cause)
	}
	return
}

func printResults(w io.Writer, results []ExperimentResult) {
	fmt.Fprintf(w, "%-36s %14s %14s %10s %8s\n", "experiment", "|S|", "S/S0", "steps", "time")
	type series struct {
		b, att []float64
	}
	var (
		byDir = make(map[[3]float64]*series)
		dirs  [][3]float64
	)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%-36s failed: %v\n", r.Experiment, r.Err)
			continue
		}
		fmt.Fprintf(w, "%-36s %14.6g %14.6g %10d %8v\n", r.Experiment, cmplx.Abs(r.Signal),
			r.Attenuation, r.Result.Steps, r.Elapsed.Round(time.Millisecond))
		d := r.Experiment.Direction
		key := [3]float64{d.X, d.Y, d.Z}
		if byDir[key] == nil {
			byDir[key] = &series{}
			dirs = append(dirs, key)
		}
		byDir[key].b = append(byDir[key].b, r.Experiment.BValue)
		byDir[key].att = append(byDir[key].att, r.Attenuation)
	}
	for _, key := range dirs {
		s := byDir[key]
		adc, err := btpde.FitADC(s.b, s.att)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "ADC along (%.3g, %.3g, %.3g) = %.6g\n", key[0], key[1], key[2], adc)
	}
}
