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
	"log"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/notargets/gobloch/InputParameters"
	"github.com/notargets/gobloch/fem"
	"github.com/notargets/gobloch/mesh"
)

// Problem is the assembled simulation set up from an input file.
type Problem struct {
	Input  *InputParameters.InputParameters
	Mesh   *mesh.FEMesh
	Coeffs fem.Coefficients
	Mats   *fem.Matrices
}

func readInput(icFile, gridFile string) (ip *InputParameters.InputParameters, err error) {
	if len(icFile) == 0 {
		fmt.Printf("Example File:\n%s\n", InputParameters.Example)
		return nil, fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile) in YAML format")
	}
	var data []byte
	if data, err = os.ReadFile(icFile); err != nil {
		return nil, err
	}
	ip = &InputParameters.InputParameters{}
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", icFile, err)
	}
	if len(gridFile) != 0 {
		ip.Mesh.File = gridFile
	}
	if p := viper.GetInt("parallelism"); p != 0 {
		ip.Parallelism = p
	}
	return
}

// setupProblem reads the input, builds the mesh and assembles the matrices.
func setupProblem(ctx context.Context, icFile, gridFile string) (pr *Problem, err error) {
	var (
		verbose = viper.GetBool("verbose")
	)
	pr = &Problem{}
	if pr.Input, err = readInput(icFile, gridFile); err != nil {
		return nil, err
	}
	if verbose {
		pr.Input.Print()
	}
	if pr.Mesh, err = pr.Input.NewMesh(); err != nil {
		return nil, err
	}
	if verbose {
		pr.Mesh.PrintStatistics()
	}
	if pr.Coeffs, err = pr.Input.Coefficients(pr.Mesh); err != nil {
		return nil, err
	}
	opts := pr.Input.AssemblyOptions()
	opts.Verbose = verbose
	start := time.Now()
	if pr.Mats, err = fem.AssembleMatrices(ctx, pr.Mesh, pr.Coeffs, opts); err != nil {
		return nil, err
	}
	log.Printf("assembled %d DOFs in %d compartments in %v",
		pr.Mats.Dim(), pr.Mats.NCompartments(), time.Since(start))
	return
}
