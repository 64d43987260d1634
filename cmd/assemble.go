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

	"github.com/spf13/cobra"

	"github.com/notargets/gobloch/fem"
	"github.com/notargets/gobloch/utils"
)

// AssembleCmd represents the assemble command
var AssembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble the finite element matrices and report their structure",
	Long: `
Builds the mass, stiffness, relaxation, first moment and permeability matrices
of the mesh described by the input file and prints their dimensions, sparsity
and compartment volumes,

gobloch assemble -I input.yaml [-F mesh.neu]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		icFile, _ := cmd.Flags().GetString("inputConditionsFile")
		gridFile, _ := cmd.Flags().GetString("gridFile")
		pr, err := setupProblem(commandContext(cmd), icFile, gridFile)
		if err != nil {
			return err
		}
		printMatrices(cmd.OutOrStdout(), pr.Mats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(AssembleCmd)
	AssembleCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters")
	AssembleCmd.Flags().StringP("gridFile", "F", "", "Grid file to read in Gambit (.neu) format, overrides the input file")
}

func printMatrices(w io.Writer, mats *fem.Matrices) {
	fmt.Fprintf(w, "%d DOFs, %d compartments, total volume %.6g\n",
		mats.Dim(), mats.NCompartments(), mats.TotalVolume())
	for c := 0; c < mats.NCompartments(); c++ {
		fmt.Fprintf(w, "  compartment %d: DOFs [%d, %d), volume %.6g, M nnz %d\n",
			c, mats.Offsets[c], mats.Offsets[c+1], mats.Volumes[c], mats.MCmpts[c].NNZ())
	}
	for _, nm := range []struct {
		name string
		A    utils.CSR
	}{
		{"M", mats.M}, {"S", mats.S}, {"R", mats.R}, {"Q", mats.Q},
		{"Mx", mats.Mx[0]}, {"My", mats.Mx[1]}, {"Mz", mats.Mx[2]},
	} {
		fmt.Fprintf(w, "  %-2s nnz %8d, sum %12.6g\n", nm.name, nm.A.NNZ(), nm.A.Sum())
	}
	fmt.Fprintf(w, "dense factorizations use %s BLAS/LAPACK\n", utils.Backend())
}
