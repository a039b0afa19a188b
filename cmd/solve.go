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

	perf "github.com/hodgesds/perf-utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/notargets/shelleig/InputParameters"
	"github.com/notargets/shelleig/model_problems/TwoGroup"
	"github.com/notargets/shelleig/readfiles"
)

const exampleFile = `
########################################
Title: "Two group diffusion"
MatrixFile: matrices.petsc
KSP11:
  Type: cg           # cg, bicgstab or preonly
  Preconditioner: icc # none, jacobi, icc or lu
  RTol: 1.e-8
KSP22:
  Type: cg
EPS:
  ProblemType: nhep
  Which: largest_magnitude
  NEV: 3
  Tol: 1.e-8
########################################
`

// SolveCmd represents the solve command
var SolveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the eigenvalue problem of a two-block system",
	Long: `
Loads L11, L22, L21, M11 and M12 from a PETSc binary file and computes
eigenpairs of the matrix-free operator. Flags override the input file.

shelleig solve -F matrices.petsc [-I params.yaml] [--nev 3]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, err := processInput(cmd)
		if err != nil {
			return err
		}
		ip.Print(cmd.ErrOrStderr())
		return runSolve(cmd.Context(), cmd.OutOrStdout(), ip)
	},
}

func init() {
	rootCmd.AddCommand(SolveCmd)
	f := SolveCmd.Flags()
	f.StringP("matrixFile", "F", "", "PETSc binary file holding L11, L22, L21, M11 and M12 in that order")
	f.StringP("inputParametersFile", "I", "", "YAML file for solver parameters like:\n\t- KSP11/KSP22 (block solvers)\n\t- EPS (eigensolver)")
	f.Int("nev", 0, "number of requested eigenvalues")
	f.Float64("tol", 0, "eigensolver convergence tolerance")
	f.Int("max-it", 0, "eigensolver restart budget")
	f.String("ksp-type", "", "block solver type for both blocks: cg, bicgstab or preonly")
	f.String("pc-type", "", "block preconditioner for both blocks: none, jacobi, icc or lu")
	f.String("problem-type", "", "nhep or hep")
	f.String("which", "", "wanted part of the spectrum, e.g. largest_magnitude, largest_real")
}

func processInput(cmd *cobra.Command) (ip *InputParameters.InputParametersTwoBlock, err error) {
	var (
		f         = cmd.Flags()
		icFile, _ = f.GetString("inputParametersFile")
	)
	ip = &InputParameters.InputParametersTwoBlock{}
	if len(icFile) != 0 {
		if ip, err = InputParameters.ReadInputParameters(icFile); err != nil {
			return nil, err
		}
	}
	if mf, _ := f.GetString("matrixFile"); len(mf) != 0 {
		ip.MatrixFile = mf
	}
	if len(ip.MatrixFile) == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Example File:%s\n", exampleFile)
		return nil, fmt.Errorf("must supply a matrix file (-F, --matrixFile) or MatrixFile in the input parameters file")
	}
	applyOverrides(cmd, ip)
	return
}

// applyOverrides copies flags set on the command line into ip. The block
// solver flags apply to both blocks.
func applyOverrides(cmd *cobra.Command, ip *InputParameters.InputParametersTwoBlock) {
	f := cmd.Flags()
	if f.Changed("nev") {
		ip.EPS.NEV, _ = f.GetInt("nev")
	}
	if f.Changed("tol") {
		ip.EPS.Tol, _ = f.GetFloat64("tol")
	}
	if f.Changed("max-it") {
		ip.EPS.MaxIterations, _ = f.GetInt("max-it")
	}
	if f.Changed("problem-type") {
		ip.EPS.ProblemType, _ = f.GetString("problem-type")
	}
	if f.Changed("which") {
		ip.EPS.Which, _ = f.GetString("which")
	}
	if f.Changed("ksp-type") {
		kt, _ := f.GetString("ksp-type")
		ip.KSP11.Type, ip.KSP22.Type = kt, kt
	}
	if f.Changed("pc-type") {
		pc, _ := f.GetString("pc-type")
		ip.KSP11.Preconditioner, ip.KSP22.Preconditioner = pc, pc
	}
}

func runSolve(ctx context.Context, w io.Writer, ip *InputParameters.InputParametersTwoBlock) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	p, err := readfiles.ReadProblem(ip.MatrixFile, logger)
	if err != nil {
		return
	}
	c, err := TwoGroup.NewTwoGroup(p, ip, logger)
	if err != nil {
		return
	}
	solve := func() error { return c.Solve(ctx, w) }
	if !viper.GetBool("perf") {
		return solve()
	}
	pv, err := perf.CPUInstructions(solve)
	if err != nil {
		return
	}
	logger.Info("eigensolve instructions", zap.Uint64("instructions", pv.Value),
		zap.Uint64("time_enabled_ns", pv.TimeEnabled), zap.Uint64("time_running_ns", pv.TimeRunning))
	return
}
