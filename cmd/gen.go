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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notargets/shelleig/model_problems/TwoGroup"
	"github.com/notargets/shelleig/readfiles"
)

// GenCmd represents the gen command
var GenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Write a two-group slab diffusion problem in PETSc binary format",
	Long: `
Discretizes two-group neutron diffusion on a slab with zero flux faces and
writes L11, L22, L21, M11 and M12 for the solve command.

shelleig gen -o slab.petsc --cells 200`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			f        = cmd.Flags()
			out, _   = f.GetString("output")
			cells, _ = f.GetInt("cells")
			width, _ = f.GetFloat64("width")
			m        = TwoGroup.DefaultMaterial()
			p        *readfiles.Problem
			pw       *readfiles.PETScWriter
		)
		if len(out) == 0 {
			return fmt.Errorf("must supply an output file (-o, --output)")
		}
		m.Width = width
		if p, err = TwoGroup.NewDiffusion(cells, m); err != nil {
			return
		}
		if pw, err = readfiles.CreatePETSc(out); err != nil {
			return
		}
		if err = readfiles.WriteProblem(pw, p); err != nil {
			_ = pw.Close()
			return
		}
		if err = pw.Close(); err != nil {
			return
		}
		logger.Info("wrote problem", zap.String("file", out), zap.Int("cells", cells),
			zap.Float64("width", m.Width), zap.Float64("k_infinity", m.KInfinity()))
		return
	},
}

func init() {
	rootCmd.AddCommand(GenCmd)
	GenCmd.Flags().StringP("output", "o", "", "PETSc binary file to write")
	GenCmd.Flags().IntP("cells", "k", 100, "number of cells across the slab")
	GenCmd.Flags().Float64("width", TwoGroup.DefaultMaterial().Width, "slab width in cm")
}
