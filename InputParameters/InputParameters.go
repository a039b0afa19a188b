package InputParameters

import (
	"fmt"
	"io"
	"os"

	"github.com/ghodss/yaml"

	"github.com/notargets/shelleig/eigen"
	"github.com/notargets/shelleig/linsolve"
)

// KSPParameters configure the solver of one diagonal block. Zero values
// select the defaults.
type KSPParameters struct {
	Type           string  `json:"Type"`
	Preconditioner string  `json:"Preconditioner"`
	RTol           float64 `json:"RTol"`
	ATol           float64 `json:"ATol"`
	MaxIterations  int     `json:"MaxIterations"`
}

// EPSParameters configure the eigensolver. Zero values select the defaults.
type EPSParameters struct {
	ProblemType   string  `json:"ProblemType"`
	Which         string  `json:"Which"`
	NEV           int     `json:"NEV"`
	NCV           int     `json:"NCV"`
	Tol           float64 `json:"Tol"`
	MaxIterations int     `json:"MaxIterations"`
	Seed          int64   `json:"Seed"`
}

// Parameters obtained from the YAML input file
type InputParametersTwoBlock struct {
	Title      string        `json:"Title"`
	MatrixFile string        `json:"MatrixFile"`
	KSP11      KSPParameters `json:"KSP11"` // Block one solver, KL11
	KSP22      KSPParameters `json:"KSP22"` // Block two solver, KL22
	EPS        EPSParameters `json:"EPS"`
}

func (ip *InputParametersTwoBlock) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func ReadInputParameters(filename string) (ip *InputParametersTwoBlock, err error) {
	var data []byte
	if data, err = os.ReadFile(filename); err != nil {
		return nil, fmt.Errorf("unable to read input parameters %s: %w", filename, err)
	}
	ip = &InputParametersTwoBlock{}
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("unable to parse input parameters %s: %w", filename, err)
	}
	return
}

func (ip *InputParametersTwoBlock) Print(w io.Writer) {
	title := ip.Title
	if title == "" {
		title = ip.EPSOptions().ProblemType.String() + " (matrix-free)"
	}
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", title)
	fmt.Fprintf(w, "[%s]\t\t= Matrix File\n", ip.MatrixFile)
	for _, b := range []struct {
		name string
		opts linsolve.Options
	}{{"KSP11", ip.KSP11.Options()}, {"KSP22", ip.KSP22.Options()}} {
		fmt.Fprintf(w, "[%s/%s]\t\t= %s Type/Preconditioner\n", b.opts.Type, b.opts.PC, b.name)
		fmt.Fprintf(w, "%8.2e\t\t= %s RTol\n", b.opts.RTol, b.name)
		fmt.Fprintf(w, "[%d]\t\t\t= %s Max Iterations\n", b.opts.MaxIterations, b.name)
	}
	eo := ip.EPSOptions()
	fmt.Fprintf(w, "[%s]\t\t\t= Problem Type\n", string(eo.ProblemType))
	fmt.Fprintf(w, "[%s]\t= Which\n", eo.Which)
	fmt.Fprintf(w, "[%d]\t\t\t\t= NEV\n", eo.NEV)
	fmt.Fprintf(w, "%8.2e\t\t= Tol\n", eo.Tol)
}

// Options converts to solver options, filling zero fields with
// linsolve.DefaultOptions.
func (kp KSPParameters) Options() (o linsolve.Options) {
	o = linsolve.DefaultOptions()
	if kp.Type != "" {
		o.Type = linsolve.KSPType(kp.Type)
	}
	if kp.Preconditioner != "" {
		o.PC = linsolve.PCType(kp.Preconditioner)
	}
	if kp.RTol != 0 {
		o.RTol = kp.RTol
	}
	if kp.ATol != 0 {
		o.ATol = kp.ATol
	}
	if kp.MaxIterations != 0 {
		o.MaxIterations = kp.MaxIterations
	}
	return
}

func (ip *InputParametersTwoBlock) EPSOptions() (o eigen.Options) {
	ep := ip.EPS
	o = eigen.DefaultOptions()
	if ep.ProblemType != "" {
		o.ProblemType = eigen.ProblemType(ep.ProblemType)
	}
	if ep.Which != "" {
		o.Which = eigen.Which(ep.Which)
	}
	if ep.NEV != 0 {
		o.NEV = ep.NEV
	}
	if ep.Tol != 0 {
		o.Tol = ep.Tol
	}
	if ep.Seed != 0 {
		o.Seed = ep.Seed
	}
	o.NCV, o.MaxIterations = ep.NCV, ep.MaxIterations
	return
}
