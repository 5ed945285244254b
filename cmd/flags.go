package main

import (
	"github.com/cwbudde/convaccel/internal/store"
	"github.com/spf13/pflag"
)

// configFlag binds one command-line flag to a field of store.RunConfig.
type configFlag struct {
	name string
	bind func(fs *pflag.FlagSet, cfg *store.RunConfig)
	copy func(dst *store.RunConfig, src store.RunConfig)
}

var problemFlags = []configFlag{
	{"problem", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.StringVar(&c.Problem.Name, "problem", c.Problem.Name, "Problem: affine, cosine, meanfield")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Name = s.Problem.Name }},
	{"size", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.IntVar(&c.Problem.Size, "size", c.Problem.Size, "Extent of every array dimension")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Size = s.Problem.Size }},
	{"dims", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.IntVar(&c.Problem.Dims, "dims", c.Problem.Dims, "Number of array dimensions (1-4)")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Dims = s.Problem.Dims }},
	{"slope", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.Float64Var(&c.Problem.Slope, "slope", c.Problem.Slope, "Affine slope")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Slope = s.Problem.Slope }},
	{"offset", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.Float64Var(&c.Problem.Offset, "offset", c.Problem.Offset, "Affine offset")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Offset = s.Problem.Offset }},
	{"beta", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.Float64Var(&c.Problem.Beta, "beta", c.Problem.Beta, "Mean-field inverse temperature")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Beta = s.Problem.Beta }},
	{"coupling", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.Float64Var(&c.Problem.Coupling, "coupling", c.Problem.Coupling, "Mean-field coupling J")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Coupling = s.Problem.Coupling }},
	{"field", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.Float64Var(&c.Problem.Field, "field", c.Problem.Field, "Mean-field external field h")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Field = s.Problem.Field }},
	{"initial", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.Float64Var(&c.Problem.Initial, "initial", c.Problem.Initial, "Value of every element of the initial guess")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Problem.Initial = s.Problem.Initial }},
}

var accelFlags = []configFlag{
	{"method", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.StringVar(&c.Accel.Method, "method", c.Accel.Method, "Accelerator: linear, diis")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Accel.Method = s.Accel.Method }},
	{"eta", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.Float64Var(&c.Accel.Eta, "eta", c.Accel.Eta, "Mixing fraction")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Accel.Eta = s.Accel.Eta }},
	{"depth", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.IntVar(&c.Accel.Depth, "depth", c.Accel.Depth, "DIIS subspace size")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Accel.Depth = s.Accel.Depth }},
	{"restart", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.IntVar(&c.Accel.Restart, "restart", c.Accel.Restart, "DIIS restart growth factor")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Accel.Restart = s.Accel.Restart }},
	{"full-subspace", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.BoolVar(&c.Accel.FullSubspace, "full-subspace", c.Accel.FullSubspace, "Include the oldest residual in the Pulay Gram block (singular on the built-in problems, whose uniform start keeps residuals collinear)")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Accel.FullSubspace = s.Accel.FullSubspace }},
}

var limitFlags = []configFlag{
	{"max-iters", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.IntVar(&c.MaxIterations, "max-iters", c.MaxIterations, "Maximum number of iterations")
	}, func(d *store.RunConfig, s store.RunConfig) { d.MaxIterations = s.MaxIterations }},
	{"tol", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.Float64Var(&c.Tolerance, "tol", c.Tolerance, "Stop when max |x_new - x_old| drops below this")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Tolerance = s.Tolerance }},
	{"patience", func(fs *pflag.FlagSet, c *store.RunConfig) {
		fs.IntVar(&c.Patience, "patience", c.Patience, "Stop after this many steps without improvement (0 = never)")
	}, func(d *store.RunConfig, s store.RunConfig) { d.Patience = s.Patience }},
}

// bindConfigFlags registers the given flag groups on fs, with cfg's current
// values as defaults.
func bindConfigFlags(fs *pflag.FlagSet, cfg *store.RunConfig, groups ...[]configFlag) {
	for _, group := range groups {
		for _, f := range group {
			f.bind(fs, cfg)
		}
	}
}

// applyChangedFlags copies into dst only the fields whose flag was set
// explicitly on the command line.
func applyChangedFlags(fs *pflag.FlagSet, dst *store.RunConfig, src store.RunConfig, groups ...[]configFlag) {
	for _, group := range groups {
		for _, f := range group {
			if fs.Changed(f.name) {
				f.copy(dst, src)
			}
		}
	}
}
