// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package load

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// VariateConfig includes a Variate name, a seed, and additional parameters
// encoded in a raw JSON object.
type VariateConfig struct {
	Name       string          // Name of the variate.
	Seed       int64           // Seed for pseudo-random number generators, if any.
	Parameters json.RawMessage // Parameters in raw encoded JSON object.
}

// Parse parses the encoded variate.
func (vc VariateConfig) Parse() (Variate, error) {
	switch vc.Name {
	case "Constant":
		var p float64
		if err := json.Unmarshal(vc.Parameters, &p); err != nil {
			return nil, fmt.Errorf("Constant parameters: %s", err)
		}
		return NewConstant(p), nil

	case "Uniform":
		var p UniformParameters
		if err := json.Unmarshal(vc.Parameters, &p); err != nil {
			return nil, fmt.Errorf("Uniform parameters: %s", err)
		}
		if p.Lower >= p.Upper {
			return nil, fmt.Errorf("Uniform lower bound %d must be below upper bound %d", p.Lower, p.Upper)
		}
		return NewUniform(vc.Seed, p.Lower, p.Upper), nil

	case "Exponential":
		var p float64
		if err := json.Unmarshal(vc.Parameters, &p); err != nil {
			return nil, fmt.Errorf("Exponential parameters: %s", err)
		}
		if p <= 0 {
			return nil, fmt.Errorf("Exponential rate must be positive")
		}
		return NewExponential(vc.Seed, p), nil

	case "Pareto":
		var p ParetoParameters
		if err := json.Unmarshal(vc.Parameters, &p); err != nil {
			return nil, fmt.Errorf("Pareto parameters: %s", err)
		}
		if p.Xm <= 0 || p.Alpha <= 0 {
			return nil, fmt.Errorf("Pareto parameters must be positive")
		}
		return NewPareto(vc.Seed, p.Xm, p.Alpha), nil
	}
	return nil, fmt.Errorf("unknown variate name: %q", vc.Name)
}

// Variate is a random variable used to pick which resource a worker touches
// and how big a payload it writes.
type Variate interface {
	// Sample gets a sample of the random distribution.
	Sample() float64
}

// Constant always returns a constant value.
type Constant struct {
	v float64
}

// NewConstant returns a new constant distribution.
func NewConstant(v float64) *Constant {
	return &Constant{v: v}
}

// Sample implements Variate.
func (c *Constant) Sample() float64 {
	return c.v
}

// UniformParameters defines parameters for Uniform.
type UniformParameters struct {
	Lower, Upper int64
}

// Uniform generates uniform integer samples in [lb, ub).
type Uniform struct {
	l  sync.Mutex
	r  *rand.Rand
	lb int64
	ub int64
}

// NewUniform returns a new uniform variate. 'lb' must be smaller than 'ub'.
func NewUniform(seed, lb, ub int64) *Uniform {
	if lb >= ub {
		panic("lower bound should be smaller than upper bound")
	}
	return &Uniform{r: rand.New(rand.NewSource(seed)), lb: lb, ub: ub}
}

// Sample implements Variate.
func (u *Uniform) Sample() float64 {
	u.l.Lock()
	defer u.l.Unlock()
	return float64(u.r.Int63n(u.ub-u.lb) + u.lb)
}

// Exponential generates exponentially distributed samples with rate lambda.
type Exponential struct {
	l      sync.Mutex
	r      *rand.Rand
	lambda float64
}

// NewExponential returns a new exponential variate.
func NewExponential(seed int64, lambda float64) *Exponential {
	return &Exponential{r: rand.New(rand.NewSource(seed)), lambda: lambda}
}

// Sample implements Variate.
func (e *Exponential) Sample() float64 {
	e.l.Lock()
	defer e.l.Unlock()
	return e.r.ExpFloat64() / e.lambda
}

// ParetoParameters defines parameters for Pareto.
type ParetoParameters struct {
	Xm    float64 // Scale, the smallest possible sample.
	Alpha float64 // Shape.
}

// Pareto generates Pareto distributed samples. Picking resources with it
// gives a few hot spots, which is what makes commits collide.
type Pareto struct {
	l     sync.Mutex
	r     *rand.Rand
	xm    float64
	alpha float64
}

// NewPareto returns a new Pareto variate.
func NewPareto(seed int64, xm, alpha float64) *Pareto {
	return &Pareto{r: rand.New(rand.NewSource(seed)), xm: xm, alpha: alpha}
}

// Sample implements Variate.
func (p *Pareto) Sample() float64 {
	p.l.Lock()
	u := p.r.Float64()
	p.l.Unlock()
	// Inverse transform sampling; 1-u is in (0, 1].
	return p.xm / math.Pow(1-u, 1/p.alpha)
}
