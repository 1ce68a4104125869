// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

import "fmt"

// Status is the termination status of a solve.
// Every status except Running is terminal.
type Status int

const (
	// Running no termination criterion has been met yet.
	Running Status = iota
	// Optimal primal residual, dual residual and duality gap are within tolerance.
	Optimal
	// IterationLimit the iteration limit was reached first.
	IterationLimit
	// PrimalInfeasible a Farkas certificate proving primal infeasibility was found.
	PrimalInfeasible
	// DualInfeasible a recession ray proving dual infeasibility (primal unboundedness) was found.
	DualInfeasible
	// NumericalError an iterate or residual became NaN or ±Inf.
	NumericalError
)

var statusNames = [...]string{
	Running:          "running",
	Optimal:          "optimal",
	IterationLimit:   "iteration_limit",
	PrimalInfeasible: "primal_infeasible",
	DualInfeasible:   "dual_infeasible",
	NumericalError:   "numerical_error",
}

// Terminal reports whether the status stops the iteration.
func (s Status) Terminal() bool { return s != Running }

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("pdhg: unknown status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for k, name := range statusNames {
		if name == string(text) {
			*s = Status(k)
			return nil
		}
	}
	return fmt.Errorf("pdhg: unknown status %q", text)
}
