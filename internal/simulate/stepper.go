package simulate

import "fmt"

// Derivative is the right-hand side a Stepper advances.
type Derivative interface {
	ComputeDerivative(t float64, y []float64) []float64
}

// Stepper advances y from t to t+h. It must not modify y.
type Stepper interface {
	Step(f Derivative, t, h float64, y []float64) []float64
}

// NewStepper returns the stepper for method.
func NewStepper(method Method) (Stepper, error) {
	switch method {
	case MethodEuler:
		return Euler{}, nil
	case MethodRK4, "":
		return RK4{}, nil
	}
	return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, method)
}

// Euler is the explicit first-order scheme.
type Euler struct{}

// Step implements Stepper.
func (Euler) Step(f Derivative, t, h float64, y []float64) []float64 {
	d := f.ComputeDerivative(t, y)
	return axpy(y, h, d)
}

// RK4 is the classical fourth-order Runge-Kutta scheme.
type RK4 struct{}

// Step implements Stepper.
func (RK4) Step(f Derivative, t, h float64, y []float64) []float64 {
	k1 := f.ComputeDerivative(t, y)
	k2 := f.ComputeDerivative(t+h/2, axpy(y, h/2, k1))
	k3 := f.ComputeDerivative(t+h/2, axpy(y, h/2, k2))
	k4 := f.ComputeDerivative(t+h, axpy(y, h, k3))

	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] + h/6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return out
}

// axpy returns y + a·x as a new slice.
func axpy(y []float64, a float64, x []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] + a*x[i]
	}
	return out
}
