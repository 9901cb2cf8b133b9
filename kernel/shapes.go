package kernel

// Kernel profiles f(q) on q = r/H in [0, 1).

func cubic(q float64) float64 {
	a := 1 - q
	f := a * a * a
	if q < 0.5 {
		b := 0.5 - q
		f -= 4 * b * b * b
	}
	return f
}

func quartic(q float64) float64 {
	a := 1 - q
	a2 := a * a
	f := a2 * a2
	if q < 0.6 {
		b := 0.6 - q
		b2 := b * b
		f -= 5 * b2 * b2
	}
	if q < 0.2 {
		c := 0.2 - q
		c2 := c * c
		f += 10 * c2 * c2
	}
	return f
}

func quintic(q float64) float64 {
	a := 1 - q
	a2 := a * a
	f := a2 * a2 * a
	if q < 2.0/3.0 {
		b := 2.0/3.0 - q
		b2 := b * b
		f -= 6 * b2 * b2 * b
	}
	if q < 1.0/3.0 {
		c := 1.0/3.0 - q
		c2 := c * c
		f += 15 * c2 * c2 * c
	}
	return f
}

// The Wendland functions have distinct 1D forms.

func wendlandC2Line(q float64) float64 {
	a := 1 - q
	return a * a * a * (1 + 3*q)
}

func wendlandC2(q float64) float64 {
	a := 1 - q
	a2 := a * a
	return a2 * a2 * (1 + 4*q)
}

func wendlandC4Line(q float64) float64 {
	a := 1 - q
	a2 := a * a
	return a2 * a2 * a * (1 + 5*q + 8*q*q)
}

func wendlandC4(q float64) float64 {
	a := 1 - q
	a3 := a * a * a
	return a3 * a3 * (1 + 6*q + 35.0/3.0*q*q)
}

func wendlandC6Line(q float64) float64 {
	a := 1 - q
	a2 := a * a
	a4 := a2 * a2
	return a4 * a2 * a * (1 + 7*q + 19*q*q + 21*q*q*q)
}

func wendlandC6(q float64) float64 {
	a := 1 - q
	a2 := a * a
	a4 := a2 * a2
	return a4 * a4 * (1 + 8*q + 25*q*q + 32*q*q*q)
}
