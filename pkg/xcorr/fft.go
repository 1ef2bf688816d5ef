package xcorr

import(
	"gonum.org/v1/gonum/dsp/fourier"
)

// plan2d does 2-D complex transforms over a row-major w*h grid, as a
// pass of 1-D transforms over the rows and then over the columns.
type plan2d struct {
	w, h       int
	rows       *fourier.CmplxFFT
	cols       *fourier.CmplxFFT
	rowIn      []complex128
	rowOut     []complex128
	colIn      []complex128
	colOut     []complex128
}

func newPlan2d(w, h int) *plan2d {
	return &plan2d{
		w:      w,
		h:      h,
		rows:   fourier.NewCmplxFFT(w),
		cols:   fourier.NewCmplxFFT(h),
		rowIn:  make([]complex128, w),
		rowOut: make([]complex128, w),
		colIn:  make([]complex128, h),
		colOut: make([]complex128, h),
	}
}

// forward replaces `data` with its 2-D DFT, sum(x[n] * exp(-2πi kn/N)).
func (p *plan2d)forward(data []complex128) {
	p.apply(data, false)
}

// inverse replaces `data` with its inverse 2-D DFT, including the 1/N
// scaling.
func (p *plan2d)inverse(data []complex128) {
	p.apply(data, true)
	scale := complex(1.0/float64(p.w*p.h), 0)
	for i := range data {
		data[i] *= scale
	}
}

func (p *plan2d)apply(data []complex128, inverse bool) {
	for y:=0; y<p.h; y++ {
		copy(p.rowIn, data[y*p.w:(y+1)*p.w])
		if inverse {
			p.rows.Sequence(p.rowOut, p.rowIn)
		} else {
			p.rows.Coefficients(p.rowOut, p.rowIn)
		}
		copy(data[y*p.w:(y+1)*p.w], p.rowOut)
	}

	for x:=0; x<p.w; x++ {
		for y:=0; y<p.h; y++ {
			p.colIn[y] = data[y*p.w + x]
		}
		if inverse {
			p.cols.Sequence(p.colOut, p.colIn)
		} else {
			p.cols.Coefficients(p.colOut, p.colIn)
		}
		for y:=0; y<p.h; y++ {
			data[y*p.w + x] = p.colOut[y]
		}
	}
}

// freq maps a DFT bin index onto its signed frequency, in the same
// order as numpy's fftfreq: 0, 1, ..., -2, -1.
func freq(k, n int) int {
	if k <= (n-1)/2 {
		return k
	}
	return k - n
}
