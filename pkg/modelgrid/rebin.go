package modelgrid

import(
	"gonum.org/v1/gonum/floats"
)

// Rebin reduces the wavelength axis to nBins points. Samples are split
// into nBins contiguous runs of (near) equal length; each bin's
// wavelength and flux is the mean over its run.
func Rebin(wave []float64, flux [][]float64, nBins int) ([]float64, [][]float64) {
	n := len(wave)
	if nBins <= 0 || nBins >= n {
		return wave, flux
	}

	edges := make([]int, nBins+1)
	for b := range edges {
		edges[b] = b * n / nBins
	}

	mean := func(vals []float64) float64 { return floats.Sum(vals) / float64(len(vals)) }

	newWave := make([]float64, nBins)
	for b:=0; b<nBins; b++ {
		newWave[b] = mean(wave[edges[b]:edges[b+1]])
	}

	newFlux := make([][]float64, len(flux))
	for m, row := range flux {
		newFlux[m] = make([]float64, nBins)
		for b:=0; b<nBins; b++ {
			newFlux[m][b] = mean(row[edges[b]:edges[b+1]])
		}
	}

	return newWave, newFlux
}
