package visualize

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func toMatrix(items []Item) (*mat.Dense, error) {
	dims := len(items[0].Vector)
	if dims == 0 {
		return nil, fmt.Errorf("item %s has an empty embedding", items[0].ID)
	}
	data := make([]float64, 0, len(items)*dims)
	for _, it := range items {
		if len(it.Vector) != dims {
			return nil, fmt.Errorf("item %s has %d dimensions, want %d", it.ID, len(it.Vector), dims)
		}
		for _, v := range it.Vector {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(items), dims, data), nil
}

// Standardize rescales every column in place to zero mean and unit
// population variance. Constant columns are only centered.
func Standardize(m *mat.Dense) {
	rows, cols := m.Dims()
	if rows == 0 {
		return
	}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		for i := 0; i < rows; i++ {
			m.Set(i, j, (col[i]-mean)/std)
		}
	}
}
