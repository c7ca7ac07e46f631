package tracker

import (
	"errors"
)

// largeCost stands in for infinity in the column reduction
const largeCost = 1000000.0

// errAugment is returned when the shortest augmenting path search fails,
// which only happens with NaN or infinite costs
var errAugment = errors.New("lapjv: augmenting path not found")

// lap solves the dense square linear assignment problem with the
// Jonker-Volgenant algorithm.  x[i] is the column assigned to row i and
// y[j] the row assigned to column j.
type lap struct {
	n    int
	cost [][]float64
	x    []int
	y    []int
	// v holds the column dual variables
	v []float64
}

// solveLAP returns the minimum cost row to column assignment of a square
// cost matrix
func solveLAP(cost [][]float64) (x, y []int, err error) {

	n := len(cost)

	if n == 0 {
		return nil, nil, nil
	}

	s := &lap{
		n:    n,
		cost: cost,
		x:    make([]int, n),
		y:    make([]int, n),
		v:    make([]float64, n),
	}

	free := s.reduceColumns()

	// two rounds of augmenting row reduction usually leave few free rows
	for round := 0; len(free) > 0 && round < 2; round++ {
		free = s.reduceRows(free)
	}

	if len(free) > 0 {
		if err := s.augment(free); err != nil {
			return nil, nil, err
		}
	}

	return s.x, s.y, nil
}

// reduceColumns assigns each column to its cheapest row and transfers the
// reduction to rows assigned exactly once.  It returns the unassigned rows.
func (s *lap) reduceColumns() []int {

	n := s.n
	unique := make([]bool, n)

	for i := 0; i < n; i++ {
		s.x[i] = -1
		s.v[i] = largeCost
		s.y[i] = 0
		unique[i] = true
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c := s.cost[i][j]; c < s.v[j] {
				s.v[j] = c
				s.y[j] = i
			}
		}
	}

	for j := n - 1; j >= 0; j-- {
		i := s.y[j]

		if s.x[i] < 0 {
			s.x[i] = j
		} else {
			unique[i] = false
			s.y[j] = -1
		}
	}

	var free []int

	for i := 0; i < n; i++ {
		if s.x[i] < 0 {
			free = append(free, i)
			continue
		}

		if !unique[i] {
			continue
		}

		j := s.x[i]
		minVal := largeCost

		for j2 := 0; j2 < n; j2++ {
			if j2 == j {
				continue
			}

			if c := s.cost[i][j2] - s.v[j2]; c < minVal {
				minVal = c
			}
		}

		s.v[j] -= minVal
	}

	return free
}

// reduceRows performs augmenting row reduction on the free rows and returns
// the rows left free
func (s *lap) reduceRows(free []int) []int {

	n := s.n
	current := 0
	next := 0
	count := 0

	for current < len(free) {

		count++
		freeI := free[current]
		current++

		// lowest and second lowest reduced cost in the row
		j1, u1 := 0, s.cost[freeI][0]-s.v[0]
		j2, u2 := -1, largeCost

		for j := 1; j < n; j++ {
			c := s.cost[freeI][j] - s.v[j]

			if c >= u2 {
				continue
			}

			if c >= u1 {
				u2, j2 = c, j
			} else {
				u2, j2 = u1, j1
				u1, j1 = c, j
			}
		}

		i0 := s.y[j1]
		lowered := s.v[j1] - (u2 - u1)
		lowers := lowered < s.v[j1]

		if count < current*n {
			if lowers {
				s.v[j1] = lowered
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = s.y[j2]
			}

			if i0 >= 0 {
				if lowers {
					current--
					free[current] = i0
				} else {
					free[next] = i0
					next++
				}
			}
		} else if i0 >= 0 {
			free[next] = i0
			next++
		}

		s.x[freeI] = j1
		s.y[j1] = freeI
	}

	return free[:next]
}

// augment assigns each remaining free row along a shortest augmenting path
func (s *lap) augment(free []int) error {

	pred := make([]int, s.n)

	for _, freeI := range free {

		j := s.shortestPath(freeI, pred)

		if j < 0 || j >= s.n {
			return errAugment
		}

		for i, k := -1, 0; i != freeI; k++ {
			if k >= s.n {
				return errAugment
			}

			i = pred[j]
			s.y[j] = i
			j, s.x[i] = s.x[i], j
		}
	}

	return nil
}

// shortestPath runs the modified Dijkstra search from row start and returns
// the unassigned column ending the path, updating the column duals
func (s *lap) shortestPath(start int, pred []int) int {

	n := s.n
	lo, hi, ready := 0, 0, 0
	end := -1
	cols := make([]int, n)
	d := make([]float64, n)

	for j := 0; j < n; j++ {
		cols[j] = j
		pred[j] = start
		d[j] = s.cost[start][j] - s.v[j]
	}

	for end == -1 {
		if lo == hi {
			ready = lo
			hi = s.collectMin(lo, d, cols)

			for k := lo; k < hi; k++ {
				if j := cols[k]; s.y[j] < 0 {
					end = j
				}
			}
		}

		if end == -1 {
			end = s.scan(&lo, &hi, d, cols, pred)
		}
	}

	mind := d[cols[lo]]

	for k := 0; k < ready; k++ {
		j := cols[k]
		s.v[j] += d[j] - mind
	}

	return end
}

// collectMin moves the columns from lo onwards with the minimum distance to
// the front of the scan list and returns the new end of that list
func (s *lap) collectMin(lo int, d []float64, cols []int) int {

	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < s.n; k++ {
		j := cols[k]

		if d[j] > mind {
			continue
		}

		if d[j] < mind {
			hi = lo
			mind = d[j]
		}

		cols[k], cols[hi] = cols[hi], j
		hi++
	}

	return hi
}

// scan relaxes the unscanned columns through the columns on the scan list,
// returning an unassigned column reached at minimum distance or -1
func (s *lap) scan(lo, hi *int, d []float64, cols, pred []int) int {

	for *lo != *hi {

		j := cols[*lo]
		*lo++
		i := s.y[j]
		mind := d[j]
		h := s.cost[i][j] - s.v[j] - mind

		for k := *hi; k < s.n; k++ {
			j = cols[k]
			reduced := s.cost[i][j] - s.v[j] - h

			if reduced >= d[j] {
				continue
			}

			d[j] = reduced
			pred[j] = i

			if reduced == mind {
				if s.y[j] < 0 {
					return j
				}

				cols[k], cols[*hi] = cols[*hi], j
				*hi++
			}
		}
	}

	return -1
}
