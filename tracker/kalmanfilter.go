package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Measurement is a box in (centre x, centre y, aspect ratio, height) form
type Measurement [4]float64

// KalmanState is the mean and covariance of a constant velocity model over
// the measurement space and its velocities
type KalmanState struct {
	// Mean holds cx, cy, aspect, height followed by their velocities
	Mean [8]float64
	// Cov is the 8x8 state covariance
	Cov *mat.Dense
}

// Box returns the position part of the state mean
func (s *KalmanState) Box() Measurement {
	return Measurement{s.Mean[0], s.Mean[1], s.Mean[2], s.Mean[3]}
}

// KalmanFilter smooths box positions between updates
type KalmanFilter struct {
	stdWeightPosition float64
	stdWeightVelocity float64
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter.  The weights
// scale the process noise relative to the box height.
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float64) *KalmanFilter {

	const ndim = 4
	const dt = 1.0

	motionMat := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		motionMat.Set(i, i, 1.0)
	}

	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, dt)
	}

	updateMat := mat.NewDense(4, 8, nil)

	for i := 0; i < ndim; i++ {
		updateMat.Set(i, i, 1.0)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// Initiate creates a state from an unassociated measurement with zero
// velocity
func (kf *KalmanFilter) Initiate(m Measurement) *KalmanState {

	s := &KalmanState{Cov: mat.NewDense(8, 8, nil)}
	copy(s.Mean[:4], m[:])

	h := m[3]
	std := [8]float64{
		2 * kf.stdWeightPosition * h,
		2 * kf.stdWeightPosition * h,
		1e-2,
		2 * kf.stdWeightPosition * h,
		10 * kf.stdWeightVelocity * h,
		10 * kf.stdWeightVelocity * h,
		1e-5,
		10 * kf.stdWeightVelocity * h,
	}

	for i, v := range std {
		s.Cov.Set(i, i, v*v)
	}

	return s
}

// Predict advances the state one time step
func (kf *KalmanFilter) Predict(s *KalmanState) {

	h := s.Mean[3]
	std := [8]float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-2,
		kf.stdWeightPosition * h,
		kf.stdWeightVelocity * h,
		kf.stdWeightVelocity * h,
		1e-5,
		kf.stdWeightVelocity * h,
	}

	motionCov := mat.NewDense(8, 8, nil)

	for i, v := range std {
		motionCov.Set(i, i, v*v)
	}

	var mean mat.VecDense
	mean.MulVec(kf.motionMat, mat.NewVecDense(8, s.Mean[:]))

	for i := range s.Mean {
		s.Mean[i] = mean.AtVec(i)
	}

	var tmp, cov mat.Dense
	tmp.Mul(kf.motionMat, s.Cov)
	cov.Mul(&tmp, kf.motionMat.T())
	cov.Add(&cov, motionCov)

	s.Cov = &cov
}

// Update corrects the state with an associated measurement
func (kf *KalmanFilter) Update(s *KalmanState, m Measurement) error {

	projectedMean, projectedCov := kf.project(s)

	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// B = P * H^T, gain K^T solves S * K^T = B^T
	var b mat.Dense
	b.Mul(s.Cov, kf.updateMat.T())

	var gainT mat.Dense
	err := chol.SolveTo(&gainT, b.T())

	if err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(4, nil)

	for i := 0; i < 4; i++ {
		innovation.SetVec(i, m[i]-projectedMean[i])
	}

	var delta mat.VecDense
	delta.MulVec(gainT.T(), innovation)

	for i := range s.Mean {
		s.Mean[i] += delta.AtVec(i)
	}

	// P = P - K * S * K^T
	var ks, kskt mat.Dense
	ks.Mul(gainT.T(), projectedCov)
	kskt.Mul(&ks, &gainT)

	var cov mat.Dense
	cov.Sub(s.Cov, &kskt)
	s.Cov = &cov

	return nil
}

// project maps the state into measurement space adding measurement noise
func (kf *KalmanFilter) project(s *KalmanState) (Measurement, *mat.SymDense) {

	h := s.Mean[3]
	std := [4]float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-1,
		kf.stdWeightPosition * h,
	}

	var hp, hph mat.Dense
	hp.Mul(kf.updateMat, s.Cov)
	hph.Mul(&hp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			v := hph.At(i, j)

			if i == j {
				v += std[i] * std[i]
			}

			projectedCov.SetSym(i, j, v)
		}
	}

	var projected Measurement
	copy(projected[:], s.Mean[:4])

	return projected, projectedCov
}
