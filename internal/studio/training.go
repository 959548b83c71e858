package studio

import (
	"time"
)

const trainingIncrement = 5

// TrainBrand starts the simulated brand-model training. Progress climbs in 5%
// steps; at 100% the brand is marked trained.
func (s *Studio) TrainBrand() (State, error) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return State{}, ErrClosed
	}
	if s.training {
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st, ErrTrainingInProgress
	}
	s.training = true
	s.trainingProgress = 0
	st := s.snapshotLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info().Str("brand", st.Brand.DisplayName()).Msg("studio: brand training started")
	go s.train()
	return st, nil
}

func (s *Studio) train() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.trainingStep)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			s.training = false
			s.trainingProgress = 0
			s.mu.Unlock()
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		s.trainingProgress += trainingIncrement
		if s.trainingProgress < 100 {
			s.mu.Unlock()
			continue
		}
		s.training = false
		s.trainingProgress = 100
		brand := s.brand
		brand.IsLoraTrained = true
		s.brand = brand
		version, st := s.commitLocked()
		s.mu.Unlock()

		s.logger.Info().Str("brand", brand.DisplayName()).Msg("studio: brand training finished")
		s.persist(version, st)
		return
	}
}
