package signal

// setLevels computes stop and targets around entry for the signal's
// candidate side. A structure stop on the wrong side of entry falls back
// to the ATR stop. It reports false when no positive risk distance exists.
func (s *Signal) setLevels(entry, atr, swingLow, swingHigh float64, cfg Config) bool {
	sign := 1.0
	opposite := swingLow
	if s.Candidate == Short {
		sign = -1
		opposite = swingHigh
	}

	stop := entry - sign*atr*cfg.ATRStopMultiple
	if cfg.StopMode == StopStructure {
		if sign*(entry-opposite) > 0 {
			stop = opposite
			s.tag("stop at opposite swing %.6g", opposite)
		} else {
			s.tag("opposite swing %.6g not behind entry, atr stop used", opposite)
		}
	}

	risk := sign * (entry - stop)
	if !(risk > 0) {
		return false
	}
	s.Entry = entry
	s.Stop = stop
	s.Target = entry + sign*risk*cfg.RiskReward
	s.Targets = make([]float64, len(cfg.TargetTiers))
	for i, tier := range cfg.TargetTiers {
		s.Targets[i] = entry + sign*risk*cfg.RiskReward*tier
	}
	s.tag("risk %.6g, rr %.2f", risk, cfg.RiskReward)
	return true
}
