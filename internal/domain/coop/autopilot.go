package coop

// Autopilot plays the coop for headless runs: it lays eggs every tick and
// builds a nest whenever there are more than NestCost eggs and a chicken is free.
type Autopilot struct{}

func (Autopilot) Plan(s Snapshot) []Action {
	actions := []Action{{Kind: LayEgg}}
	if s.Eggs > NestCost && s.Nests < s.Chickens {
		actions = append(actions, Action{Kind: BuildNest})
	}
	return actions
}
