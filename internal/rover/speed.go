package rover

// SpeedCommandHandler decides how a speed command is applied. base performs
// the plain speed update.
type SpeedCommandHandler interface {
	ProcessSpeed(value int, base func(int))
}

// PlainSpeed applies speed commands unchanged.
type PlainSpeed struct{}

func (PlainSpeed) ProcessSpeed(value int, base func(int)) {
	base(value)
}

// ThresholdSetter is implemented by CollisionGuard.
type ThresholdSetter interface {
	SetMinimumAcceptableDistance(mm int)
}

// CollisionSensingSpeed widens the collision threshold with speed before
// applying it: min = (speed/10)*4 + 150, tuned on hardwood flooring.
type CollisionSensingSpeed struct {
	Guard ThresholdSetter
}

func (s CollisionSensingSpeed) ProcessSpeed(value int, base func(int)) {
	s.Guard.SetMinimumAcceptableDistance(StoppingDistance(value))
	base(value)
}

// StoppingDistance is the minimum acceptable distance in mm at speed.
func StoppingDistance(speed int) int {
	return (speed/10)*4 + DefaultMinimumDistance
}
