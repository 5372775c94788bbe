package devices

// ModeTouch is the only touch sensor mode.
const ModeTouch = "TOUCH"

// Button is a touch sensor driven by input events.
type Button struct {
	sensorBase
	pressed bool
}

// NewButton creates a touch sensor on an inN port.
func NewButton(spec Spec, env Env) (*Button, error) {
	sb, err := newSensorBase(spec, env, "lego-ev3-touch", ModeTouch)
	if err != nil {
		return nil, err
	}
	return &Button{sensorBase: sb}, nil
}

func (b *Button) GenerateBias() {}

// Press sets the pressed state.
func (b *Button) Press(pressed bool) { b.pressed = pressed }

// Pressed reports the pressed state.
func (b *Button) Pressed() bool { return b.pressed }

func (b *Button) ToObject() (map[string]any, error) {
	v := 0
	if b.pressed {
		v = 1
	}
	return b.object(0, v)
}

func (b *Button) ApplyWrite(attr, value string) error {
	return b.applyCommon(attr, value)
}
