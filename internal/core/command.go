package core

import (
	"errors"
	"fmt"
)

// Word is a 32-bit command word: the top four bits carry the class tag, the
// rest is a class-specific payload.
type Word uint32

// Class is the tag held in bits 28-31 of a Word.
type Class uint8

const (
	ClassSteering    Class = 0x1
	ClassMotion      Class = 0x2
	ClassSpeed       Class = 0x4
	ClassLineControl Class = 0x8

	// Horn words share a queue of their own; their tags only need to be
	// distinct from each other and from the drive classes above.
	ClassHornMute  Class = 0xA
	ClassHornSound Class = 0xB
	ClassHornPulse Class = 0xC
)

const (
	classShift  = 28
	classMask   = 0xF0000000
	payloadMask = 0x00000FFF

	// MotorDirectionMarker tags direction words placed on the motor command
	// queue by the sensing tasks.
	MotorDirectionMarker Word = Word(ClassMotion) << classShift

	// MaxDuty is the largest PWM duty value (12-bit).
	MaxDuty = 4095
	// MaxSteeringLevel is the largest steering payload; 100 is straight ahead.
	MaxSteeringLevel = 200
)

var (
	ErrUnknownClass       = errors.New("unknown command class")
	ErrUnknownLineControl = errors.New("unknown line control command")
)

func (c Class) String() string {
	switch c {
	case ClassSteering:
		return "steering"
	case ClassMotion:
		return "motion"
	case ClassSpeed:
		return "speed"
	case ClassLineControl:
		return "line_control"
	case ClassHornMute:
		return "horn_mute"
	case ClassHornSound:
		return "horn_sound"
	case ClassHornPulse:
		return "horn_pulse"
	default:
		return fmt.Sprintf("class(0x%X)", uint8(c))
	}
}

// IsHorn reports whether c belongs to the horn tag space.
func (c Class) IsHorn() bool {
	return c == ClassHornMute || c == ClassHornSound || c == ClassHornPulse
}

// IsDrive reports whether c is consumed by the robot controller.
func (c Class) IsDrive() bool {
	return c == ClassSteering || c == ClassMotion || c == ClassSpeed
}

func (w Word) Class() Class {
	return Class((uint32(w) & classMask) >> classShift)
}

// Payload returns the low 12 bits, the only payload bits any class reads.
func (w Word) Payload() int {
	return int(uint32(w) & payloadMask)
}

func (w Word) String() string {
	return fmt.Sprintf("%s:0x%08X", w.Class(), uint32(w))
}

func tagged(c Class, payload int) Word {
	return Word(c)<<classShift | Word(uint32(payload)&^classMask)
}

// MotionCode is the enumerated payload of a motion word.
type MotionCode int

const (
	MotionForward      MotionCode = 0x1
	MotionReverse      MotionCode = 0x2
	MotionLeft         MotionCode = 0x4
	MotionForwardLeft  MotionCode = 0x5
	MotionReverseLeft  MotionCode = 0x6
	MotionRight        MotionCode = 0x8
	MotionForwardRight MotionCode = 0x9
	MotionReverseRight MotionCode = 0xA
	MotionStop         MotionCode = 0x10
)

func (m MotionCode) String() string {
	switch m {
	case MotionForward:
		return "forward"
	case MotionReverse:
		return "reverse"
	case MotionLeft:
		return "left"
	case MotionForwardLeft:
		return "forward_left"
	case MotionReverseLeft:
		return "reverse_left"
	case MotionRight:
		return "right"
	case MotionForwardRight:
		return "forward_right"
	case MotionReverseRight:
		return "reverse_right"
	case MotionStop:
		return "stop"
	default:
		return fmt.Sprintf("motion(0x%X)", int(m))
	}
}

// DriveCommand is the decoded form of a word bound for the robot controller.
type DriveCommand interface {
	driveCommand()
}

type SteeringCommand struct {
	Level int // 0..200, 100 is straight
}

type MotionCommand struct {
	Code MotionCode
}

type SpeedCommand struct {
	Duty int // 0..4095
}

func (SteeringCommand) driveCommand() {}
func (MotionCommand) driveCommand()   {}
func (SpeedCommand) driveCommand()    {}

// DecodeDrive parses a controller-bound word. Words of any other class yield
// ErrUnknownClass; callers drop them.
func DecodeDrive(w Word) (DriveCommand, error) {
	switch w.Class() {
	case ClassSteering:
		return SteeringCommand{Level: w.Payload()}, nil
	case ClassMotion:
		return MotionCommand{Code: MotionCode(w.Payload())}, nil
	case ClassSpeed:
		return SpeedCommand{Duty: w.Payload()}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, w)
	}
}

func Steering(level int) Word     { return tagged(ClassSteering, level) }
func Motion(code MotionCode) Word { return tagged(ClassMotion, int(code)) }
func Speed(duty int) Word         { return tagged(ClassSpeed, duty) }

// MotorDirection builds the word a sensing task places on the motor queue.
func MotorDirection(code MotionCode) Word {
	return MotorDirectionMarker | Word(code)
}

// HornCommand is the decoded form of a horn queue word.
type HornCommand interface {
	hornCommand()
}

type HornMute struct{}
type HornSound struct{}

// HornPulse sounds the horn for Length out of every Period counter units.
type HornPulse struct {
	Length int
	Period int
}

func (HornMute) hornCommand()  {}
func (HornSound) hornCommand() {}
func (HornPulse) hornCommand() {}

var (
	HornMuteWord  = tagged(ClassHornMute, 0)
	HornSoundWord = tagged(ClassHornSound, 0)
)

// HornPulseWord packs length into the low 12 bits and period above it.
func HornPulseWord(length, period int) Word {
	return tagged(ClassHornPulse, (period&payloadMask)<<12|length&payloadMask)
}

// DecodeHorn parses a horn queue word. The pulse period is read three bits up
// from the length field, not twelve: HornPulseWord(600, 300) decodes to a
// period of 2123.
func DecodeHorn(w Word) (HornCommand, error) {
	switch w.Class() {
	case ClassHornMute:
		return HornMute{}, nil
	case ClassHornSound:
		return HornSound{}, nil
	case ClassHornPulse:
		return HornPulse{
			Length: int(uint32(w) & payloadMask),
			Period: int((uint32(w) >> 3) & payloadMask),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, w)
	}
}

// LineControl toggles the line tracker's sensing and following flags.
type LineControl int

const (
	StartLineSensing     LineControl = 1
	StopLineSensing      LineControl = 2
	EnableLineFollowing  LineControl = 3
	DisableLineFollowing LineControl = 4
)

func (l LineControl) String() string {
	switch l {
	case StartLineSensing:
		return "start_sensing"
	case StopLineSensing:
		return "stop_sensing"
	case EnableLineFollowing:
		return "enable_following"
	case DisableLineFollowing:
		return "disable_following"
	default:
		return fmt.Sprintf("line_control(%d)", int(l))
	}
}

// Word encodes the control as a line-control class word.
func (l LineControl) Word() Word {
	return tagged(ClassLineControl, int(l))
}

// DecodeLineControl parses a word drained from the line tracker's control queue.
func DecodeLineControl(w Word) (LineControl, error) {
	if w.Class() != ClassLineControl {
		return 0, fmt.Errorf("%w: %s", ErrUnknownClass, w)
	}
	switch l := LineControl(w.Payload()); l {
	case StartLineSensing, StopLineSensing, EnableLineFollowing, DisableLineFollowing:
		return l, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownLineControl, w)
	}
}
