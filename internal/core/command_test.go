package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWord_ClassAndPayload(t *testing.T) {
	w := Speed(0x7FF)
	assert.Equal(t, ClassSpeed, w.Class())
	assert.Equal(t, 0x7FF, w.Payload())
	assert.Equal(t, Word(0x400007FF), w)

	assert.Equal(t, Word(0x20000010), Motion(MotionStop))
	assert.Equal(t, Word(0x10000064), Steering(100))
}

func TestDecodeDrive(t *testing.T) {
	tests := []struct {
		name string
		word Word
		want DriveCommand
	}{
		{"steering", Steering(150), SteeringCommand{Level: 150}},
		{"motion", Motion(MotionReverseLeft), MotionCommand{Code: MotionReverseLeft}},
		{"speed", Speed(4095), SpeedCommand{Duty: 4095}},
		{"motor direction from sensing task", MotorDirection(MotionRight), MotionCommand{Code: MotionRight}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDrive(tt.word)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown class", func(t *testing.T) {
		_, err := DecodeDrive(Word(0x30000001))
		assert.ErrorIs(t, err, ErrUnknownClass)

		_, err = DecodeDrive(StartLineSensing.Word())
		assert.ErrorIs(t, err, ErrUnknownClass)
	})
}

func TestDecodeHorn(t *testing.T) {
	t.Run("mute and sound", func(t *testing.T) {
		cmd, err := DecodeHorn(HornMuteWord)
		require.NoError(t, err)
		assert.Equal(t, HornMute{}, cmd)

		cmd, err = DecodeHorn(HornSoundWord)
		require.NoError(t, err)
		assert.Equal(t, HornSound{}, cmd)
	})

	t.Run("pulse period read three bits up", func(t *testing.T) {
		cmd, err := DecodeHorn(HornPulseWord(600, 300))
		require.NoError(t, err)
		assert.Equal(t, HornPulse{Length: 600, Period: 2123}, cmd)
	})

	t.Run("drive word rejected", func(t *testing.T) {
		_, err := DecodeHorn(Speed(10))
		assert.ErrorIs(t, err, ErrUnknownClass)
	})
}

func TestDecodeLineControl(t *testing.T) {
	for _, l := range []LineControl{StartLineSensing, StopLineSensing, EnableLineFollowing, DisableLineFollowing} {
		got, err := DecodeLineControl(l.Word())
		require.NoError(t, err, l.String())
		assert.Equal(t, l, got)
	}

	_, err := DecodeLineControl(LineControl(9).Word())
	assert.ErrorIs(t, err, ErrUnknownLineControl)

	_, err = DecodeLineControl(Motion(MotionForward))
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestClass_Predicates(t *testing.T) {
	assert.True(t, ClassSpeed.IsDrive())
	assert.True(t, ClassSteering.IsDrive())
	assert.False(t, ClassLineControl.IsDrive())
	assert.True(t, ClassHornPulse.IsHorn())
	assert.False(t, ClassMotion.IsHorn())
}
