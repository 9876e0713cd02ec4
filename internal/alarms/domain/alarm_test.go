package alarms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" Triggered ")
	require.NoError(t, err)
	assert.Equal(t, StatusTriggered, status)

	status, err = ParseStatus("recovered")
	require.NoError(t, err)
	assert.Equal(t, StatusRecovered, status)

	_, err = ParseStatus("acknowledged")
	require.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestTransition(t *testing.T) {
	cases := []struct {
		name     string
		current  Status
		incoming Status
		next     Status
		insert   bool
	}{
		{"first trigger", StatusNone, StatusTriggered, StatusTriggered, true},
		{"repeat trigger", StatusTriggered, StatusTriggered, StatusTriggered, false},
		{"recover", StatusTriggered, StatusRecovered, StatusRecovered, false},
		{"trigger after recover", StatusRecovered, StatusTriggered, StatusTriggered, true},
		{"recover unseen", StatusNone, StatusRecovered, StatusRecovered, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, insert := Transition(tc.current, tc.incoming)
			assert.Equal(t, tc.next, next)
			assert.Equal(t, tc.insert, insert)
		})
	}
}

func TestKeyNormalizesMessage(t *testing.T) {
	a := NewKey("CM-01", "CL01", "Oven  Temperature HIGH ")
	b := NewKey(" CM-01", "CL01", "oven temperature high")
	assert.Equal(t, a, b)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), NewKey("CM-02", "CL01", "oven temperature high").Hash())
}
