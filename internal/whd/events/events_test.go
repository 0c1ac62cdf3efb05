package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

func TestRegisterAndDispatch(t *testing.T) {
	d := New(8)
	var got []string

	id, err := d.Register("wlan0", EventLink, func(hdr bus.EventHeader, data []byte) {
		got = append(got, "link")
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	d.Dispatch("wlan0", bus.EventHeader{EventType: uint32(EventLink)}, nil)
	d.Dispatch("wlan0", bus.EventHeader{EventType: uint32(EventAuth)}, nil) // unregistered, ignored
	d.Dispatch("wlan1", bus.EventHeader{EventType: uint32(EventLink)}, nil) // different interface, ignored

	assert.Equal(t, []string{"link"}, got)
}

func TestRegisterMultiSharesOneID(t *testing.T) {
	d := New(8)
	var calls int
	id, err := d.RegisterMulti("wlan0", []EventType{EventSetSsid, EventLink, EventAuth}, func(bus.EventHeader, []byte) {
		calls++
	})
	require.NoError(t, err)

	d.Dispatch("wlan0", bus.EventHeader{EventType: uint32(EventSetSsid)}, nil)
	d.Dispatch("wlan0", bus.EventHeader{EventType: uint32(EventLink)}, nil)
	d.Dispatch("wlan0", bus.EventHeader{EventType: uint32(EventAuth)}, nil)
	assert.Equal(t, 3, calls)

	require.NoError(t, d.Deregister(id))
	d.Dispatch("wlan0", bus.EventHeader{EventType: uint32(EventSetSsid)}, nil)
	assert.Equal(t, 3, calls, "deregistered family must stop receiving events")
}

func TestDeregisterUnknownIDIsNoOp(t *testing.T) {
	d := New(4)
	assert.NoError(t, d.Deregister(domain.EventHandlerID(999)))
}

func TestRegisterFailsWhenTableFull(t *testing.T) {
	d := New(2)
	_, err := d.Register("wlan0", EventLink, func(bus.EventHeader, []byte) {})
	require.NoError(t, err)
	_, err = d.Register("wlan0", EventAuth, func(bus.EventHeader, []byte) {})
	require.NoError(t, err)

	_, err = d.Register("wlan0", EventDeauthInd, func(bus.EventHeader, []byte) {})
	assert.ErrorIs(t, err, domain.ErrTooManySubscriptions)
}

func TestRegisterMultiRejectedAsOneUnitWhenItWouldOverflow(t *testing.T) {
	d := New(2)
	_, err := d.RegisterMulti("wlan0", []EventType{EventSetSsid, EventLink, EventAuth}, func(bus.EventHeader, []byte) {})
	assert.ErrorIs(t, err, domain.ErrTooManySubscriptions)
	assert.Equal(t, 0, d.size, "a rejected multi-registration must not partially consume capacity")
}

func TestDispatchOrdersMultipleHandlersByRegistration(t *testing.T) {
	d := New(8)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		_, err := d.Register("wlan0", EventLink, func(bus.EventHeader, []byte) {
			order = append(order, i)
		})
		require.NoError(t, err)
	}
	d.Dispatch("wlan0", bus.EventHeader{EventType: uint32(EventLink)}, nil)
	assert.Equal(t, []int{0, 1, 2}, order)
}
