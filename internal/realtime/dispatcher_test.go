package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_BroadcastToRole(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg)

	ok1, ok2, full, patient := &fakeChannel{}, &fakeChannel{}, &fakeChannel{err: ErrBufferFull}, &fakeChannel{}
	reg.Register(models.RoleAmbulance, uuid.New(), ok1)
	reg.Register(models.RoleAmbulance, uuid.New(), ok2)
	reg.Register(models.RoleAmbulance, uuid.New(), full)
	reg.Register(models.RolePatient, uuid.New(), patient)

	n := d.BroadcastToRole(models.RoleAmbulance, protocol.MustNew(protocol.TypeNewEmergencyRequest, map[string]string{"id": "r1"}))
	assert.Equal(t, 2, n)

	frames := ok1.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeNewEmergencyRequest, frames[0].Type)
	assert.Len(t, ok2.frames(t), 1)
	assert.Empty(t, patient.frames(t))
}

func TestDispatcher_SendToIdentity(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg)
	user := uuid.New()
	ch := &fakeChannel{}
	reg.Register(models.RoleHospital, user, ch)

	frame := protocol.MustNew(protocol.TypeHospitalStatusUpdate, map[string]int{"availableBeds": 3})
	assert.True(t, d.SendToIdentity(models.RoleHospital, user, frame))
	assert.Len(t, ch.frames(t), 1)

	assert.False(t, d.SendToIdentity(models.RolePatient, user, frame), "same user under another role is a different identity")
	assert.False(t, d.SendToIdentity(models.RoleHospital, uuid.New(), frame))
}

func TestDispatcher_ClosedChannelIsSilentDrop(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg)
	user := uuid.New()
	ch := &fakeChannel{}
	reg.Register(models.RolePatient, user, ch)
	ch.Close()

	assert.False(t, d.SendToIdentity(models.RolePatient, user, protocol.MustNew(protocol.TypePong, nil)))
}
