package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/cache"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	w         *world
	notify    *recorder
	locations *cache.MemoryCache

	emergencies *EmergencyService
	fleet       *FleetService
	chat        *ChatService

	patient, otherPatient, operator, operator2, owner, admin models.Actor

	ambulance, ambulance2 uuid.UUID
	hospital              uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	w := newWorld()
	f := &fixture{
		w:            w,
		notify:       newRecorder(),
		locations:    cache.NewMemoryCache(time.Minute),
		patient:      models.Actor{UserID: uuid.New(), Role: models.RolePatient},
		otherPatient: models.Actor{UserID: uuid.New(), Role: models.RolePatient},
		operator:     models.Actor{UserID: uuid.New(), Role: models.RoleAmbulance},
		operator2:    models.Actor{UserID: uuid.New(), Role: models.RoleAmbulance},
		owner:        models.Actor{UserID: uuid.New(), Role: models.RoleHospital},
		admin:        models.Actor{UserID: uuid.New(), Role: models.RoleAdmin},
		ambulance:    uuid.New(),
		ambulance2:   uuid.New(),
		hospital:     uuid.New(),
	}
	t.Cleanup(func() { f.locations.Close() })

	w.users[f.patient.UserID] = &models.User{ID: f.patient.UserID, Name: "Ama Mensah", Role: models.RolePatient}
	w.ambulances[f.ambulance] = &models.Ambulance{
		ID: f.ambulance, OperatorID: f.operator.UserID, VehicleNumber: "AMB-1",
		Status: models.AmbulanceAvailable, IsActive: true,
	}
	w.ambulances[f.ambulance2] = &models.Ambulance{
		ID: f.ambulance2, OperatorID: f.operator2.UserID, VehicleNumber: "AMB-2",
		Status: models.AmbulanceAvailable, IsActive: true,
	}
	w.hospitals[f.hospital] = &models.Hospital{
		ID: f.hospital, OwnerID: f.owner.UserID, Name: "Korle Bu",
		Latitude: 5.5364, Longitude: -0.2275,
	}
	for _, b := range []struct {
		number string
		typ    models.BedType
	}{{"GEN-001", models.BedGeneral}, {"GEN-002", models.BedGeneral}, {"ICU-001", models.BedICU}} {
		w.beds = append(w.beds, &models.BedStatusLog{
			ID: uuid.New(), HospitalID: f.hospital, BedNumber: b.number, BedType: b.typ, Status: models.BedAvailable,
		})
	}
	w.syncCounts(f.hospital)

	requests := requestStore{w}
	ambulances := ambulanceStore{w}
	hospitals := hospitalStore{w}

	f.emergencies = NewEmergencyService(requests, ambulances, hospitals, userStore{w}, auditStore{w}, f.locations, f.notify)
	f.fleet = NewFleetService(requests, ambulances, hospitals, bedStore{w}, f.locations, time.Minute, f.notify)
	f.chat = NewChatService(requests, ambulances, hospitals, messageStore{w}, f.notify)
	return f
}

// create files a request at a fixed pickup point
func (f *fixture) create(t *testing.T) *models.EmergencyRequest {
	t.Helper()
	req, err := f.emergencies.Create(context.Background(), f.patient, &models.CreateEmergencyRequest{
		Latitude:   5.61,
		Longitude:  -0.18,
		Address:    "Osu, Accra",
		Condition:  "chest pain",
		Priority:   models.PriorityHigh,
		HospitalID: &f.hospital,
	})
	require.NoError(t, err)
	return req
}

// advanceTo accepts a fresh request and walks it up to status
func (f *fixture) advanceTo(t *testing.T, status models.EmergencyStatus) *models.EmergencyRequest {
	t.Helper()
	req := f.create(t)
	if status == models.StatusPending {
		return req
	}
	req, err := f.emergencies.Accept(context.Background(), f.operator, req.ID)
	require.NoError(t, err)
	if req.EstimatedArrivalMinutes == nil {
		req, err = f.emergencies.AssignETA(context.Background(), f.operator, req.ID, 6)
		require.NoError(t, err)
	}
	for req.Status != status {
		next, ok := NextStatus(req.Status)
		require.True(t, ok)
		if next == models.StatusCompleted {
			req, err = f.emergencies.Complete(context.Background(), f.operator, req.ID, models.StatusChangeRequest{Status: next})
		} else {
			req, err = f.emergencies.Advance(context.Background(), f.operator, req.ID, next)
		}
		require.NoError(t, err)
	}
	return req
}

func requireRule(t *testing.T, err error, kind ErrorKind, rule string) {
	t.Helper()
	require.Error(t, err)
	re, ok := AsRuleError(err)
	require.True(t, ok, "expected a rule error, got %v", err)
	require.Equal(t, kind, re.Kind)
	require.Equal(t, rule, re.Rule)
}
