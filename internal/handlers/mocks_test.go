package handlers_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockEmergencyService struct {
	mock.Mock
}

func (m *MockEmergencyService) request(args mock.Arguments) (*models.EmergencyRequest, error) {
	req, _ := args.Get(0).(*models.EmergencyRequest)
	return req, args.Error(1)
}

func (m *MockEmergencyService) Create(ctx context.Context, actor models.Actor, in *models.CreateEmergencyRequest) (*models.EmergencyRequest, error) {
	return m.request(m.Called(ctx, actor, in))
}

func (m *MockEmergencyService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EmergencyRequest, error) {
	return m.request(m.Called(ctx, actor, id))
}

func (m *MockEmergencyService) ListForActor(ctx context.Context, actor models.Actor, statuses []models.EmergencyStatus, limit int) ([]models.EmergencyRequest, error) {
	args := m.Called(ctx, actor, statuses, limit)
	list, _ := args.Get(0).([]models.EmergencyRequest)
	return list, args.Error(1)
}

func (m *MockEmergencyService) Update(ctx context.Context, actor models.Actor, id uuid.UUID, in *models.UpdateEmergencyRequest) (*models.EmergencyRequest, error) {
	return m.request(m.Called(ctx, actor, id, in))
}

func (m *MockEmergencyService) Accept(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EmergencyRequest, error) {
	return m.request(m.Called(ctx, actor, id))
}

func (m *MockEmergencyService) AssignETA(ctx context.Context, actor models.Actor, id uuid.UUID, minutes int) (*models.EmergencyRequest, error) {
	return m.request(m.Called(ctx, actor, id, minutes))
}

func (m *MockEmergencyService) ChangeStatus(ctx context.Context, actor models.Actor, id uuid.UUID, in models.StatusChangeRequest) (*models.EmergencyRequest, error) {
	return m.request(m.Called(ctx, actor, id, in))
}

func (m *MockEmergencyService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Send(ctx context.Context, actor models.Actor, in models.SendMessageRequest) (*models.Communication, error) {
	args := m.Called(ctx, actor, in)
	msg, _ := args.Get(0).(*models.Communication)
	return msg, args.Error(1)
}

func (m *MockChatService) List(ctx context.Context, actor models.Actor, requestID uuid.UUID) ([]models.Communication, error) {
	args := m.Called(ctx, actor, requestID)
	list, _ := args.Get(0).([]models.Communication)
	return list, args.Error(1)
}

func (m *MockChatService) MarkRead(ctx context.Context, actor models.Actor, messageID uuid.UUID) error {
	return m.Called(ctx, actor, messageID).Error(0)
}

type MockFleetService struct {
	mock.Mock
}

func (m *MockFleetService) hospital(args mock.Arguments, i int) *models.Hospital {
	h, _ := args.Get(i).(*models.Hospital)
	return h
}

func (m *MockFleetService) ReportLocation(ctx context.Context, actor models.Actor, at models.Coordinates) error {
	return m.Called(ctx, actor, at).Error(0)
}

func (m *MockFleetService) SetAmbulanceStatus(ctx context.Context, actor models.Actor, status models.AmbulanceStatus) (*models.Ambulance, error) {
	args := m.Called(ctx, actor, status)
	amb, _ := args.Get(0).(*models.Ambulance)
	return amb, args.Error(1)
}

func (m *MockFleetService) NearbyAmbulances(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Ambulance, error) {
	args := m.Called(ctx, at, radius, limit)
	list, _ := args.Get(0).([]models.Ambulance)
	return list, args.Error(1)
}

func (m *MockFleetService) NearbyHospitals(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Hospital, error) {
	args := m.Called(ctx, at, radius, limit)
	list, _ := args.Get(0).([]models.Hospital)
	return list, args.Error(1)
}

func (m *MockFleetService) UpdateHospitalStatus(ctx context.Context, actor models.Actor, status models.HospitalStatus) (*models.Hospital, error) {
	args := m.Called(ctx, actor, status)
	return m.hospital(args, 0), args.Error(1)
}

func (m *MockFleetService) ListBeds(ctx context.Context, actor models.Actor) ([]models.BedStatusLog, error) {
	args := m.Called(ctx, actor)
	beds, _ := args.Get(0).([]models.BedStatusLog)
	return beds, args.Error(1)
}

func (m *MockFleetService) SeedBeds(ctx context.Context, actor models.Actor, in models.SeedBedsRequest) ([]models.BedStatusLog, *models.Hospital, error) {
	args := m.Called(ctx, actor, in)
	beds, _ := args.Get(0).([]models.BedStatusLog)
	return beds, m.hospital(args, 1), args.Error(2)
}

func (m *MockFleetService) Admit(ctx context.Context, actor models.Actor, in models.AdmitRequest) (*models.BedStatusLog, *models.Hospital, error) {
	args := m.Called(ctx, actor, in)
	bed, _ := args.Get(0).(*models.BedStatusLog)
	return bed, m.hospital(args, 1), args.Error(2)
}

func (m *MockFleetService) ReleaseBed(ctx context.Context, actor models.Actor, bedNumber string) (*models.Hospital, error) {
	args := m.Called(ctx, actor, bedNumber)
	return m.hospital(args, 0), args.Error(1)
}
