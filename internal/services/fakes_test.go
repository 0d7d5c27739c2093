package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/repository"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
)

// world is an in-memory store with the same compare-and-swap semantics as
// the gorm repositories.
type world struct {
	mu         sync.Mutex
	requests   map[uuid.UUID]*models.EmergencyRequest
	ambulances map[uuid.UUID]*models.Ambulance
	hospitals  map[uuid.UUID]*models.Hospital
	beds       []*models.BedStatusLog
	messages   []*models.Communication
	users      map[uuid.UUID]*models.User
	audits     []*models.AuditLog
}

func newWorld() *world {
	return &world{
		requests:   map[uuid.UUID]*models.EmergencyRequest{},
		ambulances: map[uuid.UUID]*models.Ambulance{},
		hospitals:  map[uuid.UUID]*models.Hospital{},
		users:      map[uuid.UUID]*models.User{},
	}
}

func (w *world) request(id uuid.UUID) models.EmergencyRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.requests[id]
}

func (w *world) ambulance(id uuid.UUID) models.Ambulance {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.ambulances[id]
}

func (w *world) hospital(id uuid.UUID) models.Hospital {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.hospitals[id]
}

func (w *world) requestCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.requests)
}

func (w *world) messageCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// syncCounts must be called with mu held
func (w *world) syncCounts(hospitalID uuid.UUID) models.BedCounts {
	var c models.BedCounts
	for _, b := range w.beds {
		if b.HospitalID != hospitalID {
			continue
		}
		free := b.Status == models.BedAvailable
		switch b.BedType {
		case models.BedICU:
			c.ICUBeds++
			if free {
				c.AvailableICUBeds++
			}
		default:
			c.TotalBeds++
			if free {
				c.AvailableBeds++
			}
		}
	}
	if h, ok := w.hospitals[hospitalID]; ok {
		h.TotalBeds = c.TotalBeds
		h.AvailableBeds = c.AvailableBeds
		h.ICUBeds = c.ICUBeds
		h.AvailableICUBeds = c.AvailableICUBeds
		h.EmergencyStatus = c.DerivedStatus()
	}
	return c
}

// occupy must be called with mu held
func (w *world) occupy(hospitalID uuid.UUID, bedType models.BedType, occupant string, requestID *uuid.UUID) (*models.BedStatusLog, error) {
	var free []*models.BedStatusLog
	for _, b := range w.beds {
		if b.HospitalID == hospitalID && b.BedType == bedType && b.Status == models.BedAvailable {
			free = append(free, b)
		}
	}
	if len(free) == 0 {
		return nil, repository.ErrNoBedAvailable
	}
	sort.Slice(free, func(i, j int) bool { return free[i].BedNumber < free[j].BedNumber })
	bed := free[0]
	bed.Status = models.BedOccupied
	bed.OccupantName = occupant
	bed.EmergencyRequestID = requestID
	out := *bed
	return &out, nil
}

// release must be called with mu held
func (w *world) releaseAmbulance(id uuid.UUID) {
	if a, ok := w.ambulances[id]; ok && (a.Status == models.AmbulanceDispatched || a.Status == models.AmbulanceBusy) {
		a.Status = models.AmbulanceAvailable
	}
}

func isActive(s models.EmergencyStatus) bool {
	return s != models.StatusPending && !s.Terminal()
}

type requestStore struct{ w *world }

func (s requestStore) Create(_ context.Context, req *models.EmergencyRequest) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	cp := *req
	s.w.requests[req.ID] = &cp
	return nil
}

func (s requestStore) GetByID(_ context.Context, id uuid.UUID) (*models.EmergencyRequest, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	r, ok := s.w.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s requestStore) List(_ context.Context, f repository.EmergencyFilter) ([]models.EmergencyRequest, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	owned := f.PatientID != nil || f.AmbulanceID != nil || f.HospitalID != nil || f.IncludePending
	var out []models.EmergencyRequest
	for _, r := range s.w.requests {
		match := !owned
		if f.PatientID != nil && r.PatientID == *f.PatientID {
			match = true
		}
		if f.AmbulanceID != nil && r.AmbulanceID != nil && *r.AmbulanceID == *f.AmbulanceID {
			match = true
		}
		if f.HospitalID != nil && r.HospitalID != nil && *r.HospitalID == *f.HospitalID {
			match = true
		}
		if f.IncludePending && r.Status == models.StatusPending && r.AmbulanceID == nil {
			match = true
		}
		if !match {
			continue
		}
		if len(f.Statuses) > 0 {
			found := false
			for _, st := range f.Statuses {
				found = found || st == r.Status
			}
			if !found {
				continue
			}
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s requestStore) ActiveForAmbulance(_ context.Context, ambulanceID uuid.UUID) (*models.EmergencyRequest, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, r := range s.w.requests {
		if r.AmbulanceID != nil && *r.AmbulanceID == ambulanceID && isActive(r.Status) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s requestStore) UpdateDetails(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	r, ok := s.w.requests[id]
	if !ok || r.Status.Terminal() {
		return repository.ErrStaleStatus
	}
	for k, v := range updates {
		switch k {
		case "address":
			r.Address = v.(string)
		case "condition":
			r.Condition = v.(string)
		case "notes":
			r.Notes = v.(string)
		case "priority":
			r.Priority = v.(models.Priority)
		default:
			return fmt.Errorf("unexpected column %s", k)
		}
	}
	return nil
}

func (s requestStore) Claim(_ context.Context, id, ambulanceID uuid.UUID, eta *int) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.ambulances[ambulanceID]
	if !ok || a.Status != models.AmbulanceAvailable || !a.IsActive {
		return repository.ErrAmbulanceUnavailable
	}
	r, ok := s.w.requests[id]
	if !ok || r.Status != models.StatusPending || r.AmbulanceID != nil {
		return repository.ErrAlreadyClaimed
	}
	a.Status = models.AmbulanceDispatched
	amb := ambulanceID
	r.AmbulanceID = &amb
	r.Status = models.StatusAccepted
	if eta != nil {
		v := *eta
		r.EstimatedArrivalMinutes = &v
	}
	return nil
}

func (s requestStore) SetETA(_ context.Context, id uuid.UUID, minutes int) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	r, ok := s.w.requests[id]
	if !ok || !isActive(r.Status) {
		return repository.ErrStaleStatus
	}
	r.EstimatedArrivalMinutes = &minutes
	return nil
}

func (s requestStore) Transition(_ context.Context, t repository.StatusTransition) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	r, ok := s.w.requests[t.ID]
	if !ok || r.Status != t.From || (t.RequireETA && r.EstimatedArrivalMinutes == nil) {
		return repository.ErrStaleStatus
	}
	r.Status = t.To
	if t.To == models.StatusCancelled {
		r.CancelReason = t.CancelReason
		r.AmbulanceID = nil
	}
	if t.AmbulanceID != nil {
		s.w.releaseAmbulance(*t.AmbulanceID)
	}
	return nil
}

func (s requestStore) Complete(_ context.Context, c repository.Completion) (*repository.CompletionResult, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	r, ok := s.w.requests[c.ID]
	if !ok || r.Status != c.From {
		return nil, repository.ErrStaleStatus
	}
	result := &repository.CompletionResult{}
	if c.AssignBed && c.HospitalID != nil {
		bed, err := s.w.occupy(*c.HospitalID, c.BedType, c.OccupantName, &c.ID)
		if err != nil {
			return nil, err
		}
		counts := s.w.syncCounts(*c.HospitalID)
		result.Bed = bed
		result.Counts = &counts
		n := bed.BedNumber
		r.AssignedBedNumber = &n
	}
	r.Status = models.StatusCompleted
	if c.HospitalID != nil {
		h := *c.HospitalID
		r.HospitalID = &h
	}
	if c.AmbulanceID != nil {
		s.w.releaseAmbulance(*c.AmbulanceID)
	}
	return result, nil
}

func (s requestStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	r, ok := s.w.requests[id]
	if !ok || !r.Status.Terminal() {
		return repository.ErrStaleStatus
	}
	delete(s.w.requests, id)
	return nil
}

type ambulanceStore struct{ w *world }

func (s ambulanceStore) GetByID(_ context.Context, id uuid.UUID) (*models.Ambulance, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.ambulances[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s ambulanceStore) GetByOperator(_ context.Context, operatorID uuid.UUID) (*models.Ambulance, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, a := range s.w.ambulances {
		if a.OperatorID == operatorID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s ambulanceStore) UpdateLocation(_ context.Context, id uuid.UUID, at models.Coordinates) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.ambulances[id]
	if !ok {
		return repository.ErrNotFound
	}
	lat, lng := at.Latitude, at.Longitude
	a.Latitude, a.Longitude = &lat, &lng
	return nil
}

func (s ambulanceStore) UpdateStatus(_ context.Context, id uuid.UUID, from []models.AmbulanceStatus, status models.AmbulanceStatus) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.ambulances[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = status
			return nil
		}
	}
	return repository.ErrConflict
}

func (s ambulanceStore) FindAvailableNearby(_ context.Context, at models.Coordinates, radius float64, limit int) ([]models.Ambulance, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Ambulance
	for _, a := range s.w.ambulances {
		pos, ok := a.Position()
		if ok && a.Status == models.AmbulanceAvailable && models.PlanarDistance(pos, at) <= radius {
			out = append(out, *a)
		}
	}
	return out, nil
}

type hospitalStore struct{ w *world }

func (s hospitalStore) GetByID(_ context.Context, id uuid.UUID) (*models.Hospital, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	h, ok := s.w.hospitals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (s hospitalStore) GetByOwner(_ context.Context, ownerID uuid.UUID) (*models.Hospital, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, h := range s.w.hospitals {
		if h.OwnerID == ownerID {
			cp := *h
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s hospitalStore) FindNearby(_ context.Context, at models.Coordinates, radius float64, limit int) ([]models.Hospital, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Hospital
	for _, h := range s.w.hospitals {
		if models.PlanarDistance(models.Coordinates{Latitude: h.Latitude, Longitude: h.Longitude}, at) <= radius {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (s hospitalStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.HospitalStatus) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	h, ok := s.w.hospitals[id]
	if !ok {
		return repository.ErrNotFound
	}
	h.EmergencyStatus = status
	return nil
}

type bedStore struct{ w *world }

func (s bedStore) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]models.BedStatusLog, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.BedStatusLog
	for _, b := range s.w.beds {
		if b.HospitalID == hospitalID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s bedStore) SeedBeds(_ context.Context, hospitalID uuid.UUID, bedType models.BedType, prefix string, count int) ([]models.BedStatusLog, models.BedCounts, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	existing := 0
	for _, b := range s.w.beds {
		if b.HospitalID == hospitalID && b.BedType == bedType {
			existing++
		}
	}
	var out []models.BedStatusLog
	for i := 1; i <= count; i++ {
		b := &models.BedStatusLog{
			ID:         uuid.New(),
			HospitalID: hospitalID,
			BedNumber:  fmt.Sprintf("%s-%03d", prefix, existing+i),
			BedType:    bedType,
			Status:     models.BedAvailable,
		}
		s.w.beds = append(s.w.beds, b)
		out = append(out, *b)
	}
	return out, s.w.syncCounts(hospitalID), nil
}

func (s bedStore) Occupy(_ context.Context, hospitalID uuid.UUID, bedType models.BedType, occupant string) (*models.BedStatusLog, models.BedCounts, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	bed, err := s.w.occupy(hospitalID, bedType, occupant, nil)
	if err != nil {
		return nil, models.BedCounts{}, err
	}
	return bed, s.w.syncCounts(hospitalID), nil
}

func (s bedStore) Release(_ context.Context, hospitalID uuid.UUID, bedNumber string) (models.BedCounts, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, b := range s.w.beds {
		if b.HospitalID == hospitalID && b.BedNumber == bedNumber && b.Status == models.BedOccupied {
			b.Status = models.BedAvailable
			b.OccupantName = ""
			b.EmergencyRequestID = nil
			return s.w.syncCounts(hospitalID), nil
		}
	}
	return models.BedCounts{}, repository.ErrBedNotOccupied
}

type messageStore struct{ w *world }

func (s messageStore) Create(_ context.Context, msg *models.Communication) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = time.Now()
	cp := *msg
	s.w.messages = append(s.w.messages, &cp)
	return nil
}

func (s messageStore) ListByRequest(_ context.Context, requestID uuid.UUID) ([]models.Communication, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Communication
	for _, m := range s.w.messages {
		if m.EmergencyRequestID == requestID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s messageStore) MarkRead(_ context.Context, id, receiverID uuid.UUID) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, m := range s.w.messages {
		if m.ID == id && m.ReceiverID == receiverID {
			m.IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}

type userStore struct{ w *world }

func (s userStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	u, ok := s.w.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type auditStore struct{ w *world }

func (s auditStore) Create(_ context.Context, entry *models.AuditLog) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	cp := *entry
	s.w.audits = append(s.w.audits, &cp)
	return nil
}

type delivery struct {
	role      models.Role
	userID    uuid.UUID
	broadcast bool
	frame     protocol.Frame
}

// recorder is a Broadcaster that only reaches identities marked online
type recorder struct {
	mu     sync.Mutex
	online map[models.Actor]bool
	sent   []delivery
}

func newRecorder() *recorder {
	return &recorder{online: map[models.Actor]bool{}}
}

func (r *recorder) connect(actors ...models.Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range actors {
		r.online[a] = true
	}
}

func (r *recorder) BroadcastToRole(role models.Role, frame protocol.Frame) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for a := range r.online {
		if a.Role == role {
			n++
		}
	}
	r.sent = append(r.sent, delivery{role: role, broadcast: true, frame: frame})
	return n
}

func (r *recorder) SendToIdentity(role models.Role, userID uuid.UUID, frame protocol.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[models.Actor{UserID: userID, Role: role}] {
		return false
	}
	r.sent = append(r.sent, delivery{role: role, userID: userID, frame: frame})
	return true
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.sent...)
}

// to returns the frames sent directly to one identity
func (r *recorder) to(a models.Actor) []protocol.Frame {
	var out []protocol.Frame
	for _, d := range r.deliveries() {
		if !d.broadcast && d.role == a.Role && d.userID == a.UserID {
			out = append(out, d.frame)
		}
	}
	return out
}

func (r *recorder) broadcasts(role models.Role) []protocol.Frame {
	var out []protocol.Frame
	for _, d := range r.deliveries() {
		if d.broadcast && d.role == role {
			out = append(out, d.frame)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
