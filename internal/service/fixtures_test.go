package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-visit-api/internal/models"
	"github.com/noah-isme/sma-visit-api/internal/repository"
	"github.com/noah-isme/sma-visit-api/pkg/config"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func expectCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

type stubClock struct {
	now time.Time
	loc *time.Location
}

func newStubClock(now time.Time) *stubClock {
	return &stubClock{now: now.UTC(), loc: time.FixedZone("WIB", 7*3600)}
}

func (c *stubClock) Now() time.Time                  { return c.now }
func (c *stubClock) Location(string) *time.Location { return c.loc }
func (c *stubClock) advance(d time.Duration)         { c.now = c.now.Add(d) }

type auditStub struct {
	logs []models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, *log)
	return nil
}

func (a *auditStub) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type invalidatorStub struct {
	patterns []string
}

func (c *invalidatorStub) Invalidate(ctx context.Context, pattern string) {
	c.patterns = append(c.patterns, pattern)
}

// memoryVisitLog is an in-memory gatePassLog. Path A semantics apply when
// source is models.SourceWalkIn: identity is read from the latest record.
type memoryVisitLog struct {
	source       models.Source
	entities     map[string]models.Entity
	records      []*models.VisitRecord
	seq          int
	lockErr      error
	contactLocks int
}

func newMemoryVisitLog(source models.Source) *memoryVisitLog {
	return &memoryVisitLog{source: source, entities: make(map[string]models.Entity)}
}

func entityKey(tenantID, id string) string {
	return tenantID + "/" + id
}

func (m *memoryVisitLog) addEntity(entity models.Entity) {
	m.entities[entityKey(entity.TenantID, entity.ID)] = entity
}

func (m *memoryVisitLog) Source() models.Source {
	return m.source
}

func (m *memoryVisitLog) CreateWithTx(ctx context.Context, tx *sqlx.Tx, entity *models.Entity) error {
	if entity.ID == "" {
		m.seq++
		entity.ID = fmt.Sprintf("entity-%d", m.seq)
	}
	entity.IsActive = true
	m.addEntity(*entity)
	return nil
}

func (m *memoryVisitLog) LockSubject(ctx context.Context, tx *sqlx.Tx, tenantID, subjectID string) (*models.Entity, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	return m.FindSubject(ctx, tenantID, subjectID)
}

func (m *memoryVisitLog) FindSubject(ctx context.Context, tenantID, subjectID string) (*models.Entity, error) {
	if m.source == models.SourceWalkIn {
		latest := m.latest(tenantID, subjectID)
		if latest == nil {
			return nil, nil
		}
		return &models.Entity{ID: latest.EntityID, TenantID: latest.TenantID, Category: latest.Category, DisplayName: latest.DisplayName, IsActive: true}, nil
	}
	entity, ok := m.entities[entityKey(tenantID, subjectID)]
	if !ok {
		return nil, nil
	}
	return &entity, nil
}

func (m *memoryVisitLog) LatestForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID, subjectID string) (*models.VisitRecord, error) {
	return m.Latest(ctx, tenantID, subjectID)
}

func (m *memoryVisitLog) Latest(ctx context.Context, tenantID, subjectID string) (*models.VisitRecord, error) {
	latest := m.latest(tenantID, subjectID)
	if latest == nil {
		return nil, nil
	}
	copy := *latest
	return &copy, nil
}

func (m *memoryVisitLog) latest(tenantID, subjectID string) *models.VisitRecord {
	var best *models.VisitRecord
	for _, r := range m.records {
		if r.TenantID != tenantID || r.EntityID != subjectID || !r.IsActive {
			continue
		}
		if best == nil || !moreRecent(best, r) {
			best = r
		}
	}
	return best
}

// moreRecent orders by departure descending with nulls first, then creation time.
func moreRecent(a, b *models.VisitRecord) bool {
	switch {
	case a.DepartureTime == nil && b.DepartureTime != nil:
		return true
	case a.DepartureTime != nil && b.DepartureTime == nil:
		return false
	case a.DepartureTime != nil && !a.DepartureTime.Equal(*b.DepartureTime):
		return a.DepartureTime.After(*b.DepartureTime)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (m *memoryVisitLog) Insert(ctx context.Context, tx *sqlx.Tx, record *models.VisitRecord) error {
	if record.DepartureTime != nil {
		for _, r := range m.records {
			if r.TenantID == record.TenantID && r.EntityID == record.EntityID && r.IsOpen() && r.IsActive {
				return repository.ErrOpenVisitExists
			}
		}
	}
	m.seq++
	record.ID = fmt.Sprintf("visit-%d", m.seq)
	record.IsActive = true
	copy := *record
	m.records = append(m.records, &copy)
	return nil
}

func (m *memoryVisitLog) find(tenantID, visitID string) *models.VisitRecord {
	for _, r := range m.records {
		if r.TenantID == tenantID && r.ID == visitID {
			return r
		}
	}
	return nil
}

func (m *memoryVisitLog) Close(ctx context.Context, tx *sqlx.Tx, params repository.VisitTransition) error {
	r := m.find(params.TenantID, params.VisitID)
	if r == nil || !r.IsOpen() {
		return sql.ErrNoRows
	}
	at := params.At
	r.ReturnTime = &at
	r.UpdatedBy = params.Actor
	return nil
}

func (m *memoryVisitLog) OpenApproved(ctx context.Context, tx *sqlx.Tx, params repository.VisitTransition) error {
	r := m.find(params.TenantID, params.VisitID)
	if r == nil || r.DepartureTime != nil || r.Approval() != models.ApprovalApproved {
		return sql.ErrNoRows
	}
	at := params.At
	r.DepartureTime = &at
	r.UpdatedBy = params.Actor
	return nil
}

func (m *memoryVisitLog) LockVisit(ctx context.Context, tx *sqlx.Tx, tenantID, visitID string) (*models.VisitRecord, error) {
	r := m.find(tenantID, visitID)
	if r == nil {
		return nil, nil
	}
	copy := *r
	return &copy, nil
}

func (m *memoryVisitLog) SetApproval(ctx context.Context, tx *sqlx.Tx, params repository.ApprovalParams) error {
	r := m.find(params.TenantID, params.VisitID)
	if r == nil || r.Approval() != models.ApprovalPending {
		return sql.ErrNoRows
	}
	state := params.State
	actor := params.Actor
	at := params.At
	r.ApprovalState = &state
	r.ApprovedBy = &actor
	r.ApprovedAt = &at
	return nil
}

func (m *memoryVisitLog) LockContact(ctx context.Context, tx *sqlx.Tx, tenantID, contact string) error {
	m.contactLocks++
	return nil
}

func (m *memoryVisitLog) CountOpenGatePasses(ctx context.Context, tx *sqlx.Tx, tenantID, contact string, from, to time.Time) (int, error) {
	count := 0
	for _, r := range m.records {
		if r.TenantID != tenantID || r.Category != models.CategoryGatePass || r.ContactNumber != contact || !r.IsActive {
			continue
		}
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		if r.ReturnTime == nil && r.Approval() != models.ApprovalRejected {
			count++
		}
	}
	return count, nil
}

// memoryActivity aggregates a memoryVisitLog the way ActivityRepository aggregates a table.
type memoryActivity struct {
	log *memoryVisitLog
}

func within(t *time.Time, from, to time.Time) bool {
	return t != nil && !t.Before(from) && t.Before(to)
}

func (a memoryActivity) Source() models.Source {
	return a.log.source
}

func (a memoryActivity) CategoryCounts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time) ([]models.CategoryCountRow, error) {
	byCategory := map[models.Category]*models.CategoryCountRow{}
	var order []models.Category
	for _, r := range a.log.records {
		if r.TenantID != tenantID || !r.IsActive {
			continue
		}
		in, out := within(r.DepartureTime, from, to), within(r.ReturnTime, from, to)
		if !in && !out {
			continue
		}
		row, ok := byCategory[r.Category]
		if !ok {
			row = &models.CategoryCountRow{Category: r.Category}
			byCategory[r.Category] = row
			order = append(order, r.Category)
		}
		if in {
			row.Checkins++
		}
		if out {
			row.Checkouts++
		}
	}
	rows := make([]models.CategoryCountRow, 0, len(order))
	for _, c := range order {
		rows = append(rows, *byCategory[c])
	}
	return rows, nil
}

func (a memoryActivity) PurposeCounts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time, categories []models.Category) ([]models.PurposeCountRow, error) {
	wanted := map[models.Category]bool{}
	for _, c := range categories {
		wanted[c] = true
	}
	byName := map[string]*models.PurposeCountRow{}
	var order []string
	for _, r := range a.log.records {
		if r.TenantID != tenantID || !r.IsActive || !wanted[r.Category] {
			continue
		}
		in, out := within(r.DepartureTime, from, to), within(r.ReturnTime, from, to)
		if !in && !out {
			continue
		}
		name := r.PurposeName
		if r.PurposeID == nil {
			name = models.OtherPurposeLabel
		}
		row, ok := byName[name]
		if !ok {
			row = &models.PurposeCountRow{PurposeName: name}
			byName[name] = row
			order = append(order, name)
		}
		if in {
			row.Checkins++
		}
		if out {
			row.Checkouts++
		}
	}
	rows := make([]models.PurposeCountRow, 0, len(order))
	for _, n := range order {
		rows = append(rows, *byName[n])
	}
	return rows, nil
}

// purposeStoreStub is an in-memory purposeStore.
type purposeStoreStub struct {
	purposes map[int64]*models.Purpose
	nextID   int64
	err      error
}

func newPurposeStoreStub(seed ...models.Purpose) *purposeStoreStub {
	stub := &purposeStoreStub{purposes: make(map[int64]*models.Purpose), nextID: 100}
	for i := range seed {
		p := seed[i]
		stub.purposes[p.ID] = &p
	}
	return stub
}

func (s *purposeStoreStub) FindByID(ctx context.Context, tenantID string, id int64) (*models.Purpose, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.purposes[id]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	copy := *p
	return &copy, nil
}

func (s *purposeStoreStub) FindActive(ctx context.Context, tenantID string, categoryID int, id int64) (*models.Purpose, error) {
	p, err := s.FindByID(ctx, tenantID, id)
	if err != nil || p == nil || !p.IsActive || p.CategoryID != categoryID {
		return nil, err
	}
	return p, nil
}

func (s *purposeStoreStub) ExistsByName(ctx context.Context, tenantID string, categoryID int, name string, excludeID int64) (bool, error) {
	for _, p := range s.purposes {
		if p.TenantID == tenantID && p.CategoryID == categoryID && p.IsActive && p.ID != excludeID && strings.EqualFold(p.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *purposeStoreStub) Create(ctx context.Context, purpose *models.Purpose) error {
	s.nextID++
	purpose.ID = s.nextID
	purpose.IsActive = true
	copy := *purpose
	s.purposes[purpose.ID] = &copy
	return nil
}

func (s *purposeStoreStub) Rename(ctx context.Context, tenantID string, id int64, name, actor string) error {
	p, ok := s.purposes[id]
	if !ok || !p.IsActive {
		return sql.ErrNoRows
	}
	p.Name = name
	return nil
}

func (s *purposeStoreStub) Deactivate(ctx context.Context, tenantID string, id int64, actor string) error {
	p, ok := s.purposes[id]
	if !ok || !p.IsActive {
		return sql.ErrNoRows
	}
	p.IsActive = false
	return nil
}

func (s *purposeStoreStub) List(ctx context.Context, filter models.PurposeFilter) ([]models.Purpose, error) {
	var out []models.Purpose
	for _, p := range s.purposes {
		if p.TenantID != filter.TenantID {
			continue
		}
		if filter.CategoryID != 0 && p.CategoryID != filter.CategoryID {
			continue
		}
		if !filter.IncludeInactive && !p.IsActive {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// catalogFixture seeds the purposes used across lifecycle tests.
func catalogFixture() (*PurposeService, *purposeStoreStub) {
	store := newPurposeStoreStub(
		models.Purpose{ID: 1, TenantID: "tenant-1", CategoryID: models.ModuleStudent.ID(), Name: "Medical", IsActive: true},
		models.Purpose{ID: 2, TenantID: "tenant-1", CategoryID: models.ModuleVisitor.ID(), Name: "Delivery", IsActive: true},
		models.Purpose{ID: 3, TenantID: "tenant-1", CategoryID: models.ModuleGatePass.ID(), Name: "Contractor", IsActive: true},
		models.Purpose{ID: 4, TenantID: "tenant-1", CategoryID: models.ModuleStudent.ID(), Name: "Retired", IsActive: false},
	)
	defaults := config.PurposeConfig{Defaults: map[string]int64{"visitor": 2, "gatepass": 3}}
	return NewPurposeService(store, defaults, nil, nil, nil), store
}

func int64Ptr(v int64) *int64 {
	return &v
}
