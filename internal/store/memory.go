package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
)

// Memory is an in-process Store. Transactions are serialised and their
// writes are staged until the callback returns nil, so a failed transaction
// leaves nothing behind.
type Memory struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	students     map[uuid.UUID]models.Student
	classes      map[uuid.UUID]models.Class
	subjects     map[uuid.UUID]models.Subject
	classSubject map[uuid.UUID][]uuid.UUID
	combinations map[uuid.UUID]models.SubjectCombination
	exams        map[uuid.UUID]models.Exam
	results      map[models.ResultModel]map[uuid.UUID]models.Result
	history      []models.HistoryEntry
	policies     map[models.Curriculum]models.GradingPolicy

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		students:     make(map[uuid.UUID]models.Student),
		classes:      make(map[uuid.UUID]models.Class),
		subjects:     make(map[uuid.UUID]models.Subject),
		classSubject: make(map[uuid.UUID][]uuid.UUID),
		combinations: make(map[uuid.UUID]models.SubjectCombination),
		exams:        make(map[uuid.UUID]models.Exam),
		results: map[models.ResultModel]map[uuid.UUID]models.Result{
			models.ResultModelOLevel: make(map[uuid.UUID]models.Result),
			models.ResultModelALevel: make(map[uuid.UUID]models.Result),
		},
		policies: make(map[models.Curriculum]models.GradingPolicy),
		now:      time.Now,
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// Reference data setters. The engine treats these as owned elsewhere; they
// exist for seeding and tests.

func (m *Memory) PutStudent(s *models.Student) {
	ensureID(&s.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = *s
}

func (m *Memory) PutClass(c *models.Class) {
	ensureID(&c.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = *c
}

func (m *Memory) PutSubject(s *models.Subject) {
	ensureID(&s.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.ID] = *s
}

func (m *Memory) AssignSubject(classID, subjectID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.classSubject[classID] {
		if id == subjectID {
			return
		}
	}
	m.classSubject[classID] = append(m.classSubject[classID], subjectID)
}

func (m *Memory) PutExam(e *models.Exam) {
	ensureID(&e.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exams[e.ID] = *e
}

func (m *Memory) Student(_ context.Context, id uuid.UUID) (*models.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) StudentsByClass(_ context.Context, classID uuid.UUID) ([]models.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Student
	for _, s := range m.students {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmissionNo < out[j].AdmissionNo })
	return out, nil
}

func (m *Memory) Class(_ context.Context, id uuid.UUID) (*models.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) Subject(_ context.Context, id uuid.UUID) (*models.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) Subjects(_ context.Context) ([]models.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) ClassSubjectIDs(_ context.Context, classID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uuid.UUID(nil), m.classSubject[classID]...), nil
}

func (m *Memory) Combination(_ context.Context, id uuid.UUID) (*models.SubjectCombination, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.combinations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) CombinationByCode(_ context.Context, code string) (*models.SubjectCombination, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.combinations {
		if strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Exam(_ context.Context, id uuid.UUID) (*models.Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *Memory) Results(ctx context.Context, model models.ResultModel, examID uuid.UUID, studentIDs []uuid.UUID) ([]models.Result, error) {
	if _, err := tableFor(model); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[uuid.UUID]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Result
	for _, r := range m.results[model] {
		if r.ExamID == examID && wanted[r.StudentID] {
			out = append(out, r)
		}
	}
	sortResults(out)
	return out, nil
}

func (m *Memory) AllResults(_ context.Context, model models.ResultModel) ([]models.Result, error) {
	if _, err := tableFor(model); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Result, 0, len(m.results[model]))
	for _, r := range m.results[model] {
		out = append(out, r)
	}
	sortResults(out)
	return out, nil
}

func sortResults(rs []models.Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].StudentID != rs[j].StudentID {
			return rs[i].StudentID.String() < rs[j].StudentID.String()
		}
		return rs[i].SubjectID.String() < rs[j].SubjectID.String()
	})
}

func (m *Memory) History(_ context.Context, f HistoryFilter) ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.HistoryEntry
	for i := range m.history {
		if f.Matches(&m.history[i]) {
			out = append(out, m.history[i])
		}
	}
	// m.history is in insertion order, which breaks timestamp ties.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ResultVersion < out[j].ResultVersion
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) HistoryEntry(_ context.Context, id uuid.UUID) (*models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.history {
		if m.history[i].ID == id {
			h := m.history[i]
			return &h, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GradingPolicies(_ context.Context) ([]models.GradingPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.GradingPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Curriculum < out[j].Curriculum })
	return out, nil
}

func (m *Memory) SaveGradingPolicy(_ context.Context, p *models.GradingPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.policies[p.Curriculum]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		ensureID(&p.ID)
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.policies[p.Curriculum] = *p
	return nil
}

func (m *Memory) SaveCombination(_ context.Context, c *models.SubjectCombination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.combinations {
		if id != c.ID && strings.EqualFold(existing.Code, c.Code) {
			return fmt.Errorf("%w: combination code %s already exists", ErrConflict, c.Code)
		}
	}
	ensureID(&c.ID)
	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.combinations[c.ID] = *c
	return nil
}

func (m *Memory) SetStudentCombination(_ context.Context, studentID uuid.UUID, combinationID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return ErrNotFound
	}
	s.CombinationID = combinationID
	m.students[studentID] = s
	return nil
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{m: m, staged: make(map[models.ResultModel]map[uuid.UUID]*models.Result)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages result writes per id; a nil entry is a staged delete.
type memTx struct {
	m        *Memory
	staged   map[models.ResultModel]map[uuid.UUID]*models.Result
	appended []models.HistoryEntry
}

func (t *memTx) view(model models.ResultModel) map[uuid.UUID]*models.Result {
	if t.staged[model] == nil {
		t.staged[model] = make(map[uuid.UUID]*models.Result)
	}
	return t.staged[model]
}

// current returns the transaction's view of one result id.
func (t *memTx) current(model models.ResultModel, id uuid.UUID) (models.Result, bool) {
	if r, ok := t.view(model)[id]; ok {
		if r == nil {
			return models.Result{}, false
		}
		return *r, true
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	r, ok := t.m.results[model][id]
	return r, ok
}

func (t *memTx) ResultByKey(model models.ResultModel, key models.ResultKey) (*models.Result, error) {
	if _, err := tableFor(model); err != nil {
		return nil, err
	}
	staged := t.view(model)
	for id, r := range staged {
		if r != nil && r.Key() == key {
			out := *staged[id]
			return &out, nil
		}
	}

	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	for id, r := range t.m.results[model] {
		if r.Key() != key {
			continue
		}
		if _, overridden := staged[id]; overridden {
			continue
		}
		return &r, nil
	}
	return nil, ErrNotFound
}

func (t *memTx) ResultByID(model models.ResultModel, id uuid.UUID) (*models.Result, error) {
	if _, err := tableFor(model); err != nil {
		return nil, err
	}
	r, ok := t.current(model, id)
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) InsertResult(model models.ResultModel, r *models.Result) error {
	if _, err := tableFor(model); err != nil {
		return err
	}
	if _, err := t.ResultByKey(model, r.Key()); err == nil {
		return fmt.Errorf("%w: result already exists for student %s subject %s exam %s", ErrConflict, r.StudentID, r.SubjectID, r.ExamID)
	}
	ensureID(&r.ID)
	if _, exists := t.current(model, r.ID); exists {
		return fmt.Errorf("%w: result id %s already exists", ErrConflict, r.ID)
	}
	now := t.m.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	row := *r
	t.view(model)[r.ID] = &row
	return nil
}

func (t *memTx) UpdateResult(model models.ResultModel, r *models.Result, expectedVersion int) error {
	if _, err := tableFor(model); err != nil {
		return err
	}
	existing, ok := t.current(model, r.ID)
	if !ok || existing.Version != expectedVersion {
		return fmt.Errorf("%w: result %s is no longer at version %d", ErrConflict, r.ID, expectedVersion)
	}
	row := *r
	row.CreatedAt = existing.CreatedAt
	t.view(model)[r.ID] = &row
	return nil
}

func (t *memTx) DeleteResult(model models.ResultModel, id uuid.UUID, expectedVersion int) error {
	if _, err := tableFor(model); err != nil {
		return err
	}
	existing, ok := t.current(model, id)
	if !ok || existing.Version != expectedVersion {
		return fmt.Errorf("%w: result %s is no longer at version %d", ErrConflict, id, expectedVersion)
	}
	t.view(model)[id] = nil
	return nil
}

func (t *memTx) LatestHistory(model models.ResultModel, resultID uuid.UUID) (*models.HistoryEntry, error) {
	var latest *models.HistoryEntry
	consider := func(h *models.HistoryEntry) {
		if h.ResultModel == model && h.ResultID == resultID && (latest == nil || h.ResultVersion > latest.ResultVersion) {
			c := *h
			latest = &c
		}
	}
	for i := range t.appended {
		consider(&t.appended[i])
	}
	t.m.mu.RLock()
	for i := range t.m.history {
		consider(&t.m.history[i])
	}
	t.m.mu.RUnlock()
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (t *memTx) AppendHistory(h *models.HistoryEntry) error {
	ensureID(&h.ID)
	if h.Timestamp.IsZero() {
		h.Timestamp = t.m.now()
	}
	t.appended = append(t.appended, *h)
	return nil
}

func (t *memTx) commit() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for model, rows := range t.staged {
		for id, r := range rows {
			if r == nil {
				delete(t.m.results[model], id)
				continue
			}
			t.m.results[model][id] = *r
		}
	}
	t.m.history = append(t.m.history, t.appended...)
}
