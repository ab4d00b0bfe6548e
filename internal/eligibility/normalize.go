package eligibility

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
	"gorm.io/datatypes"
)

var (
	ErrMalformedCombination = errors.New("malformed subject combination")
	ErrUnresolvedSubject    = errors.New("unresolved subject reference")
)

// Catalog resolves subject references by id, code, or exact name.
type Catalog struct {
	byID   map[uuid.UUID]*models.Subject
	byCode map[string]*models.Subject
	byName map[string]*models.Subject
}

func NewCatalog(subjects []models.Subject) *Catalog {
	c := &Catalog{
		byID:   make(map[uuid.UUID]*models.Subject, len(subjects)),
		byCode: make(map[string]*models.Subject, len(subjects)),
		byName: make(map[string]*models.Subject, len(subjects)),
	}
	for i := range subjects {
		s := &subjects[i]
		if !s.Curriculum.Accepts(models.CurriculumALevel) {
			continue
		}
		c.byID[s.ID] = s
		c.byCode[strings.ToUpper(strings.TrimSpace(s.Code))] = s
		c.byName[strings.ToLower(strings.TrimSpace(s.Name))] = s
	}
	return c
}

// subjectRef is one element of an upstream subject list: a bare id, code or
// name string, or an object naming the subject.
type subjectRef struct {
	raw         string
	ID          string `json:"id"`
	SubjectID   string `json:"subject_id"`
	Code        string `json:"code"`
	SubjectCode string `json:"subject_code"`
	Name        string `json:"name"`
	SubjectName string `json:"subject_name"`
	Role        string `json:"role"`
	IsPrincipal *bool  `json:"is_principal"`
}

func (r *subjectRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.raw)
	}
	type plain subjectRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: subject reference %s", ErrMalformedCombination, data)
	}
	*r = subjectRef(p)
	return nil
}

func (r subjectRef) String() string {
	for _, s := range []string{r.raw, r.ID, r.SubjectID, r.Code, r.SubjectCode, r.Name, r.SubjectName} {
		if s != "" {
			return s
		}
	}
	return "<empty>"
}

func (c *Catalog) resolve(r subjectRef) (*models.Subject, error) {
	if r.raw != "" {
		if id, err := uuid.Parse(r.raw); err == nil {
			if s := c.byID[id]; s != nil {
				return s, nil
			}
		}
		if s := c.byCode[strings.ToUpper(strings.TrimSpace(r.raw))]; s != nil {
			return s, nil
		}
		if s := c.byName[strings.ToLower(strings.TrimSpace(r.raw))]; s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedSubject, r.raw)
	}

	for _, v := range []string{r.ID, r.SubjectID} {
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("%w: bad id %q", ErrMalformedCombination, v)
		}
		if s := c.byID[id]; s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("%w: id %s", ErrUnresolvedSubject, id)
	}
	for _, v := range []string{r.Code, r.SubjectCode} {
		if v == "" {
			continue
		}
		if s := c.byCode[strings.ToUpper(strings.TrimSpace(v))]; s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("%w: code %q", ErrUnresolvedSubject, v)
	}
	for _, v := range []string{r.Name, r.SubjectName} {
		if v == "" {
			continue
		}
		if s := c.byName[strings.ToLower(strings.TrimSpace(v))]; s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("%w: name %q", ErrUnresolvedSubject, v)
	}
	return nil, fmt.Errorf("%w: empty subject reference", ErrMalformedCombination)
}

// combinationPayload covers the object shapes seen upstream.
type combinationPayload struct {
	Principal          []subjectRef `json:"principal"`
	Principals         []subjectRef `json:"principals"`
	PrincipalSubjects  []subjectRef `json:"principal_subjects"`
	Subsidiary         []subjectRef `json:"subsidiary"`
	Subsidiaries       []subjectRef `json:"subsidiaries"`
	SubsidiarySubjects []subjectRef `json:"subsidiary_subjects"`
	Subjects           []subjectRef `json:"subjects"`
}

// Normalize maps any accepted upstream shape onto the canonical combination
// id lists. References that do not resolve exactly are an error.
func Normalize(raw json.RawMessage, catalog *Catalog) (*models.SubjectCombination, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedCombination)
	}

	b := &builder{catalog: catalog, seen: make(map[uuid.UUID]Role)}

	switch raw[0] {
	case '[':
		var refs []subjectRef
		if err := json.Unmarshal(raw, &refs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCombination, err)
		}
		for _, r := range refs {
			s, err := catalog.resolve(r)
			if err != nil {
				return nil, err
			}
			if s.IsCompulsory {
				b.add(s, RoleSubsidiary)
			} else {
				b.add(s, RolePrincipal)
			}
		}

	case '{':
		var p combinationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCombination, err)
		}
		if err := b.addAll(RolePrincipal, p.Principal, p.Principals, p.PrincipalSubjects); err != nil {
			return nil, err
		}
		if err := b.addAll(RoleSubsidiary, p.Subsidiary, p.Subsidiaries, p.SubsidiarySubjects); err != nil {
			return nil, err
		}
		for _, r := range p.Subjects {
			role, err := roleOf(r)
			if err != nil {
				return nil, err
			}
			s, err := catalog.resolve(r)
			if err != nil {
				return nil, err
			}
			b.add(s, role)
		}

	default:
		return nil, fmt.Errorf("%w: expected array or object", ErrMalformedCombination)
	}

	if len(b.principal) == 0 && len(b.subsidiary) == 0 {
		return nil, fmt.Errorf("%w: no subjects", ErrMalformedCombination)
	}
	return &models.SubjectCombination{
		PrincipalSubjectIDs:  datatypes.JSONSlice[uuid.UUID](append([]uuid.UUID{}, b.principal...)),
		SubsidiarySubjectIDs: datatypes.JSONSlice[uuid.UUID](b.subsidiarySet()),
	}, nil
}

func roleOf(r subjectRef) (Role, error) {
	if r.IsPrincipal != nil {
		if *r.IsPrincipal {
			return RolePrincipal, nil
		}
		return RoleSubsidiary, nil
	}
	switch strings.ToLower(strings.TrimSpace(r.Role)) {
	case "principal", "main":
		return RolePrincipal, nil
	case "subsidiary", "compulsory", "sub":
		return RoleSubsidiary, nil
	}
	return "", fmt.Errorf("%w: subject %s has no role", ErrMalformedCombination, r)
}

type builder struct {
	catalog    *Catalog
	seen       map[uuid.UUID]Role
	principal  []uuid.UUID
	subsidiary []uuid.UUID
}

func (b *builder) addAll(role Role, lists ...[]subjectRef) error {
	for _, list := range lists {
		for _, r := range list {
			s, err := b.catalog.resolve(r)
			if err != nil {
				return err
			}
			b.add(s, role)
		}
	}
	return nil
}

// add keeps first-seen order. A subject listed as both ends up principal.
func (b *builder) add(s *models.Subject, role Role) {
	prev, ok := b.seen[s.ID]
	switch {
	case !ok:
		b.seen[s.ID] = role
		if role == RolePrincipal {
			b.principal = append(b.principal, s.ID)
		} else {
			b.subsidiary = append(b.subsidiary, s.ID)
		}
	case prev == RoleSubsidiary && role == RolePrincipal:
		b.seen[s.ID] = RolePrincipal
		b.principal = append(b.principal, s.ID)
	}
}

func (b *builder) subsidiarySet() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(b.subsidiary))
	for _, id := range b.subsidiary {
		if b.seen[id] == RoleSubsidiary {
			out = append(out, id)
		}
	}
	return out
}
