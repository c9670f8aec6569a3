package profiles

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type memStore struct {
	byID       map[uuid.UUID]*Profile
	autoVouch  []uuid.UUID
	failCreate int
}

func newMemStore() *memStore {
	return &memStore{byID: map[uuid.UUID]*Profile{}}
}

func (m *memStore) FindByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*Profile, error) {
	for _, p := range m.byID {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) findByUsername(_ context.Context, username string) (*Profile, error) {
	for _, p := range m.byID {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := m.findByUsername(ctx, username)
	return err == nil, nil
}

func (m *memStore) Create(_ context.Context, np NewProfile) (*Profile, error) {
	if m.failCreate > 0 {
		m.failCreate--
		return nil, ErrUsernameTaken
	}
	p := &Profile{ID: uuid.New(), Username: np.Username, Email: np.Email, FullName: np.FullName, IsStaff: np.IsStaff}
	m.byID[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memStore) AutoVouch(_ context.Context, id uuid.UUID, _ string, _ Rules) error {
	m.autoVouch = append(m.autoVouch, id)
	p := m.byID[id]
	p.VouchesReceived++
	p.IsVouched = true
	return nil
}

func (m *memStore) Vouch(ctx context.Context, voucher *Profile, voucheeUsername, _ string, rules Rules) (*Profile, error) {
	vouchee, err := m.findByUsername(ctx, voucheeUsername)
	if err != nil {
		return nil, err
	}
	if err := CheckVouch(voucher, vouchee, false, rules); err != nil {
		return nil, err
	}
	p := m.byID[vouchee.ID]
	p.VouchesReceived++
	p.IsVouched = true
	p.CanVouch = p.VouchesReceived >= rules.CanVouchThreshold
	cp := *p
	return &cp, nil
}

func newTestService(store Store) *Service {
	return NewService(zap.NewNop(), store, Options{
		Rules:            Rules{CountLimit: 6, CanVouchThreshold: 3},
		AutoVouchDomains: []string{"mozilla.com", "mozilla.org"},
		AutoVouchReason:  "An automatic vouch for being a Mozilla employee.",
	})
}

func TestFindOrCreate_NewCommunityMember(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	p, created, err := svc.FindOrCreate(context.Background(), "jane.doe@example.com", "Jane Doe")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if p.Username != "jane.doe" {
		t.Errorf("username = %q", p.Username)
	}
	if p.IsVouched || p.IsStaff {
		t.Errorf("community member should not be vouched or staff: %+v", p)
	}
	if len(store.autoVouch) != 0 {
		t.Error("unexpected autovouch")
	}

	again, created, err := svc.FindOrCreate(context.Background(), "JANE.DOE@example.com", "")
	if err != nil || created || again.ID != p.ID {
		t.Fatalf("second login: %+v created=%v err=%v", again, created, err)
	}
}

func TestFindOrCreate_EmployeeIsAutoVouched(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	p, _, err := svc.FindOrCreate(context.Background(), "dino@Mozilla.com", "Dino")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if !p.IsStaff || !p.IsVouched {
		t.Errorf("employee should be staff and vouched: %+v", p)
	}
	if len(store.autoVouch) != 1 || store.autoVouch[0] != p.ID {
		t.Errorf("autovouch calls = %v", store.autoVouch)
	}
}

func TestFindOrCreate_RetriesOnUsernameRace(t *testing.T) {
	store := newMemStore()
	store.failCreate = 2
	svc := newTestService(store)

	if _, _, err := svc.FindOrCreate(context.Background(), "racer@example.com", ""); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}

	store.failCreate = 3
	if _, _, err := svc.FindOrCreate(context.Background(), "loser@example.com", ""); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestFindOrCreate_EmptyEmail(t *testing.T) {
	svc := newTestService(newMemStore())
	if _, _, err := svc.FindOrCreate(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestServiceVouch_RequiresDescription(t *testing.T) {
	svc := newTestService(newMemStore())
	if _, err := svc.Vouch(context.Background(), &Profile{ID: uuid.New(), IsStaff: true}, "x", " "); !errors.Is(err, ErrDescriptionRequired) {
		t.Fatalf("expected ErrDescriptionRequired, got %v", err)
	}
}

func TestServiceVouch(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	staff, _, _ := svc.FindOrCreate(ctx, "boss@mozilla.org", "")
	member, _, _ := svc.FindOrCreate(ctx, "member@example.com", "")

	got, err := svc.Vouch(ctx, staff, member.Username, "Contributes to l10n")
	if err != nil {
		t.Fatalf("Vouch: %v", err)
	}
	if !got.IsVouched || got.VouchesReceived != 1 || got.CanVouch {
		t.Errorf("after one vouch: %+v", got)
	}

	if _, err := svc.Vouch(ctx, got, staff.Username, "thanks"); !errors.Is(err, ErrCannotVouch) {
		t.Errorf("freshly vouched member should not vouch yet, got %v", err)
	}
}

func TestCheckVouch(t *testing.T) {
	rules := Rules{CountLimit: 6, CanVouchThreshold: 3}
	voucher := &Profile{ID: uuid.New(), IsVouched: true, VouchesReceived: 3}
	vouchee := &Profile{ID: uuid.New()}

	tests := []struct {
		name    string
		voucher *Profile
		vouchee *Profile
		already bool
		want    error
	}{
		{"ok", voucher, vouchee, false, nil},
		{"self", voucher, voucher, false, ErrSelfVouch},
		{"unvouched voucher", &Profile{ID: uuid.New(), VouchesReceived: 5}, vouchee, false, ErrCannotVouch},
		{"below threshold", &Profile{ID: uuid.New(), IsVouched: true, VouchesReceived: 2}, vouchee, false, ErrCannotVouch},
		{"staff bypasses threshold", &Profile{ID: uuid.New(), IsStaff: true}, vouchee, false, nil},
		{"duplicate", voucher, vouchee, true, ErrAlreadyVouched},
		{"limit reached", voucher, &Profile{ID: uuid.New(), VouchesReceived: 6}, false, ErrVouchLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CheckVouch(tt.voucher, tt.vouchee, tt.already, rules); !errors.Is(err, tt.want) {
				t.Errorf("CheckVouch() = %v, want %v", err, tt.want)
			}
		})
	}
}
