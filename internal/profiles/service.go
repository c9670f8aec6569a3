// Package profiles stores community members and the vouching workflow.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence the Service needs; *Repo implements it.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	FindByEmail(ctx context.Context, email string) (*Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, np NewProfile) (*Profile, error)
	AutoVouch(ctx context.Context, id uuid.UUID, reason string, rules Rules) error
	Vouch(ctx context.Context, voucher *Profile, voucheeUsername, description string, rules Rules) (*Profile, error)
}

// Options configure a Service.
type Options struct {
	Rules             Rules
	AutoVouchDomains  []string
	AutoVouchReason   string
	UsernameMaxLength int
}

type Service struct {
	logger *zap.Logger
	store  Store
	opts   Options
}

func NewService(logger *zap.Logger, store Store, opts Options) *Service {
	if opts.UsernameMaxLength <= 0 {
		opts.UsernameMaxLength = 30
	}
	return &Service{logger: logger, store: store, opts: opts}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.store.FindByID(ctx, id)
}

// FindOrCreate returns the profile registered with email, creating it on
// first login. Employees (auto-vouch domains) are created vouched and staff.
func (s *Service) FindOrCreate(ctx context.Context, email, fullName string) (*Profile, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, false, fmt.Errorf("empty email")
	}
	p, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	employee := s.isAutoVouchEmail(email)
	for attempt := 0; attempt < 3; attempt++ {
		username, err := CalculateUsername(ctx, email, s.opts.UsernameMaxLength, s.store.UsernameExists)
		if err != nil {
			return nil, false, fmt.Errorf("calculate username: %w", err)
		}
		p, err = s.store.Create(ctx, NewProfile{
			Username: username,
			Email:    email,
			FullName: fullName,
			IsStaff:  employee,
		})
		if errors.Is(err, ErrUsernameTaken) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		break
	}
	if p == nil {
		return nil, false, ErrUsernameTaken
	}

	if employee {
		if err := s.store.AutoVouch(ctx, p.ID, s.opts.AutoVouchReason, s.opts.Rules); err != nil {
			return nil, false, fmt.Errorf("autovouch: %w", err)
		}
		if p, err = s.store.FindByID(ctx, p.ID); err != nil {
			return nil, false, err
		}
	}
	s.logger.Info("profile created",
		zap.String("username", p.Username),
		zap.Bool("autovouched", employee),
	)
	return p, true, nil
}

// Vouch records that voucher vouches for the profile named voucheeUsername.
func (s *Service) Vouch(ctx context.Context, voucher *Profile, voucheeUsername, description string) (*Profile, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrDescriptionRequired
	}
	return s.store.Vouch(ctx, voucher, voucheeUsername, description, s.opts.Rules)
}

func (s *Service) isAutoVouchEmail(email string) bool {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return false
	}
	return slices.Contains(s.opts.AutoVouchDomains, strings.ToLower(email[i+1:]))
}

// CheckVouch applies the vouching rules. already reports whether voucher has
// vouched for vouchee before.
func CheckVouch(voucher, vouchee *Profile, already bool, rules Rules) error {
	if voucher.ID == vouchee.ID {
		return ErrSelfVouch
	}
	if !voucher.IsStaff && (!voucher.IsVouched || voucher.VouchesReceived < rules.CanVouchThreshold) {
		return ErrCannotVouch
	}
	if already {
		return ErrAlreadyVouched
	}
	if rules.CountLimit > 0 && vouchee.VouchesReceived >= rules.CountLimit {
		return ErrVouchLimit
	}
	return nil
}
