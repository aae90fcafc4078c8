package billing

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Service is the billing service: pre-call budget gate, atomic post-call
// charging, and mode degradation on repeated ledger-write failures (spec
// §4.3). One Service instance is shared across workers.
type Service struct {
	client *ent.Client
	cfg    *config.BillingConfig
	prices PriceTable
	limits OrgRateLimiter

	mu               sync.Mutex
	mode             Mode
	consecutiveFails int
	readOnlySince    time.Time
}

// NewService constructs a Service in normal mode.
func NewService(client *ent.Client, cfg *config.BillingConfig, limits OrgRateLimiter) *Service {
	return &Service{
		client: client,
		cfg:    cfg,
		prices: NewPriceTable(cfg.PriceTable),
		limits: limits,
		mode:   ModeNormal,
	}
}

// NewPriceTable converts the YAML-loaded float price table into decimal
// rates used for money arithmetic.
func NewPriceTable(cfg map[string]config.ModelPrice) PriceTable {
	table := make(PriceTable, len(cfg))
	for model, p := range cfg {
		table[model] = ModelPrice{
			InputPerToken:  decimal.NewFromFloat(p.InputPerToken),
			OutputPerToken: decimal.NewFromFloat(p.OutputPerToken),
		}
	}
	return table
}

// Mode returns the service's current operating mode.
func (s *Service) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetDisabled toggles the operator-imposed total bypass (spec §4.3
// "disabled is an operator-imposed total bypass").
func (s *Service) SetDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if disabled {
		s.mode = ModeDisabled
	} else if s.mode == ModeDisabled {
		s.mode = ModeNormal
	}
}

// recordFailure bumps the consecutive-failure counter and transitions to
// read_only once failure_threshold is reached (spec §4.3 step 4).
func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFails++
	if s.mode == ModeNormal && s.consecutiveFails >= s.cfg.FailureThreshold {
		s.mode = ModeReadOnly
		s.readOnlySince = time.Now()
		log.Warn().
			Int("consecutive_fails", s.consecutiveFails).
			Str("mode", string(ModeReadOnly)).
			Msg("billing ledger entering read_only mode")
	}
}

// recordSuccess clears the failure counter and, if the service has been
// quiet in read_only for recovery_interval, attempts normal mode again
// on this success (spec §4.3 step 4).
func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFails = 0
	if s.mode == ModeReadOnly && time.Since(s.readOnlySince) >= s.cfg.RecoveryInterval.Dur() {
		s.mode = ModeNormal
		log.Info().Str("mode", string(ModeNormal)).Msg("billing ledger recovered to normal mode")
	}
}

// isReadOnly reports whether charges should be silently skipped rather
// than recorded (spec §4.3 "read_only silently allows operations to
// proceed without recording charges").
func (s *Service) isReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeReadOnly
}

// isDisabled reports whether the service is under an operator bypass.
func (s *Service) isDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeDisabled
}

// HasCredit reports whether orgID has a strictly positive available
// balance. Used as the admission check when a run is created (spec §6
// "402 on insufficient credits") — coarser than PreCallCheck's
// per-model budget estimate, which runs later against each individual
// LLM call once a model is actually chosen.
func (s *Service) HasCredit(ctx context.Context, orgID string) (bool, error) {
	if s.isDisabled() || s.isReadOnly() {
		return true, nil
	}
	available, err := availableBalance(ctx, s.client, orgID)
	if err != nil {
		s.recordFailure()
		return false, err
	}
	s.recordSuccess()
	return available.GreaterThan(decimal.Zero), nil
}

// availableBalance reads the org's current available balance, treating
// a missing row as zero (an org with no balance row has never purchased
// credit).
func availableBalance(ctx context.Context, client *ent.Client, orgID string) (decimal.Decimal, error) {
	bal, err := getOrCreateBalance(ctx, client, orgID)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(bal.Available)
}
