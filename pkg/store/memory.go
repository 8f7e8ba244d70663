package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/models"
)

var _ Storage = (*MemoryStore)(nil)

type memoryState struct {
	plans            map[uuid.UUID]models.Plan
	drafts           map[uuid.UUID]models.Draft
	transactions     []models.Transaction
	idempotencyKeys  map[string]struct{}
	accounts         map[uuid.UUID]models.Account
	companies        map[uuid.UUID]models.Company
	members          map[uuid.UUID]models.Member
	socialAccounting *models.SocialAccounting
	offers           map[uuid.UUID]models.Offer
	cooperations     map[uuid.UUID]models.Cooperation
	payoutFactors    []models.PayoutFactor
}

func newMemoryState() memoryState {
	return memoryState{
		plans:           make(map[uuid.UUID]models.Plan),
		drafts:          make(map[uuid.UUID]models.Draft),
		idempotencyKeys: make(map[string]struct{}),
		accounts:        make(map[uuid.UUID]models.Account),
		companies:       make(map[uuid.UUID]models.Company),
		members:         make(map[uuid.UUID]models.Member),
		offers:          make(map[uuid.UUID]models.Offer),
		cooperations:    make(map[uuid.UUID]models.Cooperation),
	}
}

func (st memoryState) clone() memoryState {
	c := newMemoryState()
	for k, v := range st.plans {
		c.plans[k] = v
	}
	for k, v := range st.drafts {
		c.drafts[k] = v
	}
	c.transactions = append([]models.Transaction(nil), st.transactions...)
	for k := range st.idempotencyKeys {
		c.idempotencyKeys[k] = struct{}{}
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.companies {
		c.companies[k] = v
	}
	for k, v := range st.members {
		c.members[k] = v
	}
	if st.socialAccounting != nil {
		sa := *st.socialAccounting
		c.socialAccounting = &sa
	}
	for k, v := range st.offers {
		c.offers[k] = v
	}
	for k, v := range st.cooperations {
		c.cooperations[k] = v
	}
	c.payoutFactors = append([]models.PayoutFactor(nil), st.payoutFactors...)
	return c
}

// MemoryStore keeps all state in process. Units of work are serialized and roll
// back to a snapshot on error or panic. Writes made outside a unit of work wait
// for the running unit, so a rollback never discards them. inTx marks the view
// handed to a unit of work, which already holds txMu.
type MemoryStore struct {
	mu    *sync.RWMutex
	txMu  *sync.Mutex
	state *memoryState
	inTx  bool
}

func NewMemoryStore() *MemoryStore {
	state := newMemoryState()
	return &MemoryStore{mu: &sync.RWMutex{}, txMu: &sync.Mutex{}, state: &state}
}

// lockWrite takes the write locks for one mutation and returns their release.
func (s *MemoryStore) lockWrite() func() {
	if !s.inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !s.inTx {
			s.txMu.Unlock()
		}
	}
}

// WithinTransaction serializes fn against other units of work and against
// writes outside a unit. Nested units join the outer one.
func (s *MemoryStore) WithinTransaction(ctx context.Context, fn func(Storage) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	rollback := func() {
		s.mu.Lock()
		*s.state = snapshot
		s.mu.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()

	tx := &MemoryStore{mu: s.mu, txMu: s.txMu, state: s.state, inTx: true}
	if err := fn(tx); err != nil {
		rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Plans

func (s *MemoryStore) ApprovePlan(ctx context.Context, draft models.Draft, ts time.Time, reason string) (*models.Plan, error) {
	return s.planFromDraft(draft, func(p *models.Plan) { p.Approve(ts, reason) })
}

func (s *MemoryStore) RejectPlan(ctx context.Context, draft models.Draft, ts time.Time, reason string) (*models.Plan, error) {
	return s.planFromDraft(draft, func(p *models.Plan) { p.Reject(ts, reason) })
}

func (s *MemoryStore) planFromDraft(draft models.Draft, decide func(*models.Plan)) (*models.Plan, error) {
	defer s.lockWrite()()

	if _, ok := s.state.drafts[draft.ID]; !ok {
		return nil, fmt.Errorf("draft %s: %w", draft.ID, ErrNotFound)
	}
	if _, ok := s.state.plans[draft.ID]; ok {
		return nil, fmt.Errorf("plan %s already exists", draft.ID)
	}
	plan := models.NewPlanFromDraft(draft)
	decide(plan)
	s.state.plans[plan.ID] = *plan
	delete(s.state.drafts, draft.ID)
	return plan, nil
}

func (s *MemoryStore) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

// LockPlan reads the plan; units of work are already serialized by txMu.
func (s *MemoryStore) LockPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return s.GetPlan(ctx, id)
}

func (s *MemoryStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	defer s.lockWrite()()
	if _, ok := s.state.plans[id]; !ok {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	delete(s.state.plans, id)
	return nil
}

func (s *MemoryStore) filterPlans(keep func(*models.Plan) bool) []*models.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var plans []*models.Plan
	for _, p := range s.state.plans {
		p := p
		if keep(&p) {
			plans = append(plans, &p)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].CreationDate.Equal(plans[j].CreationDate) {
			return plans[i].ID.String() < plans[j].ID.String()
		}
		return plans[i].CreationDate.Before(plans[j].CreationDate)
	})
	return plans
}

func (s *MemoryStore) AllActivePlans(ctx context.Context) ([]*models.Plan, error) {
	return s.filterPlans(func(p *models.Plan) bool { return p.IsActive }), nil
}

func (s *MemoryStore) AllPlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error) {
	return s.filterPlans(func(p *models.Plan) bool { return p.IsRunning() }), nil
}

func (s *MemoryStore) AllProductivePlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error) {
	return s.filterPlans(func(p *models.Plan) bool { return p.IsRunning() && !p.IsPublicService }), nil
}

func (s *MemoryStore) AllPublicPlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error) {
	return s.filterPlans(func(p *models.Plan) bool { return p.IsRunning() && p.IsPublicService }), nil
}

func (s *MemoryStore) PlansByCooperation(ctx context.Context, cooperationID uuid.UUID) ([]*models.Plan, error) {
	return s.filterPlans(func(p *models.Plan) bool {
		return p.Cooperation != nil && *p.Cooperation == cooperationID
	}), nil
}

// updatePlan applies change to the stored plan and mirrors it onto the caller's copy.
func (s *MemoryStore) updatePlan(plan *models.Plan, change func(*models.Plan)) error {
	defer s.lockWrite()()
	stored, ok := s.state.plans[plan.ID]
	if !ok {
		return fmt.Errorf("plan %s: %w", plan.ID, ErrNotFound)
	}
	change(&stored)
	s.state.plans[plan.ID] = stored
	*plan = stored
	return nil
}

func (s *MemoryStore) ActivatePlan(ctx context.Context, plan *models.Plan, ts time.Time) error {
	return s.updatePlan(plan, func(p *models.Plan) { p.Activate(ts) })
}

func (s *MemoryStore) SetPlanAsExpired(ctx context.Context, plan *models.Plan) error {
	return s.updatePlan(plan, func(p *models.Plan) { p.Expire() })
}

func (s *MemoryStore) SetPlanAsRenewed(ctx context.Context, plan *models.Plan) error {
	return s.updatePlan(plan, func(p *models.Plan) { p.Renewed = true })
}

func (s *MemoryStore) SetExpirationDate(ctx context.Context, plan *models.Plan, date time.Time) error {
	return s.updatePlan(plan, func(p *models.Plan) { p.ExpirationDate = &date })
}

func (s *MemoryStore) SetExpirationRelative(ctx context.Context, plan *models.Plan, days int) error {
	return s.updatePlan(plan, func(p *models.Plan) { p.ExpirationRelative = &days })
}

func (s *MemoryStore) SetLastCertificatePayout(ctx context.Context, plan *models.Plan, ts time.Time) error {
	return s.updatePlan(plan, func(p *models.Plan) { p.LastCertificatePayout = &ts })
}

func (s *MemoryStore) SetCooperation(ctx context.Context, plan *models.Plan, cooperationID *uuid.UUID) error {
	return s.updatePlan(plan, func(p *models.Plan) {
		p.Cooperation = cloneID(cooperationID)
		if cooperationID != nil {
			p.RequestedCooperation = nil
		}
	})
}

func (s *MemoryStore) SetRequestedCooperation(ctx context.Context, plan *models.Plan, cooperationID *uuid.UUID) error {
	return s.updatePlan(plan, func(p *models.Plan) { p.RequestedCooperation = cloneID(cooperationID) })
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// Drafts

func (s *MemoryStore) CreateDraft(ctx context.Context, draft *models.Draft) error {
	defer s.lockWrite()()
	if _, ok := s.state.drafts[draft.ID]; ok {
		return fmt.Errorf("draft %s already exists", draft.ID)
	}
	s.state.drafts[draft.ID] = *draft
	return nil
}

func (s *MemoryStore) GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.drafts[id]
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return &d, nil
}

func (s *MemoryStore) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	defer s.lockWrite()()
	if _, ok := s.state.drafts[id]; !ok {
		return fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	delete(s.state.drafts, id)
	return nil
}

// Transactions

func (s *MemoryStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	defer s.lockWrite()()
	if tx.IdempotencyKey != "" {
		if _, ok := s.state.idempotencyKeys[tx.IdempotencyKey]; ok {
			return fmt.Errorf("idempotency key %s: %w", tx.IdempotencyKey, ErrDuplicateTransaction)
		}
		s.state.idempotencyKeys[tx.IdempotencyKey] = struct{}{}
	}
	s.state.transactions = append(s.state.transactions, *tx)
	return nil
}

func (s *MemoryStore) filterTransactions(keep func(*models.Transaction) bool) []*models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var txs []*models.Transaction
	for _, tx := range s.state.transactions {
		tx := tx
		if keep(&tx) {
			txs = append(txs, &tx)
		}
	}
	return txs
}

func (s *MemoryStore) AllTransactionsSentByAccount(ctx context.Context, account uuid.UUID) ([]*models.Transaction, error) {
	return s.filterTransactions(func(tx *models.Transaction) bool { return tx.SendingAccount == account }), nil
}

func (s *MemoryStore) AllTransactionsReceivedByAccount(ctx context.Context, account uuid.UUID) ([]*models.Transaction, error) {
	return s.filterTransactions(func(tx *models.Transaction) bool { return tx.ReceivingAccount == account }), nil
}

func (s *MemoryStore) DivergentTransactions(ctx context.Context) ([]*models.Transaction, error) {
	return s.filterTransactions(func(tx *models.Transaction) bool { return tx.Diverges() }), nil
}

// Accounts

func (s *MemoryStore) newAccount(t models.AccountType, owner models.AccountOwner) uuid.UUID {
	acc := models.Account{ID: uuid.New(), Type: t, Owner: owner}
	s.state.accounts[acc.ID] = acc
	return acc.ID
}

func (s *MemoryStore) CreateCompany(ctx context.Context, name, email string, registered time.Time) (*models.Company, error) {
	defer s.lockWrite()()
	id := uuid.New()
	owner := models.CompanyOwner{ID: id}
	c := models.Company{
		ID:               id,
		Name:             name,
		Email:            email,
		MeansAccount:     s.newAccount(models.AccountTypeMeans, owner),
		ResourceAccount:  s.newAccount(models.AccountTypeResources, owner),
		LabourAccount:    s.newAccount(models.AccountTypeLabour, owner),
		ProductAccount:   s.newAccount(models.AccountTypeProduct, owner),
		RegistrationDate: registered,
	}
	s.state.companies[id] = c
	return &c, nil
}

func (s *MemoryStore) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.companies[id]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) CreateMember(ctx context.Context, name, email string, registered time.Time) (*models.Member, error) {
	defer s.lockWrite()()
	id := uuid.New()
	m := models.Member{
		ID:               id,
		Name:             name,
		Email:            email,
		Account:          s.newAccount(models.AccountTypeMember, models.MemberOwner{ID: id}),
		RegistrationDate: registered,
	}
	s.state.members[id] = m
	return &m, nil
}

func (s *MemoryStore) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.members[id]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	return &m, nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryStore) CreateSocialAccounting(ctx context.Context) (*models.SocialAccounting, error) {
	defer s.lockWrite()()
	if s.state.socialAccounting != nil {
		return nil, fmt.Errorf("social accounting already exists")
	}
	id := uuid.New()
	sa := models.SocialAccounting{
		ID:      id,
		Account: s.newAccount(models.AccountTypeSocialAccounting, models.SocialAccountingOwner{ID: id}),
	}
	s.state.socialAccounting = &sa
	out := sa
	return &out, nil
}

func (s *MemoryStore) GetSocialAccounting(ctx context.Context) (*models.SocialAccounting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.socialAccounting == nil {
		return nil, fmt.Errorf("social accounting: %w", ErrNotFound)
	}
	out := *s.state.socialAccounting
	return &out, nil
}

// Offers

func (s *MemoryStore) CreateOffer(ctx context.Context, offer *models.Offer) error {
	defer s.lockWrite()()
	s.state.offers[offer.ID] = *offer
	return nil
}

func (s *MemoryStore) GetAllOffersBelongingTo(ctx context.Context, planID uuid.UUID) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var offers []*models.Offer
	for _, o := range s.state.offers {
		o := o
		if o.PlanID == planID {
			offers = append(offers, &o)
		}
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].CreatedAt.Before(offers[j].CreatedAt) })
	return offers, nil
}

func (s *MemoryStore) DeleteOffer(ctx context.Context, id uuid.UUID) error {
	defer s.lockWrite()()
	if _, ok := s.state.offers[id]; !ok {
		return fmt.Errorf("offer %s: %w", id, ErrNotFound)
	}
	delete(s.state.offers, id)
	return nil
}

// Cooperations

func (s *MemoryStore) CreateCooperation(ctx context.Context, coop *models.Cooperation) error {
	defer s.lockWrite()()
	s.state.cooperations[coop.ID] = *coop
	return nil
}

func (s *MemoryStore) GetCooperation(ctx context.Context, id uuid.UUID) (*models.Cooperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cooperations[id]
	if !ok {
		return nil, fmt.Errorf("cooperation %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

// Payout factors

func (s *MemoryStore) CreatePayoutFactor(ctx context.Context, factor *models.PayoutFactor) error {
	defer s.lockWrite()()
	s.state.payoutFactors = append(s.state.payoutFactors, *factor)
	return nil
}

func (s *MemoryStore) LatestPayoutFactor(ctx context.Context) (*models.PayoutFactor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.state.payoutFactors) == 0 {
		return nil, fmt.Errorf("payout factor: %w", ErrNotFound)
	}
	latest := s.state.payoutFactors[0]
	for _, f := range s.state.payoutFactors[1:] {
		if !f.ComputedAt.Before(latest.ComputedAt) {
			latest = f
		}
	}
	return &latest, nil
}
