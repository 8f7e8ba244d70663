package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Entry describes one transfer to append. AmountReceived defaults to Amount; set it
// only when the receiving side legitimately books a different figure.
type Entry struct {
	Date           time.Time
	From           uuid.UUID
	To             uuid.UUID
	Amount         decimal.Decimal
	AmountReceived decimal.NullDecimal
	Purpose        string
	IdempotencyKey string
}

// Ledger appends transfers to the transaction log and derives balances from it.
// Balances are never stored.
type Ledger struct {
	transactions store.TransactionRepository
	accounts     store.AccountRepository
	cache        *BalanceCache
	logger       *zap.Logger

	// touched collects accounts written through a unit-of-work ledger so their
	// cache entries can be dropped again once the unit commits or rolls back.
	mu      sync.Mutex
	touched []uuid.UUID
}

// New creates a Ledger over the given repositories.
func New(transactions store.TransactionRepository, accounts store.AccountRepository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		transactions: transactions,
		accounts:     accounts,
		cache:        NewBalanceCache(),
		logger:       logger,
	}
}

// With returns a ledger bound to s, typically the Storage of a unit of work. The
// balance cache is shared.
func (l *Ledger) With(s store.Storage) *Ledger {
	return &Ledger{
		transactions: s,
		accounts:     s,
		cache:        l.cache,
		logger:       l.logger,
	}
}

// InTransaction runs fn in one unit of work on s with a ledger bound to it. Cache
// entries of every account fn wrote to are dropped after the unit ends.
func (l *Ledger) InTransaction(ctx context.Context, s store.Storage, fn func(tx store.Storage, led *Ledger) error) error {
	var bound *Ledger
	defer func() {
		if bound != nil {
			bound.mu.Lock()
			l.cache.Invalidate(bound.touched...)
			bound.mu.Unlock()
		}
	}()
	return s.WithinTransaction(ctx, func(tx store.Storage) error {
		bound = l.With(tx)
		return fn(tx, bound)
	})
}

// Transfer appends one transaction. A reused idempotency key yields
// store.ErrDuplicateTransaction and leaves the log unchanged.
func (l *Ledger) Transfer(ctx context.Context, e Entry) (*models.Transaction, error) {
	if e.From == uuid.Nil || e.To == uuid.Nil {
		return nil, errors.New("transfer requires both accounts")
	}
	received := e.Amount
	if e.AmountReceived.Valid {
		received = e.AmountReceived.Decimal
	}

	tx := &models.Transaction{
		ID:               uuid.New(),
		Date:             e.Date,
		SendingAccount:   e.From,
		ReceivingAccount: e.To,
		AmountSent:       e.Amount,
		AmountReceived:   received,
		Purpose:          e.Purpose,
		IdempotencyKey:   e.IdempotencyKey,
	}
	if err := l.transactions.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	l.cache.Invalidate(tx.SendingAccount, tx.ReceivingAccount)
	l.mu.Lock()
	l.touched = append(l.touched, tx.SendingAccount, tx.ReceivingAccount)
	l.mu.Unlock()

	if tx.Diverges() {
		l.logger.Warn("divergent transaction recorded",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("amount_sent", tx.AmountSent.String()),
			zap.String("amount_received", tx.AmountReceived.String()),
			zap.String("purpose", tx.Purpose),
		)
	}
	return tx, nil
}

// Balance is received minus sent over the whole log, served from the cache when
// no append touched the account since it was last computed.
func (l *Ledger) Balance(ctx context.Context, account uuid.UUID) (decimal.Decimal, error) {
	cached, ok, gen := l.cache.lookup(account)
	if ok {
		return cached, nil
	}
	balance, err := l.Recompute(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	l.cache.store(account, balance, gen)
	return balance, nil
}

// Recompute derives the balance from the log without consulting the cache.
func (l *Ledger) Recompute(ctx context.Context, account uuid.UUID) (decimal.Decimal, error) {
	received, err := l.transactions.AllTransactionsReceivedByAccount(ctx, account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load received transactions: %w", err)
	}
	sent, err := l.transactions.AllTransactionsSentByAccount(ctx, account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load sent transactions: %w", err)
	}

	balance := decimal.Zero
	for _, tx := range received {
		balance = balance.Add(tx.AmountReceived)
	}
	for _, tx := range sent {
		balance = balance.Sub(tx.AmountSent)
	}
	return balance, nil
}

// DivergentTransactions lists transactions whose sent and received amounts differ.
func (l *Ledger) DivergentTransactions(ctx context.Context) ([]*models.Transaction, error) {
	return l.transactions.DivergentTransactions(ctx)
}

// StatementEntry is one line of an account statement, signed from the account's
// point of view.
type StatementEntry struct {
	TransactionID uuid.UUID        `json:"transaction_id"`
	Date          time.Time        `json:"date"`
	Counterparty  uuid.UUID        `json:"counterparty_account"`
	OwnerKind     models.OwnerKind `json:"counterparty_kind"`
	OwnerName     string           `json:"counterparty_name"`
	Purpose       string           `json:"purpose"`
	Amount        decimal.Decimal  `json:"amount"`
}

// Statement lists every transaction of an account in date order.
func (l *Ledger) Statement(ctx context.Context, account uuid.UUID) ([]StatementEntry, error) {
	received, err := l.transactions.AllTransactionsReceivedByAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to load received transactions: %w", err)
	}
	sent, err := l.transactions.AllTransactionsSentByAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent transactions: %w", err)
	}

	entries := make([]StatementEntry, 0, len(received)+len(sent))
	for _, tx := range received {
		e, err := l.statementEntry(ctx, tx, tx.SendingAccount, tx.AmountReceived)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	for _, tx := range sent {
		e, err := l.statementEntry(ctx, tx, tx.ReceivingAccount, tx.AmountSent.Neg())
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries, nil
}

func (l *Ledger) statementEntry(ctx context.Context, tx *models.Transaction, counterparty uuid.UUID, amount decimal.Decimal) (StatementEntry, error) {
	acc, err := l.accounts.GetAccount(ctx, counterparty)
	if err != nil {
		return StatementEntry{}, fmt.Errorf("failed to resolve counterparty account %s: %w", counterparty, err)
	}
	name, err := l.ownerName(ctx, acc.Owner)
	if err != nil {
		return StatementEntry{}, err
	}
	return StatementEntry{
		TransactionID: tx.ID,
		Date:          tx.Date,
		Counterparty:  counterparty,
		OwnerKind:     acc.Owner.Kind(),
		OwnerName:     name,
		Purpose:       tx.Purpose,
		Amount:        amount,
	}, nil
}

func (l *Ledger) ownerName(ctx context.Context, owner models.AccountOwner) (string, error) {
	switch o := owner.(type) {
	case models.MemberOwner:
		m, err := l.accounts.GetMember(ctx, o.ID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve member %s: %w", o.ID, err)
		}
		return m.Name, nil
	case models.CompanyOwner:
		c, err := l.accounts.GetCompany(ctx, o.ID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve company %s: %w", o.ID, err)
		}
		return c.Name, nil
	case models.SocialAccountingOwner:
		return "Social Accounting", nil
	default:
		panic(fmt.Sprintf("unhandled account owner %T", owner))
	}
}
