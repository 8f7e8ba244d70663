package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/shopspring/decimal"
)

var _ Storage = (*SQLStore)(nil)

type dialect struct {
	name       string
	driver     string
	schema     string
	numbered   bool   // $1, $2 placeholders instead of ?
	lockClause string // appended to LockPlan's SELECT
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite3", schema: sqliteSchema}
	postgresDialect = dialect{name: "postgres", driver: "pgx", schema: postgresSchema, numbered: true, lockClause: " FOR UPDATE"}
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Storage on database/sql. The same queries serve SQLite and
// Postgres; only placeholders, column types and row locking differ.
type SQLStore struct {
	db      *sql.DB
	q       queryer
	tx      *sql.Tx
	dialect dialect
}

func openSQLStore(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open %s database: %w", d.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not connect to %s database: %w", d.name, err)
	}

	s := &SQLStore{db: db, q: db, dialect: d}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(s.dialect.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// WithinTransaction runs fn inside one database transaction. Nested calls join the
// enclosing transaction.
func (s *SQLStore) WithinTransaction(ctx context.Context, fn func(Storage) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&SQLStore{db: s.db, q: tx, tx: tx, dialect: s.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection. Stores bound to a transaction do not own it.
func (s *SQLStore) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func checkAffected(result sql.Result, what string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Plans

const planColumns = `id, creation_date, planner, means_cost, resource_cost, labour_cost, product_name, description, unit,
	amount_produced, timeframe_days, is_public_service, approved, approval_date, approval_reason, rejection_date,
	is_active, activation_date, expired, renewed, expiration_date, expiration_relative, last_certificate_payout,
	cooperation, requested_cooperation`

func scanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	var approvalDate, rejectionDate, activationDate, expirationDate, lastPayout sql.NullTime
	var relative sql.NullInt64
	var coop, requested uuid.NullUUID
	err := row.Scan(&p.ID, &p.CreationDate, &p.Planner, &p.Costs.Means, &p.Costs.Resources, &p.Costs.Labour,
		&p.ProductName, &p.Description, &p.Unit, &p.AmountProduced, &p.TimeframeDays, &p.IsPublicService,
		&p.Approved, &approvalDate, &p.ApprovalReason, &rejectionDate, &p.IsActive, &activationDate,
		&p.Expired, &p.Renewed, &expirationDate, &relative, &lastPayout, &coop, &requested)
	if err != nil {
		return nil, err
	}
	p.ApprovalDate = timePtr(approvalDate)
	p.RejectionDate = timePtr(rejectionDate)
	p.ActivationDate = timePtr(activationDate)
	p.ExpirationDate = timePtr(expirationDate)
	p.LastCertificatePayout = timePtr(lastPayout)
	if relative.Valid {
		days := int(relative.Int64)
		p.ExpirationRelative = &days
	}
	p.Cooperation = uuidPtr(coop)
	p.RequestedCooperation = uuidPtr(requested)
	return &p, nil
}

func (s *SQLStore) ApprovePlan(ctx context.Context, draft models.Draft, ts time.Time, reason string) (*models.Plan, error) {
	return s.planFromDraft(ctx, draft, func(p *models.Plan) { p.Approve(ts, reason) })
}

func (s *SQLStore) RejectPlan(ctx context.Context, draft models.Draft, ts time.Time, reason string) (*models.Plan, error) {
	return s.planFromDraft(ctx, draft, func(p *models.Plan) { p.Reject(ts, reason) })
}

func (s *SQLStore) planFromDraft(ctx context.Context, draft models.Draft, decide func(*models.Plan)) (*models.Plan, error) {
	plan := models.NewPlanFromDraft(draft)
	decide(plan)

	err := s.WithinTransaction(ctx, func(tx Storage) error {
		st := tx.(*SQLStore)
		result, err := st.exec(ctx, `DELETE FROM drafts WHERE id = ?`, draft.ID)
		if err != nil {
			return fmt.Errorf("failed to delete draft: %w", err)
		}
		if err := checkAffected(result, "draft", draft.ID); err != nil {
			return err
		}
		_, err = st.exec(ctx, `INSERT INTO plans (`+planColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			plan.ID, plan.CreationDate, plan.Planner, plan.Costs.Means, plan.Costs.Resources, plan.Costs.Labour,
			plan.ProductName, plan.Description, plan.Unit, plan.AmountProduced, plan.TimeframeDays, plan.IsPublicService,
			plan.Approved, nullTime(plan.ApprovalDate), plan.ApprovalReason, nullTime(plan.RejectionDate),
			plan.IsActive, nullTime(plan.ActivationDate), plan.Expired, plan.Renewed, nullTime(plan.ExpirationDate),
			sql.NullInt64{}, nullTime(plan.LastCertificatePayout), nullUUID(plan.Cooperation), nullUUID(plan.RequestedCooperation),
		)
		if err != nil {
			return fmt.Errorf("failed to create plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *SQLStore) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return s.getPlan(ctx, id, "")
}

// LockPlan reads the plan with a row lock on Postgres. SQLite transactions are opened
// IMMEDIATE, so the whole database is already write-locked.
func (s *SQLStore) LockPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return s.getPlan(ctx, id, s.dialect.lockClause)
}

func (s *SQLStore) getPlan(ctx context.Context, id uuid.UUID, suffix string) (*models.Plan, error) {
	row := s.queryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`+suffix, id)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

func (s *SQLStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	result, err := s.exec(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return checkAffected(result, "plan", id)
}

func (s *SQLStore) queryPlans(ctx context.Context, where string, args ...any) ([]*models.Plan, error) {
	rows, err := s.query(ctx, `SELECT `+planColumns+` FROM plans WHERE `+where+` ORDER BY creation_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return plans, nil
}

func (s *SQLStore) AllActivePlans(ctx context.Context) ([]*models.Plan, error) {
	return s.queryPlans(ctx, `is_active = ?`, true)
}

func (s *SQLStore) AllPlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error) {
	return s.queryPlans(ctx, `approved = ? AND is_active = ? AND expired = ?`, true, true, false)
}

func (s *SQLStore) AllProductivePlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error) {
	return s.queryPlans(ctx, `approved = ? AND is_active = ? AND expired = ? AND is_public_service = ?`, true, true, false, false)
}

func (s *SQLStore) AllPublicPlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error) {
	return s.queryPlans(ctx, `approved = ? AND is_active = ? AND expired = ? AND is_public_service = ?`, true, true, false, true)
}

func (s *SQLStore) PlansByCooperation(ctx context.Context, cooperationID uuid.UUID) ([]*models.Plan, error) {
	return s.queryPlans(ctx, `cooperation = ?`, cooperationID)
}

// updatePlan applies change to a copy of plan, writes the listed columns and only
// then mirrors the change onto plan.
func (s *SQLStore) updatePlan(ctx context.Context, plan *models.Plan, change func(*models.Plan), set string, values func(*models.Plan) []any) error {
	updated := *plan
	change(&updated)
	args := append(values(&updated), updated.ID)
	result, err := s.exec(ctx, `UPDATE plans SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if err := checkAffected(result, "plan", plan.ID); err != nil {
		return err
	}
	*plan = updated
	return nil
}

func (s *SQLStore) ActivatePlan(ctx context.Context, plan *models.Plan, ts time.Time) error {
	return s.updatePlan(ctx, plan, func(p *models.Plan) { p.Activate(ts) },
		`is_active = ?, activation_date = ?`,
		func(p *models.Plan) []any { return []any{p.IsActive, nullTime(p.ActivationDate)} })
}

func (s *SQLStore) SetPlanAsExpired(ctx context.Context, plan *models.Plan) error {
	return s.updatePlan(ctx, plan, func(p *models.Plan) { p.Expire() },
		`expired = ?, is_active = ?, cooperation = ?, requested_cooperation = ?`,
		func(p *models.Plan) []any {
			return []any{p.Expired, p.IsActive, nullUUID(p.Cooperation), nullUUID(p.RequestedCooperation)}
		})
}

func (s *SQLStore) SetPlanAsRenewed(ctx context.Context, plan *models.Plan) error {
	return s.updatePlan(ctx, plan, func(p *models.Plan) { p.Renewed = true },
		`renewed = ?`, func(p *models.Plan) []any { return []any{p.Renewed} })
}

func (s *SQLStore) SetExpirationDate(ctx context.Context, plan *models.Plan, date time.Time) error {
	return s.updatePlan(ctx, plan, func(p *models.Plan) { p.ExpirationDate = &date },
		`expiration_date = ?`, func(p *models.Plan) []any { return []any{nullTime(p.ExpirationDate)} })
}

func (s *SQLStore) SetExpirationRelative(ctx context.Context, plan *models.Plan, days int) error {
	return s.updatePlan(ctx, plan, func(p *models.Plan) { p.ExpirationRelative = &days },
		`expiration_relative = ?`, func(p *models.Plan) []any { return []any{days} })
}

func (s *SQLStore) SetLastCertificatePayout(ctx context.Context, plan *models.Plan, ts time.Time) error {
	return s.updatePlan(ctx, plan, func(p *models.Plan) { p.LastCertificatePayout = &ts },
		`last_certificate_payout = ?`, func(p *models.Plan) []any { return []any{nullTime(p.LastCertificatePayout)} })
}

func (s *SQLStore) SetCooperation(ctx context.Context, plan *models.Plan, cooperationID *uuid.UUID) error {
	return s.updatePlan(ctx, plan, func(p *models.Plan) {
		p.Cooperation = cooperationID
		if cooperationID != nil {
			p.RequestedCooperation = nil
		}
	}, `cooperation = ?, requested_cooperation = ?`,
		func(p *models.Plan) []any { return []any{nullUUID(p.Cooperation), nullUUID(p.RequestedCooperation)} })
}

func (s *SQLStore) SetRequestedCooperation(ctx context.Context, plan *models.Plan, cooperationID *uuid.UUID) error {
	return s.updatePlan(ctx, plan, func(p *models.Plan) { p.RequestedCooperation = cooperationID },
		`requested_cooperation = ?`, func(p *models.Plan) []any { return []any{nullUUID(p.RequestedCooperation)} })
}

// Drafts

func (s *SQLStore) CreateDraft(ctx context.Context, d *models.Draft) error {
	_, err := s.exec(ctx,
		`INSERT INTO drafts (id, creation_date, planner, means_cost, resource_cost, labour_cost, product_name, description, unit, amount_produced, timeframe_days, is_public_service)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CreationDate, d.Planner, d.Costs.Means, d.Costs.Resources, d.Costs.Labour,
		d.ProductName, d.Description, d.Unit, d.AmountProduced, d.TimeframeDays, d.IsPublicService,
	)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

func (s *SQLStore) GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	var d models.Draft
	row := s.queryRow(ctx, `SELECT id, creation_date, planner, means_cost, resource_cost, labour_cost, product_name, description, unit, amount_produced, timeframe_days, is_public_service FROM drafts WHERE id = ?`, id)
	err := row.Scan(&d.ID, &d.CreationDate, &d.Planner, &d.Costs.Means, &d.Costs.Resources, &d.Costs.Labour,
		&d.ProductName, &d.Description, &d.Unit, &d.AmountProduced, &d.TimeframeDays, &d.IsPublicService)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &d, nil
}

func (s *SQLStore) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	result, err := s.exec(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return checkAffected(result, "draft", id)
}

// Transactions

func (s *SQLStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	key := sql.NullString{String: tx.IdempotencyKey, Valid: tx.IdempotencyKey != ""}
	_, err := s.exec(ctx,
		`INSERT INTO transactions (id, date, sending_account, receiving_account, amount_sent, amount_received, purpose, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Date, tx.SendingAccount, tx.ReceivingAccount, tx.AmountSent, tx.AmountReceived, tx.Purpose, key,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("idempotency key %s: %w", tx.IdempotencyKey, ErrDuplicateTransaction)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) queryTransactions(ctx context.Context, where string, args ...any) ([]*models.Transaction, error) {
	rows, err := s.query(ctx, `SELECT id, date, sending_account, receiving_account, amount_sent, amount_received, purpose, idempotency_key
		FROM transactions WHERE `+where+` ORDER BY date ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var key sql.NullString
		if err := rows.Scan(&t.ID, &t.Date, &t.SendingAccount, &t.ReceivingAccount, &t.AmountSent, &t.AmountReceived, &t.Purpose, &key); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		t.IdempotencyKey = key.String
		transactions = append(transactions, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for transactions: %w", err)
	}
	return transactions, nil
}

func (s *SQLStore) AllTransactionsSentByAccount(ctx context.Context, account uuid.UUID) ([]*models.Transaction, error) {
	return s.queryTransactions(ctx, `sending_account = ?`, account)
}

func (s *SQLStore) AllTransactionsReceivedByAccount(ctx context.Context, account uuid.UUID) ([]*models.Transaction, error) {
	return s.queryTransactions(ctx, `receiving_account = ?`, account)
}

// DivergentTransactions narrows candidates by TEXT comparison; equal decimals may be
// spelled differently, so the decimal comparison decides.
func (s *SQLStore) DivergentTransactions(ctx context.Context) ([]*models.Transaction, error) {
	all, err := s.queryTransactions(ctx, `amount_sent <> amount_received`)
	if err != nil {
		return nil, err
	}
	var divergent []*models.Transaction
	for _, t := range all {
		if t.Diverges() {
			divergent = append(divergent, t)
		}
	}
	return divergent, nil
}

// Accounts

func (s *SQLStore) insertAccount(ctx context.Context, t models.AccountType, owner models.AccountOwner) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.exec(ctx, `INSERT INTO accounts (id, account_type, owner_kind, owner_id) VALUES (?, ?, ?, ?)`,
		id, string(t), string(owner.Kind()), owner.OwnerID())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create %s account: %w", t, err)
	}
	return id, nil
}

func (s *SQLStore) CreateCompany(ctx context.Context, name, email string, registered time.Time) (*models.Company, error) {
	c := &models.Company{ID: uuid.New(), Name: name, Email: email, RegistrationDate: registered}
	owner := models.CompanyOwner{ID: c.ID}
	err := s.WithinTransaction(ctx, func(tx Storage) error {
		st := tx.(*SQLStore)
		var err error
		if c.MeansAccount, err = st.insertAccount(ctx, models.AccountTypeMeans, owner); err != nil {
			return err
		}
		if c.ResourceAccount, err = st.insertAccount(ctx, models.AccountTypeResources, owner); err != nil {
			return err
		}
		if c.LabourAccount, err = st.insertAccount(ctx, models.AccountTypeLabour, owner); err != nil {
			return err
		}
		if c.ProductAccount, err = st.insertAccount(ctx, models.AccountTypeProduct, owner); err != nil {
			return err
		}
		_, err = st.exec(ctx,
			`INSERT INTO companies (id, name, email, means_account, resource_account, labour_account, product_account, registration_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Email, c.MeansAccount, c.ResourceAccount, c.LabourAccount, c.ProductAccount, c.RegistrationDate)
		if err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLStore) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var c models.Company
	row := s.queryRow(ctx, `SELECT id, name, email, means_account, resource_account, labour_account, product_account, registration_date FROM companies WHERE id = ?`, id)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.MeansAccount, &c.ResourceAccount, &c.LabourAccount, &c.ProductAccount, &c.RegistrationDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("company %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

func (s *SQLStore) CreateMember(ctx context.Context, name, email string, registered time.Time) (*models.Member, error) {
	m := &models.Member{ID: uuid.New(), Name: name, Email: email, RegistrationDate: registered}
	err := s.WithinTransaction(ctx, func(tx Storage) error {
		st := tx.(*SQLStore)
		var err error
		if m.Account, err = st.insertAccount(ctx, models.AccountTypeMember, models.MemberOwner{ID: m.ID}); err != nil {
			return err
		}
		_, err = st.exec(ctx, `INSERT INTO members (id, name, email, account, registration_date) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.Name, m.Email, m.Account, m.RegistrationDate)
		if err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *SQLStore) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var m models.Member
	row := s.queryRow(ctx, `SELECT id, name, email, account, registration_date FROM members WHERE id = ?`, id)
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Account, &m.RegistrationDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

func (s *SQLStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	var accountType, ownerKind string
	var ownerID uuid.UUID
	row := s.queryRow(ctx, `SELECT id, account_type, owner_kind, owner_id FROM accounts WHERE id = ?`, id)
	if err := row.Scan(&a.ID, &accountType, &ownerKind, &ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	owner, err := models.NewAccountOwner(models.OwnerKind(ownerKind), ownerID)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	a.Type = models.AccountType(accountType)
	a.Owner = owner
	return &a, nil
}

func (s *SQLStore) CreateSocialAccounting(ctx context.Context) (*models.SocialAccounting, error) {
	sa := &models.SocialAccounting{ID: uuid.New()}
	err := s.WithinTransaction(ctx, func(tx Storage) error {
		st := tx.(*SQLStore)
		if _, err := st.GetSocialAccounting(ctx); err == nil {
			return fmt.Errorf("social accounting already exists")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		var err error
		if sa.Account, err = st.insertAccount(ctx, models.AccountTypeSocialAccounting, models.SocialAccountingOwner{ID: sa.ID}); err != nil {
			return err
		}
		if _, err := st.exec(ctx, `INSERT INTO social_accounting (id, account) VALUES (?, ?)`, sa.ID, sa.Account); err != nil {
			return fmt.Errorf("failed to create social accounting: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sa, nil
}

func (s *SQLStore) GetSocialAccounting(ctx context.Context) (*models.SocialAccounting, error) {
	var sa models.SocialAccounting
	row := s.queryRow(ctx, `SELECT id, account FROM social_accounting LIMIT 1`)
	if err := row.Scan(&sa.ID, &sa.Account); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("social accounting: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get social accounting: %w", err)
	}
	return &sa, nil
}

// Offers

func (s *SQLStore) CreateOffer(ctx context.Context, o *models.Offer) error {
	_, err := s.exec(ctx, `INSERT INTO offers (id, plan_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.PlanID, o.Name, o.Description, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAllOffersBelongingTo(ctx context.Context, planID uuid.UUID) ([]*models.Offer, error) {
	rows, err := s.query(ctx, `SELECT id, plan_id, name, description, created_at FROM offers WHERE plan_id = ? ORDER BY created_at`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get offers for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var offers []*models.Offer
	for rows.Next() {
		var o models.Offer
		if err := rows.Scan(&o.ID, &o.PlanID, &o.Name, &o.Description, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offer row: %w", err)
		}
		offers = append(offers, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for offers: %w", err)
	}
	return offers, nil
}

func (s *SQLStore) DeleteOffer(ctx context.Context, id uuid.UUID) error {
	result, err := s.exec(ctx, `DELETE FROM offers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete offer: %w", err)
	}
	return checkAffected(result, "offer", id)
}

// Cooperations

func (s *SQLStore) CreateCooperation(ctx context.Context, c *models.Cooperation) error {
	_, err := s.exec(ctx, `INSERT INTO cooperations (id, name, definition, coordinator, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Definition, c.Coordinator, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create cooperation: %w", err)
	}
	return nil
}

func (s *SQLStore) GetCooperation(ctx context.Context, id uuid.UUID) (*models.Cooperation, error) {
	var c models.Cooperation
	row := s.queryRow(ctx, `SELECT id, name, definition, coordinator, created_at FROM cooperations WHERE id = ?`, id)
	if err := row.Scan(&c.ID, &c.Name, &c.Definition, &c.Coordinator, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cooperation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cooperation: %w", err)
	}
	return &c, nil
}

// Payout factors

func (s *SQLStore) CreatePayoutFactor(ctx context.Context, f *models.PayoutFactor) error {
	_, err := s.exec(ctx, `INSERT INTO payout_factors (id, value, computed_at) VALUES (?, ?, ?)`, f.ID, f.Value, f.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to create payout factor: %w", err)
	}
	return nil
}

func (s *SQLStore) LatestPayoutFactor(ctx context.Context) (*models.PayoutFactor, error) {
	var f models.PayoutFactor
	var value decimal.Decimal
	row := s.queryRow(ctx, `SELECT id, value, computed_at FROM payout_factors ORDER BY computed_at DESC LIMIT 1`)
	if err := row.Scan(&f.ID, &value, &f.ComputedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payout factor: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payout factor: %w", err)
	}
	f.Value = value
	return &f, nil
}
