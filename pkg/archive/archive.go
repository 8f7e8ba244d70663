package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mcclellann/laborledger/pkg/models"
)

// Repository stores the reports of finished update runs.
type Repository interface {
	SaveRunReport(ctx context.Context, report models.RunReport) error
}

// MongoDBRepository implements Repository on a MongoDB collection.
type MongoDBRepository struct {
	client   *mongo.Client
	dbName   string
	collName string
}

// NewMongoDBRepository connects to uri and verifies the connection.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client:   client,
		dbName:   dbName,
		collName: "run_reports",
	}, nil
}

// SaveRunReport inserts one run report.
func (r *MongoDBRepository) SaveRunReport(ctx context.Context, report models.RunReport) error {
	collection := r.client.Database(r.dbName).Collection(r.collName)
	if _, err := collection.InsertOne(ctx, toDocument(report)); err != nil {
		return fmt.Errorf("failed to insert run report: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

type failureDocument struct {
	PlanID string `bson:"plan_id"`
	Phase  string `bson:"phase"`
	Error  string `bson:"error"`
}

// runReportDocument keeps decimals as strings so no precision is lost in BSON.
type runReportDocument struct {
	ID                   string            `bson:"_id"`
	StartedAt            time.Time         `bson:"started_at"`
	FinishedAt           time.Time         `bson:"finished_at"`
	PayoutFactor         string            `bson:"payout_factor"`
	PlansExpired         int               `bson:"plans_expired"`
	Payouts              int               `bson:"payouts"`
	CertificatesPaid     string            `bson:"certificates_paid"`
	SkippedAlreadyPaid   int               `bson:"skipped_already_paid"`
	SkippedExpirationDay int               `bson:"skipped_expiration_day"`
	Failures             []failureDocument `bson:"failures"`
}

func toDocument(r models.RunReport) runReportDocument {
	failures := make([]failureDocument, 0, len(r.Failures))
	for _, f := range r.Failures {
		failures = append(failures, failureDocument{PlanID: f.PlanID.String(), Phase: f.Phase, Error: f.Error})
	}
	return runReportDocument{
		ID:                   r.ID.String(),
		StartedAt:            r.StartedAt,
		FinishedAt:           r.FinishedAt,
		PayoutFactor:         r.PayoutFactor.String(),
		PlansExpired:         r.PlansExpired,
		Payouts:              r.Payouts,
		CertificatesPaid:     r.CertificatesPaid.String(),
		SkippedAlreadyPaid:   r.SkippedAlreadyPaid,
		SkippedExpirationDay: r.SkippedExpirationDay,
		Failures:             failures,
	}
}
