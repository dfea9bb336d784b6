package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/types"
	"resume-match-go/pkg/utils"
)

var mysqlTracer = otel.Tracer("resume-match-go/storage/mysql")

// ErrRecordNotFound re-exports the gorm sentinel so callers don't import
// gorm directly.
var ErrRecordNotFound = gorm.ErrRecordNotFound

type gormSpanKey struct{}

// GormTracingPlugin adds OpenTelemetry spans around GORM operations.
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// NewGormTracingPlugin creates the tracing plugin for the named database.
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{tracer: mysqlTracer, dbName: dbName}
}

func (p *GormTracingPlugin) Name() string { return "GormOpenTelemetryPlugin" }

// Initialize registers before/after callbacks for all CRUD operations.
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	return nil
}

func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			// Not-found is part of normal control flow, not a failure.
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}
	}
}

// MySQL provides the relational persistence layer.
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL connects, registers tracing and migrates the schema.
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config cannot be nil")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.ConnectTimeoutSeconds)

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	default:
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("failed to register tracing plugin: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg}
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to MySQL")
	return m, nil
}

func (m *MySQL) autoMigrateSchema() error {
	// Migration chatter at Info level drowns startup logs; run it silent.
	silentDB := m.db.Session(&gorm.Session{
		Logger: m.db.Logger.LogMode(gormlogger.Silent),
	})
	return silentDB.AutoMigrate(
		&models.Document{},
		&models.MatchRecord{},
		&models.SuggestionRecord{},
	)
}

// DB exposes the GORM handle for callers needing raw access.
func (m *MySQL) DB() *gorm.DB { return m.db }

// Close closes the underlying connection pool.
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Document operations ---

// CreateDocument inserts a new document row.
func (m *MySQL) CreateDocument(ctx context.Context, doc *models.Document) error {
	return m.db.WithContext(ctx).Create(doc).Error
}

// GetDocumentByID fetches one document.
func (m *MySQL) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := m.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentByMD5 finds a user's existing document with identical content,
// backing upload dedup.
func (m *MySQL) GetDocumentByMD5(ctx context.Context, userID, contentMD5 string) (*models.Document, error) {
	var doc models.Document
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND content_md5 = ?", userID, contentMD5).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateDocumentExtraction persists the extraction artifacts on a document.
func (m *MySQL) UpdateDocumentExtraction(ctx context.Context, id string, updates map[string]interface{}) error {
	return m.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteDocument removes a document row. Object-storage and vector-index
// cleanup happen in the pipeline before this is called.
func (m *MySQL) DeleteDocument(ctx context.Context, id string) error {
	result := m.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- Match operations ---

// CreateMatchRecord inserts a new match row. A duplicate-key error from the
// (resume_id, job_id) unique index means another request won the race; the
// caller should re-read the existing row.
func (m *MySQL) CreateMatchRecord(ctx context.Context, record *models.MatchRecord) error {
	return m.db.WithContext(ctx).Create(record).Error
}

// GetMatchByPair returns the canonical match row for a (resume, job) pair,
// suggestions included.
func (m *MySQL) GetMatchByPair(ctx context.Context, resumeID, jobID string) (*models.MatchRecord, error) {
	var record models.MatchRecord
	err := m.db.WithContext(ctx).
		Preload("Suggestions").
		Where("resume_id = ? AND job_id = ?", resumeID, jobID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetMatchByID fetches one match row with its suggestions.
func (m *MySQL) GetMatchByID(ctx context.Context, id string) (*models.MatchRecord, error) {
	var record models.MatchRecord
	err := m.db.WithContext(ctx).
		Preload("Suggestions").
		First(&record, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateMatchState moves a match to a new pipeline state. The state column
// is persisted on every transition so partial progress stays observable.
func (m *MySQL) UpdateMatchState(ctx context.Context, id string, state types.PipelineState, errorMessage *string) error {
	updates := map[string]interface{}{"state": string(state)}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	return m.db.WithContext(ctx).
		Model(&models.MatchRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// SaveMatchScores writes the similarity outcome onto the match row.
func (m *MySQL) SaveMatchScores(ctx context.Context, id string, result *types.MatchResult) error {
	sectionSims, err := json.Marshal(result.Similarity.SectionSimilarities)
	if err != nil {
		return fmt.Errorf("failed to marshal section similarities: %w", err)
	}
	sectionScores, err := json.Marshal(result.SectionScores)
	if err != nil {
		return fmt.Errorf("failed to marshal section scores: %w", err)
	}
	return m.db.WithContext(ctx).
		Model(&models.MatchRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"overall_similarity":   result.Similarity.OverallSimilarity,
			"keyword_similarity":   result.Similarity.KeywordSimilarity,
			"confidence_score":     result.Similarity.ConfidenceScore,
			"section_similarities": sectionSims,
			"section_scores":       sectionScores,
			"strengths":            utils.ConvertArrayToJSON(result.Strengths),
			"skill_gaps":           utils.ConvertArrayToJSON(result.SkillGaps),
		}).Error
}

// AppendSuggestions adds suggestion rows to an existing match. Called both
// synchronously and from the queue consumer; the match row itself is not
// recreated.
func (m *MySQL) AppendSuggestions(ctx context.Context, matchID string, suggestions []types.Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	rows := make([]models.SuggestionRecord, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, models.FromSuggestion(matchID, s))
	}
	return m.db.WithContext(ctx).Create(&rows).Error
}

// UpdateSuggestionStatus applies a user-triggered status transition. Only
// pending suggestions may move to implemented or rejected.
func (m *MySQL) UpdateSuggestionStatus(ctx context.Context, suggestionID string, status types.SuggestionStatus) error {
	result := m.db.WithContext(ctx).
		Model(&models.SuggestionRecord{}).
		Where("id = ? AND status = ?", suggestionID, string(types.SuggestionPending)).
		Update("status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("suggestion %s not found or not pending", suggestionID)
	}
	return nil
}
