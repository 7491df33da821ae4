package store

import (
	"fmt"
	"math"
	"time"

	"github.com/Moni003/docksmaker"
	"github.com/glebarez/sqlite"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Run is a Monte-Carlo search stored in the database.
type Run struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Date      string
	Samples   int
	Seed      uint64
	Scoring   string
	BestIndex *int
	BestScore *float64
	Evaluated int
	Discarded int
	Skipped   int
	Truncated bool
}

// SampleRecord is an evaluated sample. Positions are in km and velocities in km/s.
type SampleRecord struct {
	ID           uint `gorm:"primarykey"`
	RunID        uint `gorm:"index"`
	SampleIndex  int
	Fidelity     string
	Score        *float64 // Null if the sample was discarded.
	ClosestIndex int
	ClosestTime  float64
	RX, RY, RZ   float64
	VX, VY, VZ   float64
	Error        string
}

// DatabaseModels lists the tables of the sample database.
var DatabaseModels = []interface{}{
	&Run{},
	&SampleRecord{},
}

// SQLiteSink stores samples in an SQLite database, in batches.
type SQLiteSink struct {
	DB        *gorm.DB
	Run       Run
	BatchSize int
	pending   []SampleRecord
	logger    log.Logger
}

// OpenSQLite opens (or creates) the database at path, in memory if path is empty, and starts a run.
func OpenSQLite(path string, run Run, logger log.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", dsn, err)
	}
	if path == "" {
		// Each connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err = db.AutoMigrate(DatabaseModels...); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	if err = db.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	level.Info(logger).Log("subsys", "store", "db", dsn, "run", run.ID)
	return &SQLiteSink{DB: db, Run: run, BatchSize: 500, logger: logger}, nil
}

// Record implements docksmaker.SampleSink.
func (s *SQLiteSink) Record(smp docksmaker.Sample) error {
	rec := SampleRecord{
		RunID:        s.Run.ID,
		SampleIndex:  smp.Index,
		Fidelity:     smp.Fidelity.String(),
		ClosestIndex: smp.ClosestIndex,
		ClosestTime:  smp.ClosestTime,
	}
	if smp.Err != nil {
		rec.Error = smp.Err.Error()
	} else if !math.IsInf(smp.Score, 0) && !math.IsNaN(smp.Score) {
		score := smp.Score
		rec.Score = &score
	}
	x := smp.Initial.Slice()
	rec.RX, rec.RY, rec.RZ, rec.VX, rec.VY, rec.VZ = x[0]/1e3, x[1]/1e3, x[2]/1e3, x[3]/1e3, x[4]/1e3, x[5]/1e3
	s.pending = append(s.pending, rec)
	if len(s.pending) >= s.BatchSize {
		return s.flush()
	}
	return nil
}

func (s *SQLiteSink) flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.DB.CreateInBatches(s.pending, s.BatchSize).Error; err != nil {
		return fmt.Errorf("inserting %d samples: %w", len(s.pending), err)
	}
	level.Debug(s.logger).Log("subsys", "store", "inserted", len(s.pending))
	s.pending = s.pending[:0]
	return nil
}

// Finish flushes the pending samples and stores the outcome of the search.
func (s *SQLiteSink) Finish(rslt *docksmaker.SearchResult) error {
	if err := s.flush(); err != nil {
		return err
	}
	s.Run.Evaluated = rslt.Evaluated
	s.Run.Discarded = rslt.Discarded
	s.Run.Skipped = rslt.Skipped
	s.Run.Truncated = rslt.Truncated
	if rslt.Best != nil {
		idx, score := rslt.Best.Index, rslt.Best.Score
		s.Run.BestIndex = &idx
		s.Run.BestScore = &score
	}
	return s.DB.Save(&s.Run).Error
}

// Close releases the database.
func (s *SQLiteSink) Close() error {
	db, err := s.DB.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
