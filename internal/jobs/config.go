package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-grader/internal/domain"
)

// Defaults for admission and retention.
const (
	DefaultMaxActiveJobs = 10
	DefaultSweepDelay    = 10 * time.Second
	DefaultResultTTL     = 24 * time.Hour
	DefaultHistoryTTL    = 24 * time.Hour
	DefaultMetadataTTL   = 30 * 24 * time.Hour
	DefaultMaxEntries    = 1000
)

var (
	ErrMaxActiveJobsInvalid = errors.New("max active jobs must be > 0")
	ErrSweepDelayInvalid    = errors.New("sweep delay must be >= 0")
	ErrTTLInvalid           = errors.New("retention ttl must be > 0")
	ErrMaxEntriesInvalid    = errors.New("retention max entries must be > 0")
	ErrMaxScoreInvalid      = errors.New("max score must be > 0")
)

// Config controls admission and retention of grading jobs.
type Config struct {
	MaxActiveJobs int           `json:"max_active_jobs"`
	SweepDelay    time.Duration `json:"sweep_delay"`

	ResultTTL   time.Duration `json:"result_ttl"`
	HistoryTTL  time.Duration `json:"history_ttl"`
	MetadataTTL time.Duration `json:"metadata_ttl"`

	MaxResults  int `json:"max_results"`
	MaxHistory  int `json:"max_history"`
	MaxMetadata int `json:"max_metadata"`

	// MaxScore is the ceiling passed to the evaluator for every answer.
	MaxScore float64 `json:"max_score"`
}

// DefaultConfig returns the production admission and retention settings.
func DefaultConfig() Config {
	return Config{
		MaxActiveJobs: DefaultMaxActiveJobs,
		SweepDelay:    DefaultSweepDelay,
		ResultTTL:     DefaultResultTTL,
		HistoryTTL:    DefaultHistoryTTL,
		MetadataTTL:   DefaultMetadataTTL,
		MaxResults:    DefaultMaxEntries,
		MaxHistory:    DefaultMaxEntries,
		MaxMetadata:   DefaultMaxEntries,
		MaxScore:      domain.DefaultMaxScore,
	}
}

// Validate returns every violation joined.
func (c Config) Validate() error {
	var errs []error
	if c.MaxActiveJobs <= 0 {
		errs = append(errs, fmt.Errorf("%w, got %d", ErrMaxActiveJobsInvalid, c.MaxActiveJobs))
	}
	if c.SweepDelay < 0 {
		errs = append(errs, fmt.Errorf("%w, got %v", ErrSweepDelayInvalid, c.SweepDelay))
	}
	for name, ttl := range map[string]time.Duration{
		"result": c.ResultTTL, "history": c.HistoryTTL, "metadata": c.MetadataTTL,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s, got %v", ErrTTLInvalid, name, ttl))
		}
	}
	for name, n := range map[string]int{
		"result": c.MaxResults, "history": c.MaxHistory, "metadata": c.MaxMetadata,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s, got %d", ErrMaxEntriesInvalid, name, n))
		}
	}
	if c.MaxScore <= 0 {
		errs = append(errs, fmt.Errorf("%w, got %v", ErrMaxScoreInvalid, c.MaxScore))
	}
	return errors.Join(errs...)
}

// Stores groups the three job stores.
type Stores struct {
	Results  Store[domain.Job]
	Metadata Store[domain.JobMetadata]
	History  Store[domain.Job]
}

// NewStores builds in-memory stores with the retention rules in cfg.
// Pending results are exempt from eviction.
func NewStores(cfg Config) Stores {
	jobStamp := func(j domain.Job) time.Time { return j.UpdatedAt }
	return Stores{
		Results: NewOrderedStore(Retention[domain.Job]{
			TTL:        cfg.ResultTTL,
			MaxEntries: cfg.MaxResults,
			Timestamp:  jobStamp,
			Exempt:     func(j domain.Job) bool { return j.Status == domain.JobPending },
		}),
		Metadata: NewOrderedStore(Retention[domain.JobMetadata]{
			TTL:        cfg.MetadataTTL,
			MaxEntries: cfg.MaxMetadata,
			Timestamp:  func(m domain.JobMetadata) time.Time { return m.Timestamp },
		}),
		History: NewOrderedStore(Retention[domain.Job]{
			TTL:        cfg.HistoryTTL,
			MaxEntries: cfg.MaxHistory,
			Timestamp:  jobStamp,
		}),
	}
}
