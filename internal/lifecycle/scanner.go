package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// ObjectSummary is the minimal view of an object the scanner needs to
// evaluate rules against.
type ObjectSummary struct {
	Key       string
	Size      int64
	CreatedAt time.Time
}

// Backend is the object-store surface the scanner consumes. objectstore.Store
// satisfies this without either package importing the other.
type Backend interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]ObjectSummary, error)
	Tags(ctx context.Context, bucket, key string) (map[string]string, error)
	DeleteExpired(ctx context.Context, bucket, key string) error
}

// ExpiredCounter is satisfied by *metrics.Registry.
type ExpiredCounter interface {
	AddExpired(bucket string, n int)
}

type BucketResult struct {
	Bucket          string
	RuleID          string
	MatchedObjects  int
	ExpiredObjects  int
}

type ScanResult struct {
	BucketsScanned int
	RulesEvaluated int
	ObjectsExpired int
	BucketResults  []BucketResult
}

// Scanner runs the periodic lifecycle expiration sweep.
type Scanner struct {
	Store    *Store
	Backend  Backend
	Counter  ExpiredCounter
	Logger   *slog.Logger
}

// Sweep evaluates every Enabled rule of every bucket with an attached
// configuration and deletes objects it judges expired as of now. Errors on
// individual objects are logged and do not abort the scan.
func (s *Scanner) Sweep(ctx context.Context, now time.Time) (ScanResult, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	buckets, err := s.Store.Buckets()
	if err != nil {
		return ScanResult{}, err
	}

	var result ScanResult
	for _, bucket := range buckets {
		cfg, err := s.Store.Get(bucket)
		if err != nil {
			logger.Warn("lifecycle scan: load configuration failed", "bucket", bucket, "error", err)
			continue
		}
		result.BucketsScanned++
		for _, rule := range cfg.Rules {
			result.RulesEvaluated++
			if rule.Status != StatusEnabled {
				continue
			}
			br := s.sweepRule(ctx, logger, bucket, rule, now)
			result.ObjectsExpired += br.ExpiredObjects
			result.BucketResults = append(result.BucketResults, br)
		}
	}
	return result, nil
}

func (s *Scanner) sweepRule(ctx context.Context, logger *slog.Logger, bucket string, rule Rule, now time.Time) BucketResult {
	br := BucketResult{Bucket: bucket, RuleID: rule.ID}

	objects, err := s.Backend.ListKeys(ctx, bucket, rule.Prefix)
	if err != nil {
		logger.Warn("lifecycle scan: list objects failed", "bucket", bucket, "rule_id", rule.ID, "error", err)
		return br
	}

	for _, obj := range objects {
		var tags map[string]string
		if len(rule.Tags) > 0 {
			tags, err = s.Backend.Tags(ctx, bucket, obj.Key)
			if err != nil {
				logger.Warn("lifecycle scan: load tags failed", "bucket", bucket, "key", obj.Key, "error", err)
				continue
			}
		}
		if !rule.Matches(obj.Key, tags, obj.Size, obj.CreatedAt, now) {
			continue
		}
		br.MatchedObjects++
		if err := s.Backend.DeleteExpired(ctx, bucket, obj.Key); err != nil {
			logger.Warn("lifecycle scan: delete expired object failed", "bucket", bucket, "key", obj.Key, "error", err)
			continue
		}
		br.ExpiredObjects++
	}

	if br.ExpiredObjects > 0 && s.Counter != nil {
		s.Counter.AddExpired(bucket, br.ExpiredObjects)
	}
	return br
}

// Run starts a goroutine that sweeps every interval until ctx is canceled.
// The first tick fires one full interval after startup. interval <= 0
// disables the scanner and Run returns a no-op cancel func.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				res, err := s.Sweep(ctx, t.UTC())
				if err != nil {
					logger.Warn("lifecycle sweep failed", "error", err)
					continue
				}
				logSweep(logger, res)
			}
		}
	}()
	return cancel
}

func logSweep(logger *slog.Logger, res ScanResult) {
	logger.Info("lifecycle sweep completed",
		"buckets_scanned", res.BucketsScanned,
		"rules_evaluated", res.RulesEvaluated,
		"objects_expired", res.ObjectsExpired,
	)
	for _, br := range res.BucketResults {
		if br.MatchedObjects == 0 {
			continue
		}
		logger.Info("lifecycle sweep rule result",
			"bucket", br.Bucket,
			"rule_id", br.RuleID,
			"matched_objects", br.MatchedObjects,
			"expired_objects", br.ExpiredObjects,
		)
	}
}
