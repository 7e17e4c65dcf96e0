package notify

import (
	"context"
	"encoding/json"
	"time"

	"bandpay/internal/logger"
	"bandpay/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey  = "incidents"
	recentKey = "incidents:recent"

	// recentCap bounds the list the admin UI reads.
	recentCap = 500
)

const (
	KindCtrReplay         = "ctr_replay"
	KindInvalidSignature  = "invalid_signature"
	KindForwardJumpDenied = "forward_jump_rejected"
)

// Incident is one suspicious protocol interaction, queued for the
// operator incident log.
type Incident struct {
	EventID     string    `json:"event_id"`
	WristbandID int       `json:"wristband_id,omitempty"`
	UID         string    `json:"uid,omitempty"`
	Kind        string    `json:"kind"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

type Notifier interface {
	Push(ctx context.Context, inc Incident)
}

type Service struct {
	redis *redis.Client
}

func New(redisAddr string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
	}
}

// NewWithClient is used by tests.
func NewWithClient(client *redis.Client) *Service {
	return &Service{redis: client}
}

// Push queues an incident. Failures only log; incident delivery is
// never allowed to fail a payment request.
func (s *Service) Push(ctx context.Context, inc Incident) {
	if inc.At.IsZero() {
		inc.At = time.Now()
	}

	data, err := json.Marshal(inc)
	if err != nil {
		logger.Errorf("Failed to marshal incident: %v", err)
		return
	}

	if err := s.redis.LPush(ctx, queueKey, data).Err(); err != nil {
		logger.Errorf("Failed to queue incident for wristband %d: %v", inc.WristbandID, err)
		return
	}

	logger.Info("Incident queued", "kind", inc.Kind, "wristband_id", inc.WristbandID)
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Incident notifier started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Incident notifier stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var inc Incident
	if err := json.Unmarshal([]byte(result[1]), &inc); err != nil {
		logger.Errorf("Bad incident data: %v", err)
		return
	}

	logger.Info("Protocol incident",
		"kind", inc.Kind,
		"event_id", inc.EventID,
		"wristband_id", inc.WristbandID,
		"uid", inc.UID,
		"detail", inc.Detail,
	)

	data, _ := json.Marshal(inc)
	pipe := s.redis.Pipeline()
	pipe.LPush(ctx, recentKey, data)
	pipe.LTrim(ctx, recentKey, 0, recentCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Errorf("Failed to record incident: %v", err)
	}

	metrics.IncidentQueueLength.Set(float64(s.QueueLength(ctx)))
}

// Recent returns the newest incidents for the admin UI.
func (s *Service) Recent(ctx context.Context, limit int64) ([]Incident, error) {
	if limit <= 0 || limit > recentCap {
		limit = 50
	}

	raw, err := s.redis.LRange(ctx, recentKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	incidents := make([]Incident, 0, len(raw))
	for _, item := range raw {
		var inc Incident
		if err := json.Unmarshal([]byte(item), &inc); err != nil {
			continue
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}
